package canon

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the JSON shapes that may be hashed.
// Only Null, String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	canonValue()
}

// Null is an explicit JSON null.
type Null struct{}

func (Null) canonValue() {}

// String is a JSON string. It is NFC normalized when encoded.
type String string

func (String) canonValue() {}

// Int is a JSON integer.
type Int int64

func (Int) canonValue() {}

// Float is a finite JSON number. Integral values encode without a fraction
// so 3 and 3.0 hash identically.
type Float float64

func (Float) canonValue() {}

// Bool is a JSON boolean.
type Bool bool

func (Bool) canonValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) canonValue() {}

// Object maps keys to values. Iterate with SortedKeys.
type Object map[string]Value

func (Object) canonValue() {}

// Strings builds an Array of String values.
func Strings(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string order compares UTF-8 bytes and differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
