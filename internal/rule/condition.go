package rule

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ConditionKind identifies a condition variant.
type ConditionKind string

const (
	ConditionTags        ConditionKind = "tags"
	ConditionRating      ConditionKind = "rating"
	ConditionFileService ConditionKind = "file_service"
	ConditionFilesize    ConditionKind = "filesize"
	ConditionBoolean     ConditionKind = "boolean"
	ConditionFiletype    ConditionKind = "filetype"
	ConditionURL         ConditionKind = "url"
	ConditionPaste       ConditionKind = "paste_search"
	ConditionOrGroup     ConditionKind = "or_group"
)

// Condition is a tagged variant over the closed set of condition kinds.
// Which fields are meaningful depends on Kind:
//
//	tags          Terms
//	rating        ServiceKey, Operator, Rating
//	file_service  ServiceKey, Operator
//	filesize      Operator, Number, Unit
//	boolean       Operator (flag name), Bool
//	filetype      Operator, Terms
//	url           URLSubtype, URLType, Operator, Text (specific) or Number (count)
//	paste_search  Text
//	or_group      Children
//
// Problem is set by the decoder when the value could not be read as the
// type the kind requires.
type Condition struct {
	Kind       ConditionKind
	Operator   string
	ServiceKey string
	Terms      []string
	Text       string
	Number     float64
	Unit       string
	Bool       bool
	Rating     RatingValue
	URLSubtype string
	URLType    string
	Children   []Condition
	Problem    string
}

// RatingKind distinguishes the three shapes a rating value may take.
type RatingKind int

const (
	// RatingNone is an absent value: clear a rating, or match "has any rating".
	RatingNone RatingKind = iota
	RatingBool
	RatingNumber
)

// RatingValue is a like/dislike boolean, a number of stars, or nothing.
type RatingValue struct {
	Kind   RatingKind
	Bool   bool
	Number float64
}

// NoRating is the empty rating value.
var NoRating = RatingValue{}

// BoolRating returns a like (true) or dislike (false) value.
func BoolRating(b bool) RatingValue { return RatingValue{Kind: RatingBool, Bool: b} }

// NumberRating returns a numeric rating value.
func NumberRating(n float64) RatingValue { return RatingValue{Kind: RatingNumber, Number: n} }

// Equal reports whether two values would set the same rating.
func (v RatingValue) Equal(o RatingValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case RatingBool:
		return v.Bool == o.Bool
	case RatingNumber:
		return v.Number == o.Number
	}
	return true
}

// Wire returns the value as sent to the remote API: nil, a bool, or a
// number with integral values rendered as integers.
func (v RatingValue) Wire() any {
	switch v.Kind {
	case RatingBool:
		return v.Bool
	case RatingNumber:
		if v.Number == math.Trunc(v.Number) {
			return int64(v.Number)
		}
		return v.Number
	}
	return nil
}

// String renders the value as JSON text ("null", "true", "3").
func (v RatingValue) String() string {
	switch v.Kind {
	case RatingBool:
		return strconv.FormatBool(v.Bool)
	case RatingNumber:
		return FormatNumber(v.Number)
	}
	return "null"
}

// ParseRatingJSON is the inverse of String.
func ParseRatingJSON(s string) (RatingValue, error) {
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return NoRating, err
	}
	switch val := raw.(type) {
	case nil:
		return NoRating, nil
	case bool:
		return BoolRating(val), nil
	case float64:
		return NumberRating(val), nil
	}
	return NoRating, fmt.Errorf("unsupported rating value %s", s)
}

// FormatNumber prints whole numbers without a fractional part.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
