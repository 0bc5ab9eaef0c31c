package translate

import (
	"strings"
)

// Predicate is one search term, or a group of alternatives of which a file
// must match at least one.
type Predicate struct {
	Term string
	Any  []string
}

// Term returns a single-term predicate.
func Term(s string) Predicate { return Predicate{Term: s} }

// AnyOf returns an OR-group predicate.
func AnyOf(terms ...string) Predicate { return Predicate{Any: terms} }

// IsGroup reports whether p is an OR-group.
func (p Predicate) IsGroup() bool { return p.Any != nil }

// Wire returns the JSON shape expected by the search endpoint: a string
// for a term, a list of strings for a group.
func (p Predicate) Wire() any {
	if p.IsGroup() {
		return p.Any
	}
	return p.Term
}

func (p Predicate) String() string {
	if p.IsGroup() {
		return strings.Join(p.Any, " OR ")
	}
	return p.Term
}

// Result is the output of translating one rule.
type Result struct {
	Predicates []Predicate
	Warnings   []string
	// TagServiceKey scopes the search to one tag service when the action
	// adds or removes tags.
	TagServiceKey string
}

// Wire returns the predicates in search-endpoint form.
func (r Result) Wire() []any {
	out := make([]any, len(r.Predicates))
	for i, p := range r.Predicates {
		out[i] = p.Wire()
	}
	return out
}

// Critical returns the warnings that must abort the rule.
func (r Result) Critical() []string {
	var out []string
	for _, w := range r.Warnings {
		if IsCritical(w) {
			out = append(out, w)
		}
	}
	return out
}

var criticalPhrases = []string{
	"skipping condition",
	"unhandled condition",
	"invalid value",
	"malformed 'file_service' condition",
	"not found for condition",
	"missing",
	"error translating",
	"unsupported operator for",
	"unknown specific url type",
	"no search predicates",
}

// IsCritical classifies a warning. Notes are never critical.
func IsCritical(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "note:") {
		return false
	}
	for _, phrase := range criticalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
