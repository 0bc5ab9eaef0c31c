package rule

import (
	"cmp"
	"slices"
)

// Indexed pairs a rule with its position in the unordered input.
type Indexed struct {
	Index int
	Rule  Rule
}

// Order returns rules in execution order: ascending importance, then
// exclusive placement before every other kind, then original position.
// The sort key is total, so the result never depends on input shuffling
// beyond the positions themselves.
func Order(rules []Rule) []Indexed {
	out := make([]Indexed, len(rules))
	for i, r := range rules {
		out[i] = Indexed{Index: i, Rule: r}
	}
	slices.SortFunc(out, compareIndexed)
	return out
}

// Ordered is Order without the original positions.
func Ordered(rules []Rule) []Rule {
	indexed := Order(rules)
	out := make([]Rule, len(indexed))
	for i, ix := range indexed {
		out[i] = ix.Rule
	}
	return out
}

func compareIndexed(a, b Indexed) int {
	return cmp.Or(
		cmp.Compare(a.Rule.Importance, b.Rule.Importance),
		cmp.Compare(kindRank(a.Rule.Action), kindRank(b.Rule.Action)),
		cmp.Compare(a.Index, b.Index),
	)
}

func kindRank(a Action) int {
	if a != nil && a.Kind() == ActionForceIn {
		return 0
	}
	return 1
}
