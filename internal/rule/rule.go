package rule

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultImportance is used when a rule omits importance or supplies a
// value that is not an integer.
const DefaultImportance = 1

// Rule is a user-defined automation rule.
type Rule struct {
	ID         string
	Name       string
	Importance int
	Conditions []Condition
	Action     Action
}

// Validate reports configuration errors that must abort the rule before
// any remote call is made.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule is missing an id")
	}
	if r.Action == nil {
		return fmt.Errorf("rule %s: action missing", r.ID)
	}
	if err := r.Action.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// Label returns the name when present, otherwise the id.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// ParseImportance converts a raw importance value into an integer.
// Anything that is not an integer, including fractional numbers, yields
// DefaultImportance.
func ParseImportance(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return DefaultImportance
		}
		return n
	default:
		return DefaultImportance
	}
}
