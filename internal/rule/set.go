package rule

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
)

// Set holds the currently loaded rules. Triggers read it; the file
// watcher replaces it wholesale.
type Set struct {
	mu       sync.RWMutex
	rules    []Rule
	loadedAt time.Time
}

// NewSet returns a set holding rules.
func NewSet(rules ...Rule) *Set {
	s := &Set{}
	s.Replace(rules)
	return s
}

// Replace swaps in a new rule list.
func (s *Set) Replace(rules []Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = slices.Clone(rules)
	s.loadedAt = time.Now()
}

// Reload reads path and replaces the set. On error the set is unchanged.
func (s *Set) Reload(path string) error {
	rules, err := LoadFile(path)
	if err != nil {
		return err
	}
	s.Replace(rules)
	return nil
}

// Rules returns a copy of the rules in file order.
func (s *Set) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rules)
}

// Len is the number of rules.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// LoadedAt is when the set was last replaced.
func (s *Set) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Find returns the rule whose id, or failing that whose name, equals
// query. Name matching ignores case.
func (s *Set) Find(query string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ID == query {
			return r, true
		}
	}
	for _, r := range s.rules {
		if r.Name != "" && strings.EqualFold(r.Name, query) {
			return r, true
		}
	}
	return Rule{}, false
}

// Suggest returns up to limit rule ids that fuzzily match query, best
// match first.
func (s *Set) Suggest(query string, limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]string, len(s.rules))
	for i, r := range s.rules {
		targets[i] = r.ID
		if r.Name != "" {
			targets[i] = r.ID + " " + r.Name
		}
	}
	ranks := fuzzy.Find(query, targets)
	sort.Stable(ranks)

	out := []string{}
	for _, m := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, s.rules[m.Index].ID)
	}
	return out
}
