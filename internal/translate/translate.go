package translate

import (
	"fmt"
	"strings"

	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
)

// Services resolves service keys to names and types.
type Services interface {
	Lookup(key string) (hydrus.Service, bool)
	LocalFileDomains() []hydrus.Service
}

type translator struct {
	services Services
	res      Result
}

func (t *translator) warn(format string, args ...any) {
	t.res.Warnings = append(t.res.Warnings, fmt.Sprintf(format, args...))
}

func (t *translator) add(p ...Predicate) {
	t.res.Predicates = append(t.res.Predicates, p...)
}

// Translate converts a rule's conditions and action into search predicates.
// Problems never fail the call; they are reported as warnings and the
// offending condition is skipped. Callers must abort the rule when
// Result.Critical is non-empty.
func Translate(conditions []rule.Condition, action rule.Action, services Services) Result {
	t := &translator{services: services}

	for i, c := range conditions {
		switch c.Kind {
		case rule.ConditionOrGroup:
			t.orGroup(i, c)
		case rule.ConditionPaste:
			t.paste(i, c)
		default:
			t.add(t.condition(c)...)
		}
	}

	if action != nil {
		t.action(action)
	}

	if len(t.res.Predicates) == 0 {
		t.guardEmpty(conditions, action)
	}
	return t.res
}

func (t *translator) orGroup(idx int, c rule.Condition) {
	if len(c.Children) == 0 {
		t.warn("Warning: OR group %d is empty. Skipping.", idx)
		return
	}
	var terms []string
	for j, child := range c.Children {
		if child.Kind == rule.ConditionOrGroup || child.Kind == rule.ConditionPaste {
			t.warn("Warning: OR group %d item %d is a nested %s. Skipping nested item.", idx, j, child.Kind)
			continue
		}
		for _, p := range t.condition(child) {
			if p.IsGroup() {
				terms = append(terms, p.Any...)
			} else {
				terms = append(terms, p.Term)
			}
		}
	}
	if len(terms) == 0 {
		t.warn("Warning: OR group %d yielded no predicates.", idx)
		return
	}
	t.add(AnyOf(terms...))
}

func (t *translator) paste(idx int, c rule.Condition) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		t.warn("Warning: paste_search %d is empty. Skipping.", idx)
		return
	}

	var preds []Predicate
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "system:limit") {
			t.warn("Note: Ignored 'system:limit' in paste_search (line %d).", n+1)
			continue
		}
		var parts []string
		for _, part := range strings.Split(line, " OR ") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		switch {
		case len(parts) > 1:
			preds = append(preds, AnyOf(parts...))
		case len(parts) == 1:
			preds = append(preds, Term(parts[0]))
		}
	}
	if len(preds) == 0 {
		t.warn("Warning: paste_search %d yielded no predicates.", idx)
		return
	}
	t.add(preds...)
}

// guardEmpty refuses an unconstrained search that would match the whole
// catalog.
func (t *translator) guardEmpty(conditions []rule.Condition, action rule.Action) {
	substantive := hasSubstantiveConditions(conditions)
	unsafe := action == nil || !action.Kind().IsTagAction() || t.res.TagServiceKey == ""
	if !substantive && !unsafe {
		return
	}
	prefix := "Warning:"
	if substantive {
		prefix = "CRITICAL Warning:"
	}
	t.warn("%s No search predicates were generated from the rule's conditions or action. "+
		"Running it would match files in an unintended way.", prefix)
}

func hasSubstantiveConditions(conditions []rule.Condition) bool {
	for _, c := range conditions {
		switch c.Kind {
		case rule.ConditionPaste:
			text := strings.TrimSpace(c.Text)
			if text != "" && !strings.HasPrefix(text, "#") {
				return true
			}
		case rule.ConditionOrGroup:
			if len(c.Children) > 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}
