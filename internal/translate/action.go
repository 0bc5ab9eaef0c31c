package translate

import (
	"fmt"
	"strings"

	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
)

// action adds predicates that exclude files already in the action's target
// state, so that a rule is idempotent absent conflicts.
func (t *translator) action(a rule.Action) {
	switch act := a.(type) {
	case rule.AddTo:
		for _, key := range act.Destinations {
			svc, ok := t.services.Lookup(key)
			if !ok {
				t.warn("Warning: Action 'add_to': service key '%s' not found for exclusion. Skipping exclusion.", key)
				continue
			}
			t.add(Term("system:file service is not currently in " + svc.Name))
		}

	case rule.ForceIn:
		t.forceIn(act)

	case rule.AddTags:
		t.res.TagServiceKey = act.ServiceKey
		for _, tag := range act.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				t.add(Term("-" + tag))
			}
		}
		t.warn("Note: 'add_tags' predicates are evaluated against tag service '%s'.", act.ServiceKey)

	case rule.RemoveTags:
		t.res.TagServiceKey = act.ServiceKey
		for _, tag := range act.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				t.add(Term(tag))
			}
		}
		t.warn("Note: 'remove_tags' predicates are evaluated against tag service '%s'.", act.ServiceKey)

	case rule.SetRating:
		t.setRating(act)
	}
}

func (t *translator) forceIn(act rule.ForceIn) {
	targets := make(map[string]bool, len(act.Destinations))
	for _, k := range act.Destinations {
		if k != "" {
			targets[k] = true
		}
	}
	if len(targets) == 0 {
		t.warn("Warning: Action 'force_in': destination keys missing. Cannot build search predicates.")
		return
	}

	var group []string
	for _, svc := range t.services.LocalFileDomains() {
		if !targets[svc.Key] && svc.Name != "" {
			group = append(group, "system:file service currently in "+svc.Name)
		}
	}
	for _, key := range act.Destinations {
		svc, ok := t.services.Lookup(key)
		if !ok {
			t.warn("Warning: Action 'force_in': target key '%s' not found for exclusion part.", key)
			continue
		}
		group = append(group, "system:file service is not currently in "+svc.Name)
	}
	if len(group) == 0 {
		t.warn("Note: Action 'force_in': could not build an OR group.")
		return
	}
	t.add(AnyOf(group...))
}

func (t *translator) setRating(act rule.SetRating) {
	svc, ok := t.services.Lookup(act.ServiceKey)
	if !ok {
		t.warn("Warning: Action modify_rating: service key '%s' not found for exclusion. Skipping exclusion predicates.", act.ServiceKey)
		return
	}

	name := svc.Name
	switch act.Value.Kind {
	case rule.RatingNone:
		t.add(Term("system:has a rating for " + name))

	case rule.RatingBool:
		if svc.Type != hydrus.ServiceLikeDislikeRating {
			t.warn("Note: Action modify_rating (bool) for non-like/dislike service '%s'. No exclusion.", name)
			return
		}
		other := "dislike"
		if !act.Value.Bool {
			other = "like"
		}
		t.add(AnyOf(
			fmt.Sprintf("system:rating for %s is %s", name, other),
			"system:no rating for "+name,
		))

	case rule.RatingNumber:
		n := int64(act.Value.Number)
		suffix := ""
		switch svc.Type {
		case hydrus.ServiceNumericalRating:
			if svc.MaxStars > 0 {
				suffix = fmt.Sprintf("/%d", svc.MaxStars)
			}
		case hydrus.ServiceIncDecRating:
		default:
			t.warn("Note: Action modify_rating (number) for non-numerical service '%s'. No exclusion.", name)
			return
		}
		t.add(AnyOf(
			"system:no rating for "+name,
			fmt.Sprintf("system:rating for %s < %d%s", name, n, suffix),
			fmt.Sprintf("system:rating for %s > %d%s", name, n, suffix),
		))
	}
}
