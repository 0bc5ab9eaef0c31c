package rule

import (
	"fmt"
	"time"

	"github.com/roach88/butler/internal/canon"
)

// Version is an immutable snapshot of the parts of a rule that affect what
// it does. Two snapshots with the same rule id, conditions, action and
// importance have the same ID.
type Version struct {
	ID         string
	RuleID     string
	Name       string
	Importance int
	Conditions string
	Action     string
	CreatedAt  time.Time
}

// NewVersion snapshots r. The name is recorded but does not contribute to
// the identity.
func NewVersion(r Rule, now time.Time) (Version, error) {
	conds := make(canon.Array, len(r.Conditions))
	for i, c := range r.Conditions {
		conds[i] = conditionValue(c)
	}
	act := actionValue(r.Action)

	id, err := canon.Hash(canon.DomainRuleVersion, canon.Object{
		"rule_id":    canon.String(r.ID),
		"importance": canon.Int(r.Importance),
		"conditions": conds,
		"action":     act,
	})
	if err != nil {
		return Version{}, fmt.Errorf("version rule %s: %w", r.ID, err)
	}

	condJSON, err := canon.Marshal(conds)
	if err != nil {
		return Version{}, fmt.Errorf("version rule %s: %w", r.ID, err)
	}
	actJSON, err := canon.Marshal(act)
	if err != nil {
		return Version{}, fmt.Errorf("version rule %s: %w", r.ID, err)
	}

	return Version{
		ID:         id,
		RuleID:     r.ID,
		Name:       r.Name,
		Importance: r.Importance,
		Conditions: string(condJSON),
		Action:     string(actJSON),
		CreatedAt:  now,
	}, nil
}

// VersionID is NewVersion(r).ID.
func VersionID(r Rule) (string, error) {
	v, err := NewVersion(r, time.Time{})
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

func conditionValue(c Condition) canon.Object {
	obj := canon.Object{"type": canon.String(c.Kind)}
	if c.Operator != "" {
		obj["operator"] = canon.String(c.Operator)
	}
	if c.ServiceKey != "" {
		obj["service_key"] = canon.String(c.ServiceKey)
	}
	if c.Terms != nil {
		obj["terms"] = canon.Strings(c.Terms)
	}
	if c.Text != "" {
		obj["text"] = canon.String(c.Text)
	}
	if c.Number != 0 {
		obj["number"] = canon.Float(c.Number)
	}
	if c.Unit != "" {
		obj["unit"] = canon.String(c.Unit)
	}
	if c.Kind == ConditionBoolean {
		obj["value"] = canon.Bool(c.Bool)
	}
	if c.Kind == ConditionRating {
		obj["rating"] = ratingValue(c.Rating)
	}
	if c.URLSubtype != "" {
		obj["url_subtype"] = canon.String(c.URLSubtype)
	}
	if c.URLType != "" {
		obj["url_type"] = canon.String(c.URLType)
	}
	if c.Kind == ConditionOrGroup {
		children := make(canon.Array, len(c.Children))
		for i, child := range c.Children {
			children[i] = conditionValue(child)
		}
		obj["conditions"] = children
	}
	if c.Problem != "" {
		obj["problem"] = canon.String(c.Problem)
	}
	return obj
}

func actionValue(a Action) canon.Value {
	switch v := a.(type) {
	case AddTo:
		return canon.Object{"type": canon.String(ActionAddTo), "destinations": canon.Strings(v.Destinations)}
	case ForceIn:
		return canon.Object{"type": canon.String(ActionForceIn), "destinations": canon.Strings(v.Destinations)}
	case AddTags:
		return canon.Object{"type": canon.String(ActionAddTags), "service_key": canon.String(v.ServiceKey), "tags": canon.Strings(v.Tags)}
	case RemoveTags:
		return canon.Object{"type": canon.String(ActionRemoveTags), "service_key": canon.String(v.ServiceKey), "tags": canon.Strings(v.Tags)}
	case SetRating:
		return canon.Object{"type": canon.String(ActionSetRating), "service_key": canon.String(v.ServiceKey), "value": ratingValue(v.Value)}
	case Invalid:
		msg := ""
		if v.Err != nil {
			msg = v.Err.Error()
		}
		return canon.Object{"type": canon.String(v.Declared), "invalid": canon.String(msg)}
	}
	return canon.Null{}
}

func ratingValue(v RatingValue) canon.Value {
	switch v.Kind {
	case RatingBool:
		return canon.Bool(v.Bool)
	case RatingNumber:
		return canon.Float(v.Number)
	}
	return canon.Null{}
}
