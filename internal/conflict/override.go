package conflict

import (
	"time"

	"github.com/roach88/butler/internal/rule"
)

// Dimension is the axis along which two rules can disagree.
type Dimension string

const (
	DimensionPlacement Dimension = "placement"
	DimensionRating    Dimension = "rating"
)

// Key identifies one ledger row. DimensionKey is empty for placement and
// the rating service key for rating.
type Key struct {
	AssetHash    string
	Dimension    Dimension
	DimensionKey string
}

// KeyFor returns the conflict key an action occupies on asset. Tag and
// invalid actions have none.
func KeyFor(asset string, a rule.Action) (Key, bool) {
	switch act := a.(type) {
	case rule.AddTo, rule.ForceIn:
		return Key{AssetHash: asset, Dimension: DimensionPlacement}, true
	case rule.SetRating:
		return Key{AssetHash: asset, Dimension: DimensionRating, DimensionKey: act.ServiceKey}, true
	}
	return Key{}, false
}

// Override is the recorded winner of one key.
type Override struct {
	Key
	RuleID        string
	RuleVersionID string
	Importance    int
	ActionKind    rule.ActionKind
	// Rating is the value set by a winning rating action, nil otherwise.
	Rating    *rule.RatingValue
	Timestamp time.Time
}

// Contender is the rule currently trying to act on an asset.
type Contender struct {
	RuleID        string
	RuleVersionID string
	Importance    int
	Kind          rule.ActionKind
	Rating        rule.RatingValue
}

// ContenderFor describes r as a contender.
func ContenderFor(r rule.Rule, versionID string) Contender {
	c := Contender{
		RuleID:        r.ID,
		RuleVersionID: versionID,
		Importance:    r.Importance,
	}
	if r.Action != nil {
		c.Kind = r.Action.Kind()
	}
	if sr, ok := r.Action.(rule.SetRating); ok {
		c.Rating = sr.Value
	}
	return c
}

// Claim builds the override c would write for key.
func (c Contender) Claim(key Key, now time.Time) Override {
	o := Override{
		Key:           key,
		RuleID:        c.RuleID,
		RuleVersionID: c.RuleVersionID,
		Importance:    c.Importance,
		ActionKind:    c.Kind,
		Timestamp:     now,
	}
	if key.Dimension == DimensionRating {
		v := c.Rating
		o.Rating = &v
	}
	return o
}
