package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/butler/internal/rule"
)

// Decision is the outcome of Decide. Prior is the override consulted, if
// any, so skips can be audited.
type Decision struct {
	Skip   bool
	Reason string
	Prior  *Override
}

// Decide applies the precedence table to one asset. A nil existing
// override always proceeds.
func Decide(existing *Override, c Contender) Decision {
	if existing == nil {
		return Decision{Reason: "no existing override"}
	}
	d := Decision{Prior: existing}

	switch {
	case existing.Importance > c.Importance:
		d.Skip = true
		d.Reason = "existing override is more important"

	case existing.Importance < c.Importance:
		d.Reason = "current rule is more important"

	case existing.RuleID != c.RuleID:
		switch {
		case c.Kind == rule.ActionAddTo && existing.ActionKind == rule.ActionForceIn:
			d.Skip = true
			d.Reason = "add_to defers to force_in of equal importance"
		case c.Kind == rule.ActionForceIn && existing.ActionKind == rule.ActionAddTo:
			d.Reason = "force_in contests add_to of equal importance"
		case c.Kind == existing.ActionKind:
			d.Skip = true
			d.Reason = "first writer at equal importance already won"
		default:
			d.Skip = true
			d.Reason = "differing action kinds at equal importance"
		}

	default:
		if c.Kind == rule.ActionSetRating && existing.Rating != nil && existing.Rating.Equal(c.Rating) {
			d.Skip = true
			d.Reason = "rating already set by this rule"
		} else {
			d.Reason = "same rule reaffirms its override"
		}
	}
	return d
}

// ShouldRecord reports whether c, having just acted successfully, may
// claim the key given the override as it stands now. A rule always
// refreshes its own row.
func ShouldRecord(existing *Override, c Contender) bool {
	if existing == nil || existing.RuleID == c.RuleID {
		return true
	}
	return !Decide(existing, c).Skip
}

// Ledger stores overrides, one per key.
type Ledger interface {
	GetOverride(ctx context.Context, key Key) (*Override, error)
	PutOverride(ctx context.Context, o Override) error
}

// Resolver runs the precedence table against a ledger.
type Resolver struct {
	ledger Ledger
}

// NewResolver returns a Resolver backed by ledger.
func NewResolver(ledger Ledger) *Resolver {
	return &Resolver{ledger: ledger}
}

// Check decides whether c may act on key.
func (r *Resolver) Check(ctx context.Context, key Key, c Contender) (Decision, error) {
	existing, err := r.ledger.GetOverride(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("read override: %w", err)
	}
	return Decide(existing, c), nil
}

// Record re-reads key after a successful action and writes c's claim when
// ShouldRecord allows it. It reports whether a row was written.
func (r *Resolver) Record(ctx context.Context, key Key, c Contender, now time.Time) (bool, error) {
	existing, err := r.ledger.GetOverride(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read override: %w", err)
	}
	if !ShouldRecord(existing, c) {
		return false, nil
	}
	if err := r.ledger.PutOverride(ctx, c.Claim(key, now)); err != nil {
		return false, fmt.Errorf("write override: %w", err)
	}
	return true, nil
}
