package rule

import (
	"errors"
	"fmt"
	"strings"
)

// ActionKind identifies an action variant.
type ActionKind string

const (
	ActionAddTo      ActionKind = "add_to"
	ActionForceIn    ActionKind = "force_in"
	ActionAddTags    ActionKind = "add_tags"
	ActionRemoveTags ActionKind = "remove_tags"
	ActionSetRating  ActionKind = "modify_rating"
)

// IsTagAction reports whether the kind only adds or removes tags.
func (k ActionKind) IsTagAction() bool {
	return k == ActionAddTags || k == ActionRemoveTags
}

// IsPlacement reports whether the kind moves or copies files between
// local file domains.
func (k ActionKind) IsPlacement() bool {
	return k == ActionAddTo || k == ActionForceIn
}

// ErrInvalidAction is wrapped by every action validation failure.
var ErrInvalidAction = errors.New("invalid action")

// Action is a closed union of the things a rule can do to matched assets.
// The concrete types are AddTo, ForceIn, AddTags, RemoveTags, SetRating and
// Invalid.
type Action interface {
	Kind() ActionKind
	Validate() error
	sealed()
}

// AddTo copies assets into every destination without removing them from
// anywhere else.
type AddTo struct {
	Destinations []string
}

// ForceIn places assets in exactly the destinations, deleting them from all
// other local file domains.
type ForceIn struct {
	Destinations []string
}

// AddTags adds tags on one tag service.
type AddTags struct {
	ServiceKey string
	Tags       []string
}

// RemoveTags removes tags on one tag service.
type RemoveTags struct {
	ServiceKey string
	Tags       []string
}

// SetRating sets (or clears, for NoRating) a rating on one rating service.
type SetRating struct {
	ServiceKey string
	Value      RatingValue
}

// Invalid stands in for an action that failed construction. The rule is
// kept so it can be reported, but it is never executed.
type Invalid struct {
	Declared ActionKind
	Err      error
}

func (AddTo) Kind() ActionKind      { return ActionAddTo }
func (ForceIn) Kind() ActionKind    { return ActionForceIn }
func (AddTags) Kind() ActionKind    { return ActionAddTags }
func (RemoveTags) Kind() ActionKind { return ActionRemoveTags }
func (SetRating) Kind() ActionKind  { return ActionSetRating }
func (a Invalid) Kind() ActionKind  { return a.Declared }

func (AddTo) sealed()      {}
func (ForceIn) sealed()    {}
func (AddTags) sealed()    {}
func (RemoveTags) sealed() {}
func (SetRating) sealed()  {}
func (Invalid) sealed()    {}

func (a AddTo) Validate() error   { return validateDestinations(ActionAddTo, a.Destinations) }
func (a ForceIn) Validate() error { return validateDestinations(ActionForceIn, a.Destinations) }

func (a AddTags) Validate() error    { return validateTags(ActionAddTags, a.ServiceKey, a.Tags) }
func (a RemoveTags) Validate() error { return validateTags(ActionRemoveTags, a.ServiceKey, a.Tags) }

func (a SetRating) Validate() error {
	if strings.TrimSpace(a.ServiceKey) == "" {
		return fmt.Errorf("%w: %s: rating_service_key missing", ErrInvalidAction, ActionSetRating)
	}
	return nil
}

func (a Invalid) Validate() error {
	if a.Err == nil {
		return fmt.Errorf("%w: %s", ErrInvalidAction, a.Declared)
	}
	return a.Err
}

func validateDestinations(kind ActionKind, keys []string) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s: destination_service_keys missing", ErrInvalidAction, kind)
	}
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: %s: destination_service_keys[%d] is blank", ErrInvalidAction, kind, i)
		}
	}
	return nil
}

func validateTags(kind ActionKind, serviceKey string, tags []string) error {
	if strings.TrimSpace(serviceKey) == "" {
		return fmt.Errorf("%w: %s: tag_service_key missing", ErrInvalidAction, kind)
	}
	if len(tags) == 0 {
		return fmt.Errorf("%w: %s: tags_to_process missing", ErrInvalidAction, kind)
	}
	for i, t := range tags {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: %s: tags_to_process[%d] is blank", ErrInvalidAction, kind, i)
		}
	}
	return nil
}

// NewAddTo builds a validated AddTo.
func NewAddTo(destinations ...string) (Action, error) {
	a := AddTo{Destinations: destinations}
	return validated(a)
}

// NewForceIn builds a validated ForceIn.
func NewForceIn(destinations ...string) (Action, error) {
	a := ForceIn{Destinations: destinations}
	return validated(a)
}

// NewAddTags builds a validated AddTags.
func NewAddTags(serviceKey string, tags ...string) (Action, error) {
	return validated(AddTags{ServiceKey: serviceKey, Tags: tags})
}

// NewRemoveTags builds a validated RemoveTags.
func NewRemoveTags(serviceKey string, tags ...string) (Action, error) {
	return validated(RemoveTags{ServiceKey: serviceKey, Tags: tags})
}

// NewSetRating builds a validated SetRating.
func NewSetRating(serviceKey string, value RatingValue) (Action, error) {
	return validated(SetRating{ServiceKey: serviceKey, Value: value})
}

func validated(a Action) (Action, error) {
	if err := a.Validate(); err != nil {
		return Invalid{Declared: a.Kind(), Err: err}, err
	}
	return a, nil
}

// Destinations returns the destination keys of a placement action, or nil.
func Destinations(a Action) []string {
	switch v := a.(type) {
	case AddTo:
		return v.Destinations
	case ForceIn:
		return v.Destinations
	}
	return nil
}
