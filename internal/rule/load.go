package rule

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// SchemaError reports a rules file that does not match the schema.
type SchemaError struct {
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("rules schema: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("rules schema: %s", e.Message)
}

// LoadFile reads and parses a rules file. Rules are returned in file order.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Parse decodes a YAML rules document.
func Parse(data []byte) ([]Rule, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	seen := make(map[string]bool, len(doc.Rules))
	for _, rd := range doc.Rules {
		if seen[rd.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", rd.ID)
		}
		seen[rd.ID] = true
		rules = append(rules, rd.toRule())
	}
	return rules, nil
}

func validateDocument(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile rules schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatSchemaError(err)
	}
	return nil
}

func formatSchemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &SchemaError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

type fileDoc struct {
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Importance yaml.Node      `yaml:"importance"`
	Priority   yaml.Node      `yaml:"priority"`
	Conditions []conditionDoc `yaml:"conditions"`
	Action     actionDoc      `yaml:"action"`
}

type conditionDoc struct {
	Type             string         `yaml:"type"`
	Operator         string         `yaml:"operator"`
	Value            yaml.Node      `yaml:"value"`
	Unit             string         `yaml:"unit"`
	RatingServiceKey string         `yaml:"rating_service_key"`
	ServiceKey       string         `yaml:"service_key"`
	URLSubtype       string         `yaml:"url_subtype"`
	SpecificType     string         `yaml:"specific_type"`
	Conditions       []conditionDoc `yaml:"conditions"`
}

type actionDoc struct {
	Type                   string    `yaml:"type"`
	DestinationServiceKeys []string  `yaml:"destination_service_keys"`
	TagServiceKey          string    `yaml:"tag_service_key"`
	TagsToProcess          []string  `yaml:"tags_to_process"`
	RatingServiceKey       string    `yaml:"rating_service_key"`
	RatingValue            yaml.Node `yaml:"rating_value"`
}

func (d ruleDoc) toRule() Rule {
	imp := DefaultImportance
	switch {
	case present(d.Importance):
		imp = importanceFromNode(d.Importance)
	case present(d.Priority):
		imp = importanceFromNode(d.Priority)
	}

	conds := make([]Condition, 0, len(d.Conditions))
	for _, cd := range d.Conditions {
		conds = append(conds, cd.toCondition())
	}

	return Rule{
		ID:         d.ID,
		Name:       d.Name,
		Importance: imp,
		Conditions: conds,
		Action:     d.Action.toAction(),
	}
}

func present(n yaml.Node) bool {
	return n.Kind != 0 && n.Tag != "!!null"
}

func importanceFromNode(n yaml.Node) int {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return DefaultImportance
	}
	return ParseImportance(raw)
}

func (d conditionDoc) toCondition() Condition {
	c := Condition{
		Kind:     ConditionKind(d.Type),
		Operator: d.Operator,
	}

	switch c.Kind {
	case ConditionTags:
		if c.Operator == "" {
			c.Operator = "search_terms"
		}
		c.Terms, c.Problem = stringsFromNode(d.Value)
	case ConditionRating:
		c.ServiceKey = d.RatingServiceKey
		if c.ServiceKey == "" {
			c.ServiceKey = d.ServiceKey
		}
		c.Rating, c.Problem = ratingFromNode(d.Value)
	case ConditionFileService:
		c.ServiceKey, c.Problem = scalarFromNode(d.Value)
	case ConditionFilesize:
		c.Unit = d.Unit
		c.Number, c.Problem = numberFromNode(d.Value)
	case ConditionBoolean:
		if err := d.Value.Decode(&c.Bool); err != nil || d.Value.Tag != "!!bool" {
			c.Problem = fmt.Sprintf("expected boolean, got %q", d.Value.Value)
		}
	case ConditionFiletype:
		c.Terms, c.Problem = stringsFromNode(d.Value)
	case ConditionURL:
		c.URLSubtype = d.URLSubtype
		c.URLType = d.SpecificType
		if d.URLSubtype == "count" {
			c.Number, c.Problem = numberFromNode(d.Value)
		} else if present(d.Value) {
			c.Text, c.Problem = scalarFromNode(d.Value)
		}
	case ConditionPaste:
		c.Text, c.Problem = scalarFromNode(d.Value)
	case ConditionOrGroup:
		c.Children = make([]Condition, 0, len(d.Conditions))
		for _, child := range d.Conditions {
			c.Children = append(c.Children, child.toCondition())
		}
	}
	return c
}

func (d actionDoc) toAction() Action {
	var (
		a   Action
		err error
	)
	kind := ActionKind(d.Type)
	switch kind {
	case ActionAddTo:
		a, err = NewAddTo(d.DestinationServiceKeys...)
	case ActionForceIn:
		a, err = NewForceIn(d.DestinationServiceKeys...)
	case ActionAddTags:
		a, err = NewAddTags(d.TagServiceKey, d.TagsToProcess...)
	case ActionRemoveTags:
		a, err = NewRemoveTags(d.TagServiceKey, d.TagsToProcess...)
	case ActionSetRating:
		value, problem := ratingFromNode(d.RatingValue)
		if problem != "" {
			return Invalid{Declared: kind, Err: fmt.Errorf("%w: %s: rating_value %s", ErrInvalidAction, kind, problem)}
		}
		a, err = NewSetRating(d.RatingServiceKey, value)
	default:
		return Invalid{Declared: kind, Err: fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, d.Type)}
	}
	if err != nil {
		return Invalid{Declared: kind, Err: err}
	}
	return a
}

func stringsFromNode(n yaml.Node) ([]string, string) {
	if !present(n) {
		return nil, ""
	}
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, ""
	}
	var out []string
	if err := n.Decode(&out); err != nil {
		return nil, fmt.Sprintf("expected list of strings: %v", err)
	}
	return out, ""
}

func scalarFromNode(n yaml.Node) (string, string) {
	if !present(n) {
		return "", ""
	}
	if n.Kind != yaml.ScalarNode {
		return "", "expected a single value"
	}
	return n.Value, ""
}

func numberFromNode(n yaml.Node) (float64, string) {
	if !present(n) {
		return 0, "value missing"
	}
	if n.Kind != yaml.ScalarNode {
		return 0, "expected a number"
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64)
	if err != nil {
		return 0, fmt.Sprintf("%q is not a number", n.Value)
	}
	return f, ""
}

func ratingFromNode(n yaml.Node) (RatingValue, string) {
	if !present(n) {
		return NoRating, ""
	}
	switch n.Tag {
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return NoRating, err.Error()
		}
		return BoolRating(b), ""
	case "!!int", "!!float":
		f, problem := numberFromNode(n)
		return NumberRating(f), problem
	}
	return NoRating, fmt.Sprintf("%q is not a rating value", n.Value)
}
