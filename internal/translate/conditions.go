package translate

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
)

var filesizeOperators = map[string]string{
	"=":  "~=",
	">":  ">",
	"<":  "<",
	"!=": "≠",
}

var filesizeUnits = map[string]string{
	"bytes": "B",
	"KB":    "kilobytes",
	"MB":    "megabytes",
	"GB":    "GB",
}

type flagForms struct {
	positive string
	negative string
	note     string
}

var booleanFlags = map[string]flagForms{
	"inbox":                 {positive: "system:inbox", negative: "-system:inbox"},
	"archive":               {positive: "system:archive", negative: "-system:archive"},
	"local":                 {positive: "system:file service currently in all local files", negative: "system:file service is not currently in all local files"},
	"trashed":               {positive: "system:file service currently in trash", negative: "system:file service is not currently in trash"},
	"deleted":               {positive: "system:is deleted", negative: "-system:is deleted"},
	"has_duration":          {positive: "system:has duration", negative: "system:no duration"},
	"has_audio":             {positive: "system:has audio", negative: "system:no audio"},
	"has_exif":              {positive: "system:has exif", negative: "system:no exif"},
	"has_icc_profile":       {positive: "system:has icc profile", negative: "system:no icc profile"},
	"has_embedded_metadata": {positive: "system:has embedded metadata", negative: "system:no embedded metadata"},
	"has_transparency":      {positive: "system:has transparency", negative: "-system:has transparency"},
	"is_the_best_quality_file_of_its_duplicate_group": {
		positive: "system:is the best quality file of its duplicate group",
		negative: "system:is not the best quality file of its duplicate group",
	},
	"has_tags": {
		positive: "system:has tags",
		negative: "system:no tags",
		note:     "Note: 'has_tags is false' mapped to 'system:no tags'. 'system:untagged' is equivalent.",
	},
	"has_notes": {
		positive: "system:has notes",
		negative: "system:does not have notes",
		note:     "Note: 'has_notes is false' mapped to 'system:does not have notes'.",
	},
}

// condition translates a single non-group condition.
func (t *translator) condition(c rule.Condition) []Predicate {
	prefix := fmt.Sprintf("Condition (type: %s, op: %s): ", orNA(string(c.Kind)), orNA(c.Operator))
	preds, warning := t.translateCondition(c)
	if warning != "" {
		t.warn("%s%s", prefix, warning)
	}
	return preds
}

func (t *translator) translateCondition(c rule.Condition) ([]Predicate, string) {
	switch c.Kind {
	case rule.ConditionTags:
		return t.tags(c)
	case rule.ConditionRating:
		return t.rating(c)
	case rule.ConditionFileService:
		return t.fileService(c)
	case rule.ConditionFilesize:
		return t.filesize(c)
	case rule.ConditionBoolean:
		return t.boolean(c)
	case rule.ConditionFiletype:
		return t.filetype(c)
	case rule.ConditionURL:
		return t.url(c)
	case "":
		return nil, "Warning: Condition has no type. Skipping condition."
	}
	return nil, fmt.Sprintf("Warning: Unhandled condition type '%s'. Skipping.", c.Kind)
}

func (t *translator) tags(c rule.Condition) ([]Predicate, string) {
	if c.Problem != "" {
		return nil, fmt.Sprintf("Warning: Invalid value for tags condition: %s. Skipping condition.", c.Problem)
	}
	if c.Operator != "search_terms" {
		return nil, fmt.Sprintf("Warning: Unsupported operator for tags condition '%s'. Skipping condition.", c.Operator)
	}
	var preds []Predicate
	for _, term := range c.Terms {
		if term = strings.TrimSpace(term); term != "" {
			preds = append(preds, Term(term))
		}
	}
	if len(preds) == 0 {
		return nil, "Warning: Empty tags list in condition. Skipping condition."
	}
	return preds, ""
}

func (t *translator) rating(c rule.Condition) ([]Predicate, string) {
	if c.ServiceKey == "" || c.Operator == "" {
		return nil, "Warning: Rating condition is missing its service key or operator. Skipping condition."
	}
	svc, ok := t.services.Lookup(c.ServiceKey)
	if !ok {
		return nil, fmt.Sprintf("Warning: Rating service with key %s not found. Skipping condition.", c.ServiceKey)
	}
	if c.Problem != "" {
		return nil, fmt.Sprintf("Warning: Invalid value for rating '%s': %s. Skipping condition.", svc.Name, c.Problem)
	}

	base := "system:rating for " + svc.Name
	switch {
	case c.Operator == "no_rating" && c.Rating.Kind == rule.RatingNone:
		return []Predicate{Term("system:no rating for " + svc.Name)}, ""
	case c.Operator == "has_rating" && c.Rating.Kind == rule.RatingNone:
		return []Predicate{Term("system:has a rating for " + svc.Name)}, ""
	}

	switch svc.Type {
	case hydrus.ServiceLikeDislikeRating:
		if c.Operator != "is" {
			return nil, fmt.Sprintf("Warning: Unsupported operator '%s' for like/dislike rating '%s'. Skipping condition.", c.Operator, svc.Name)
		}
		if c.Rating.Kind != rule.RatingBool {
			return nil, fmt.Sprintf("Warning: Invalid value '%s' for like/dislike rating '%s'. Expected boolean. Skipping condition.", c.Rating, svc.Name)
		}
		if c.Rating.Bool {
			return []Predicate{Term(base + " is like")}, ""
		}
		return []Predicate{Term(base + " is dislike")}, ""

	case hydrus.ServiceNumericalRating, hydrus.ServiceIncDecRating:
		label := "numerical"
		suffix := ""
		if svc.Type == hydrus.ServiceIncDecRating {
			label = "inc/dec"
		} else if svc.MaxStars > 0 {
			suffix = fmt.Sprintf("/%d", svc.MaxStars)
		}
		if c.Rating.Kind != rule.RatingNumber {
			return nil, fmt.Sprintf("Warning: Invalid value '%s' for %s rating '%s'. Expected number. Skipping condition.", c.Rating, label, svc.Name)
		}
		n := int64(c.Rating.Number)
		switch c.Operator {
		case "is", "=":
			if svc.Type == hydrus.ServiceNumericalRating && svc.MaxStars <= 0 {
				t.warn("Note: 'is %d' for numerical rating '%s' without max_stars. Plain equality assumed.", n, svc.Name)
			}
			return []Predicate{Term(fmt.Sprintf("%s = %d%s", base, n, suffix))}, ""
		case "more_than", ">":
			return []Predicate{Term(fmt.Sprintf("%s > %d%s", base, n, suffix))}, ""
		case "less_than", "<":
			return []Predicate{Term(fmt.Sprintf("%s < %d%s", base, n, suffix))}, ""
		case "!=":
			lt := fmt.Sprintf("%s < %d%s", base, n, suffix)
			gt := fmt.Sprintf("%s > %d%s", base, n, suffix)
			t.warn("Note: %s rating '!=' for '%s' translated to OR group: [%s, %s].", label, svc.Name, lt, gt)
			return []Predicate{AnyOf(lt, gt)}, ""
		}
		return nil, fmt.Sprintf("Warning: Unsupported operator '%s' for %s rating '%s'. Skipping condition.", c.Operator, label, svc.Name)
	}

	return nil, fmt.Sprintf("Warning: Service '%s' (type %d) is not a supported rating service. Skipping condition.", svc.Name, svc.Type)
}

func (t *translator) fileService(c rule.Condition) ([]Predicate, string) {
	var details []string
	if c.ServiceKey == "" || c.Problem != "" {
		details = append(details, "missing service key (expected in 'value' field)")
	}
	if c.Operator != "is_in" && c.Operator != "is_not_in" {
		details = append(details, fmt.Sprintf("unexpected operator '%s' (expected 'is_in' or 'is_not_in')", c.Operator))
	}
	if len(details) > 0 {
		return nil, fmt.Sprintf("Warning: Malformed 'file_service' condition (%s). Skipping condition.", strings.Join(details, ", "))
	}

	svc, ok := t.services.Lookup(c.ServiceKey)
	if !ok {
		return nil, fmt.Sprintf("Warning: File service key '%s' not found for condition. Skipping condition.", c.ServiceKey)
	}
	if c.Operator == "is_in" {
		return []Predicate{Term("system:file service currently in " + svc.Name)}, ""
	}
	return []Predicate{Term("system:file service is not currently in " + svc.Name)}, ""
}

func (t *translator) filesize(c rule.Condition) ([]Predicate, string) {
	if c.Problem != "" {
		return nil, fmt.Sprintf("Warning: Invalid value for filesize: %s. Skipping condition.", c.Problem)
	}
	op, ok := filesizeOperators[c.Operator]
	if !ok {
		return nil, fmt.Sprintf("Warning: Unsupported operator for filesize '%s'. Skipping condition.", c.Operator)
	}
	unit, ok := filesizeUnits[c.Unit]
	if !ok {
		return nil, fmt.Sprintf("Warning: Invalid value for filesize unit '%s'. Skipping condition.", c.Unit)
	}
	if c.Operator == "!=" {
		t.warn("Note: Filesize '!=' translated to '≠'.")
	}
	return []Predicate{Term(fmt.Sprintf("system:filesize %s %s %s", op, rule.FormatNumber(c.Number), unit))}, ""
}

func (t *translator) boolean(c rule.Condition) ([]Predicate, string) {
	if c.Problem != "" {
		return nil, fmt.Sprintf("Warning: Invalid value for boolean condition '%s': %s. Skipping condition.", c.Operator, c.Problem)
	}
	forms, ok := booleanFlags[c.Operator]
	if !ok {
		return nil, fmt.Sprintf("Warning: Unhandled condition flag '%s' for boolean condition. Skipping.", c.Operator)
	}
	if c.Bool {
		return []Predicate{Term(forms.positive)}, ""
	}
	if forms.note != "" {
		t.warn("%s", forms.note)
	}
	return []Predicate{Term(forms.negative)}, ""
}

func (t *translator) filetype(c rule.Condition) ([]Predicate, string) {
	if c.Problem != "" || len(c.Terms) == 0 {
		return nil, "Warning: Invalid value for filetype: a non-empty list is required. Skipping condition."
	}
	values := make([]string, len(c.Terms))
	for i, v := range c.Terms {
		values[i] = strings.ToLower(strings.TrimSpace(v))
	}
	joined := strings.Join(values, ", ")
	switch c.Operator {
	case "is":
		return []Predicate{Term("system:filetype = " + joined)}, ""
	case "is_not":
		if len(values) > 1 {
			t.warn("Note: 'filetype is not %s' excludes every listed type.", joined)
		}
		return []Predicate{Term("system:filetype is not " + joined)}, ""
	}
	return nil, fmt.Sprintf("Warning: Unsupported operator for filetype '%s'. Skipping condition.", c.Operator)
}

func (t *translator) url(c rule.Condition) ([]Predicate, string) {
	value := strings.TrimSpace(c.Text)
	switch {
	case c.URLSubtype == "specific" && c.URLType != "" && (c.Operator == "is" || c.Operator == "is_not") && value != "":
		verb := "has "
		if c.Operator == "is_not" {
			verb = "does not have "
			if c.URLType == "regex" {
				verb = "does not have a "
			}
		}
		switch c.URLType {
		case "url":
			return []Predicate{Term("system:" + verb + "url " + value)}, ""
		case "domain":
			return []Predicate{Term("system:" + verb + "domain " + value)}, ""
		case "regex":
			return []Predicate{Term("system:" + verb + "url matching regex " + value)}, ""
		}
		return nil, fmt.Sprintf("Warning: Unknown specific URL type '%s'. Skipping.", c.URLType)

	case c.URLSubtype == "existence" && (c.Operator == "has" || c.Operator == "has_not"):
		if c.Operator == "has" {
			return []Predicate{Term("system:has urls")}, ""
		}
		return []Predicate{Term("system:no urls")}, ""

	case c.URLSubtype == "count" && c.Problem == "" && c.Number == math.Trunc(c.Number):
		n := int64(c.Number)
		switch c.Operator {
		case "=", ">", "<":
			return []Predicate{Term(fmt.Sprintf("system:number of urls %s %d", c.Operator, n))}, ""
		case "!=":
			t.warn("Note: URL count '!=' translated to an OR group.")
			return []Predicate{AnyOf(
				fmt.Sprintf("system:number of urls < %d", n),
				fmt.Sprintf("system:number of urls > %d", n),
			)}, ""
		}
		return nil, fmt.Sprintf("Warning: Unsupported operator for URL count '%s'. Skipping condition.", c.Operator)
	}

	details := []string{"subtype: " + orNA(c.URLSubtype)}
	if c.URLSubtype == "specific" {
		details = append(details, "specific type: "+orNA(c.URLType))
	}
	details = append(details, "operator: "+orNA(c.Operator))
	if c.Problem != "" {
		details = append(details, "value: "+c.Problem)
	}
	return nil, fmt.Sprintf("Warning: Incomplete URL condition (%s). Skipping condition.", strings.Join(details, ", "))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
