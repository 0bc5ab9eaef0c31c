package translate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
)

func testCatalog() *hydrus.Catalog {
	return hydrus.NewStaticCatalog(
		hydrus.Service{Key: "k-files", Name: "my files", Type: hydrus.ServiceLocalFileDomain},
		hydrus.Service{Key: "k-archive", Name: "archive", Type: hydrus.ServiceLocalFileDomain},
		hydrus.Service{Key: "k-stars", Name: "stars", Type: hydrus.ServiceNumericalRating, MaxStars: 5},
		hydrus.Service{Key: "k-raw", Name: "raw stars", Type: hydrus.ServiceNumericalRating},
		hydrus.Service{Key: "k-like", Name: "favourites", Type: hydrus.ServiceLikeDislikeRating},
		hydrus.Service{Key: "k-count", Name: "counter", Type: hydrus.ServiceIncDecRating},
		hydrus.Service{Key: "k-tags", Name: "my tags", Type: 5},
	)
}

var tagAction = rule.AddTags{ServiceKey: "k-tags", Tags: []string{"x"}}

func TestTranslate_Conditions(t *testing.T) {
	tests := []struct {
		name     string
		cond     rule.Condition
		want     []any
		critical bool
	}{
		{
			name: "tags are anded",
			cond: rule.Condition{Kind: rule.ConditionTags, Operator: "search_terms", Terms: []string{"a", "b"}},
			want: []any{"a", "b"},
		},
		{
			name:     "empty tags",
			cond:     rule.Condition{Kind: rule.ConditionTags, Operator: "search_terms"},
			critical: true,
		},
		{
			name: "no rating",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-stars", Operator: "no_rating"},
			want: []any{"system:no rating for stars"},
		},
		{
			name: "has rating",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-like", Operator: "has_rating"},
			want: []any{"system:has a rating for favourites"},
		},
		{
			name: "like",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-like", Operator: "is", Rating: rule.BoolRating(true)},
			want: []any{"system:rating for favourites is like"},
		},
		{
			name: "dislike",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-like", Operator: "is", Rating: rule.BoolRating(false)},
			want: []any{"system:rating for favourites is dislike"},
		},
		{
			name:     "like with number",
			cond:     rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-like", Operator: "is", Rating: rule.NumberRating(2)},
			critical: true,
		},
		{
			name: "stars equal with max",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-stars", Operator: "is", Rating: rule.NumberRating(3)},
			want: []any{"system:rating for stars = 3/5"},
		},
		{
			name: "stars more than without max",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-raw", Operator: "more_than", Rating: rule.NumberRating(2)},
			want: []any{"system:rating for raw stars > 2"},
		},
		{
			name: "inc dec less than",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-count", Operator: "less_than", Rating: rule.NumberRating(10)},
			want: []any{"system:rating for counter < 10"},
		},
		{
			name: "inc dec not equal",
			cond: rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-count", Operator: "!=", Rating: rule.NumberRating(4)},
			want: []any{[]string{"system:rating for counter < 4", "system:rating for counter > 4"}},
		},
		{
			name:     "unsupported stars operator",
			cond:     rule.Condition{Kind: rule.ConditionRating, ServiceKey: "k-stars", Operator: "between", Rating: rule.NumberRating(3)},
			critical: true,
		},
		{
			name: "file service in",
			cond: rule.Condition{Kind: rule.ConditionFileService, Operator: "is_in", ServiceKey: "k-archive"},
			want: []any{"system:file service currently in archive"},
		},
		{
			name: "file service not in",
			cond: rule.Condition{Kind: rule.ConditionFileService, Operator: "is_not_in", ServiceKey: "k-files"},
			want: []any{"system:file service is not currently in my files"},
		},
		{
			name:     "file service malformed",
			cond:     rule.Condition{Kind: rule.ConditionFileService, Operator: "is_in"},
			critical: true,
		},
		{
			name:     "file service unknown",
			cond:     rule.Condition{Kind: rule.ConditionFileService, Operator: "is_in", ServiceKey: "nope"},
			critical: true,
		},
		{
			name: "filesize whole",
			cond: rule.Condition{Kind: rule.ConditionFilesize, Operator: "=", Number: 200, Unit: "KB"},
			want: []any{"system:filesize ~= 200 kilobytes"},
		},
		{
			name: "filesize not equal",
			cond: rule.Condition{Kind: rule.ConditionFilesize, Operator: "!=", Number: 2.25, Unit: "GB"},
			want: []any{"system:filesize ≠ 2.25 GB"},
		},
		{
			name:     "filesize bad unit",
			cond:     rule.Condition{Kind: rule.ConditionFilesize, Operator: ">", Number: 1, Unit: "TB"},
			critical: true,
		},
		{
			name: "boolean true",
			cond: rule.Condition{Kind: rule.ConditionBoolean, Operator: "has_audio", Bool: true},
			want: []any{"system:has audio"},
		},
		{
			name: "boolean false",
			cond: rule.Condition{Kind: rule.ConditionBoolean, Operator: "inbox", Bool: false},
			want: []any{"-system:inbox"},
		},
		{
			name: "boolean has tags false",
			cond: rule.Condition{Kind: rule.ConditionBoolean, Operator: "has_tags"},
			want: []any{"system:no tags"},
		},
		{
			name:     "boolean unknown flag",
			cond:     rule.Condition{Kind: rule.ConditionBoolean, Operator: "is_shiny", Bool: true},
			critical: true,
		},
		{
			name: "filetype is",
			cond: rule.Condition{Kind: rule.ConditionFiletype, Operator: "is", Terms: []string{"Image/PNG", " video/mp4"}},
			want: []any{"system:filetype = image/png, video/mp4"},
		},
		{
			name: "filetype is not",
			cond: rule.Condition{Kind: rule.ConditionFiletype, Operator: "is_not", Terms: []string{"image/gif"}},
			want: []any{"system:filetype is not image/gif"},
		},
		{
			name: "url specific",
			cond: rule.Condition{Kind: rule.ConditionURL, URLSubtype: "specific", URLType: "url", Operator: "is", Text: "https://x.test/1"},
			want: []any{"system:has url https://x.test/1"},
		},
		{
			name: "domain negated",
			cond: rule.Condition{Kind: rule.ConditionURL, URLSubtype: "specific", URLType: "domain", Operator: "is_not", Text: "x.test"},
			want: []any{"system:does not have domain x.test"},
		},
		{
			name: "regex negated",
			cond: rule.Condition{Kind: rule.ConditionURL, URLSubtype: "specific", URLType: "regex", Operator: "is_not", Text: ".*"},
			want: []any{"system:does not have a url matching regex .*"},
		},
		{
			name:     "unknown url type",
			cond:     rule.Condition{Kind: rule.ConditionURL, URLSubtype: "specific", URLType: "scheme", Operator: "is", Text: "x"},
			critical: true,
		},
		{
			name: "url existence",
			cond: rule.Condition{Kind: rule.ConditionURL, URLSubtype: "existence", Operator: "has_not"},
			want: []any{"system:no urls"},
		},
		{
			name: "url count not equal",
			cond: rule.Condition{Kind: rule.ConditionURL, URLSubtype: "count", Operator: "!=", Number: 2},
			want: []any{[]string{"system:number of urls < 2", "system:number of urls > 2"}},
		},
		{
			name:     "unhandled kind",
			cond:     rule.Condition{Kind: "duration"},
			critical: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Translate([]rule.Condition{tt.cond}, tagAction, testCatalog())

			got := res.Wire()
			// The tag action always contributes a trailing "-x".
			require.NotEmpty(t, got)
			assert.Equal(t, "-x", got[len(got)-1])
			got = got[:len(got)-1]

			if tt.critical {
				assert.NotEmpty(t, res.Critical(), "warnings: %v", res.Warnings)
				assert.Empty(t, got)
				return
			}
			assert.Empty(t, res.Critical(), "warnings: %v", res.Warnings)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslate_UnknownRatingKeyIsCritical(t *testing.T) {
	conds := []rule.Condition{{Kind: rule.ConditionRating, ServiceKey: "missing-key", Operator: "is", Rating: rule.NumberRating(3)}}

	res := Translate(conds, rule.AddTo{Destinations: []string{"k-archive"}}, testCatalog())

	critical := res.Critical()
	require.Len(t, critical, 1)
	assert.Contains(t, critical[0], "Rating service with key missing-key not found. Skipping condition.")
}

func TestTranslate_ActionExclusions(t *testing.T) {
	tests := []struct {
		name   string
		action rule.Action
		want   []any
	}{
		{
			name:   "add_to excludes destination",
			action: rule.AddTo{Destinations: []string{"k-archive", "k-files"}},
			want: []any{
				"system:file service is not currently in archive",
				"system:file service is not currently in my files",
			},
		},
		{
			name:   "force_in builds one group",
			action: rule.ForceIn{Destinations: []string{"k-archive"}},
			want: []any{[]string{
				"system:file service currently in my files",
				"system:file service is not currently in archive",
			}},
		},
		{
			name:   "remove_tags includes tags",
			action: rule.RemoveTags{ServiceKey: "k-tags", Tags: []string{"a", " "}},
			want:   []any{"a"},
		},
		{
			name:   "clear rating",
			action: rule.SetRating{ServiceKey: "k-stars", Value: rule.NoRating},
			want:   []any{"system:has a rating for stars"},
		},
		{
			name:   "like",
			action: rule.SetRating{ServiceKey: "k-like", Value: rule.BoolRating(true)},
			want:   []any{[]string{"system:rating for favourites is dislike", "system:no rating for favourites"}},
		},
		{
			name:   "stars",
			action: rule.SetRating{ServiceKey: "k-stars", Value: rule.NumberRating(4)},
			want: []any{[]string{
				"system:no rating for stars",
				"system:rating for stars < 4/5",
				"system:rating for stars > 4/5",
			}},
		},
	}

	base := []rule.Condition{{Kind: rule.ConditionBoolean, Operator: "inbox", Bool: true}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Translate(base, tt.action, testCatalog())
			assert.Empty(t, res.Critical(), "warnings: %v", res.Warnings)
			got := res.Wire()
			require.NotEmpty(t, got)
			assert.Equal(t, "system:inbox", got[0])
			assert.Equal(t, tt.want, got[1:])
		})
	}
}

func TestTranslate_TagActionScopesSearch(t *testing.T) {
	res := Translate(nil, rule.AddTags{ServiceKey: "k-tags", Tags: []string{"done"}}, testCatalog())
	assert.Equal(t, "k-tags", res.TagServiceKey)
	assert.Equal(t, []any{"-done"}, res.Wire())
	assert.Empty(t, res.Critical())
}

func TestTranslate_EmptyGuard(t *testing.T) {
	t.Run("unsafe action without conditions", func(t *testing.T) {
		res := Translate(nil, rule.AddTo{Destinations: []string{"unknown"}}, testCatalog())
		assert.Empty(t, res.Predicates)
		critical := res.Critical()
		require.Len(t, critical, 1)
		assert.True(t, strings.HasPrefix(critical[0], "Warning: No search predicates"))
	})

	t.Run("substantive conditions that vanish", func(t *testing.T) {
		conds := []rule.Condition{{Kind: rule.ConditionOrGroup, Children: []rule.Condition{{Kind: rule.ConditionPaste, Text: "x"}}}}
		res := Translate(conds, rule.AddTo{Destinations: []string{"unknown"}}, testCatalog())
		assert.Empty(t, res.Predicates)
		var guard []string
		for _, w := range res.Critical() {
			if strings.HasPrefix(w, "CRITICAL Warning:") {
				guard = append(guard, w)
			}
		}
		assert.Len(t, guard, 1)
	})

	t.Run("comment only paste with unsafe action", func(t *testing.T) {
		conds := []rule.Condition{{Kind: rule.ConditionPaste, Text: "# nothing here"}}
		res := Translate(conds, rule.ForceIn{}, hydrus.NewStaticCatalog())
		assert.Empty(t, res.Predicates)
		assert.NotEmpty(t, res.Critical())
	})
}

func TestTranslate_OrGroupRules(t *testing.T) {
	conds := []rule.Condition{
		{Kind: rule.ConditionOrGroup},
		{Kind: rule.ConditionOrGroup, Children: []rule.Condition{
			{Kind: rule.ConditionBoolean, Operator: "inbox", Bool: true},
			{Kind: rule.ConditionRating, ServiceKey: "k-count", Operator: "!=", Rating: rule.NumberRating(1)},
			{Kind: rule.ConditionPaste, Text: "system:archive"},
		}},
	}

	res := Translate(conds, tagAction, testCatalog())
	require.Len(t, res.Predicates, 2)
	assert.Equal(t, AnyOf("system:inbox", "system:rating for counter < 1", "system:rating for counter > 1"), res.Predicates[0])
	assert.Empty(t, res.Critical())
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "OR group 0 is empty")
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "OR group 1 item 2 is a nested paste_search")
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Warning: Rating service with key x not found. Skipping condition.", true},
		{"Warning: Unhandled condition type 'foo'. Skipping.", true},
		{"Warning: Malformed 'file_service' condition (x). Skipping condition.", true},
		{"Note: value missing, but this is only a note", false},
		{"Warning: OR group 0 is empty. Skipping.", false},
		{"Warning: Unknown specific URL type 'x'. Skipping.", true},
		{"CRITICAL Warning: No search predicates were generated.", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCritical(tt.msg), tt.msg)
	}
}

func renderResult(res Result) []byte {
	var b strings.Builder
	b.WriteString("predicates:\n")
	for _, p := range res.Predicates {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("warnings:\n")
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "- %s\n", w)
	}
	fmt.Fprintf(&b, "critical: %d\n", len(res.Critical()))
	key := res.TagServiceKey
	if key == "" {
		key = "(none)"
	}
	fmt.Fprintf(&b, "tag_service_key: %s\n", key)
	return []byte(b.String())
}

func TestTranslate_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	t.Run("force_in_mixed", func(t *testing.T) {
		conds := []rule.Condition{
			{Kind: rule.ConditionTags, Operator: "search_terms", Terms: []string{"creator:alice", " ", "-meta:wip"}},
			{Kind: rule.ConditionRating, ServiceKey: "k-stars", Operator: "!=", Rating: rule.NumberRating(3)},
			{Kind: rule.ConditionFilesize, Operator: ">", Number: 1.5, Unit: "MB"},
			{Kind: rule.ConditionBoolean, Operator: "has_notes", Bool: false},
			{Kind: rule.ConditionOrGroup, Children: []rule.Condition{
				{Kind: rule.ConditionFiletype, Operator: "is", Terms: []string{"IMAGE/PNG"}},
				{Kind: rule.ConditionURL, URLSubtype: "existence", Operator: "has"},
				{Kind: rule.ConditionOrGroup},
			}},
			{Kind: rule.ConditionPaste, Text: "# comment\nsystem:limit = 10\nsystem:inbox OR system:archive\n\nsystem:has audio\n"},
		}
		res := Translate(conds, rule.ForceIn{Destinations: []string{"k-archive"}}, testCatalog())
		g.Assert(t, "force_in_mixed", renderResult(res))
	})

	t.Run("add_tags_only", func(t *testing.T) {
		res := Translate(nil, rule.AddTags{ServiceKey: "k-tags", Tags: []string{"favourite", "todo"}}, testCatalog())
		g.Assert(t, "add_tags_only", renderResult(res))
	})
}
