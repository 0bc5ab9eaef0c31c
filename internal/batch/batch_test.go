package batch

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/butler/internal/hydrus"
)

// recordingDoer fails any request whose body contains a poisoned item.
type recordingDoer struct {
	poisoned map[string]bool
	calls    [][]string
}

func (d *recordingDoer) Do(_ context.Context, req hydrus.Request) hydrus.Response {
	items := req.Body.([]string)
	d.calls = append(d.calls, slices.Clone(items))
	for _, it := range items {
		if d.poisoned[it] {
			return hydrus.Failure(400, "bad item %s", it)
		}
	}
	return hydrus.Response{Success: true, Status: 200}
}

func stringJob(size int) Job[string] {
	return Job[string]{
		Label: "test",
		Size:  size,
		Batch: func(items []string) hydrus.Request { return hydrus.Request{Path: "/batch", Body: items} },
		Item:  func(item string) hydrus.Request { return hydrus.Request{Path: "/item", Body: []string{item}} },
	}
}

func TestRun_RetriesOnlyFailedBatch(t *testing.T) {
	d := &recordingDoer{poisoned: map[string]bool{"c": true}}

	res := Run(context.Background(), d, stringJob(2), []string{"a", "b", "c", "d", "e"})

	assert.ElementsMatch(t, []string{"a", "b", "d", "e"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "c", res.Failed[0].Item)
	assert.Equal(t, 400, res.Failed[0].Status)
	assert.Equal(t, "bad item c", res.Failed[0].Message)
	assert.False(t, res.OK())

	assert.Equal(t, [][]string{
		{"a", "b"},
		{"c", "d"},
		{"c"},
		{"d"},
		{"e"},
	}, d.calls)
}

func TestRun_AllSucceed(t *testing.T) {
	d := &recordingDoer{}

	res := Run(context.Background(), d, stringJob(3), []string{"a", "b", "c", "d"})

	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Succeeded)
	assert.True(t, res.OK())
	assert.Len(t, d.calls, 2)
}

func TestRun_EmptyInputIssuesNoCalls(t *testing.T) {
	d := &recordingDoer{}

	res := Run(context.Background(), d, stringJob(2), nil)

	assert.Empty(t, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Empty(t, d.calls)
}

func TestRun_DefaultSize(t *testing.T) {
	d := &recordingDoer{}
	items := make([]string, DefaultSize+1)
	for i := range items {
		items[i] = string(rune('a' + i%26))
	}

	res := Run(context.Background(), d, stringJob(0), items)

	assert.Len(t, res.Succeeded, DefaultSize+1)
	require.Len(t, d.calls, 2)
	assert.Len(t, d.calls[0], DefaultSize)
	assert.Len(t, d.calls[1], 1)
}

func TestRun_WholeBatchFailsIndividually(t *testing.T) {
	d := &recordingDoer{poisoned: map[string]bool{"a": true, "b": true}}

	res := Run(context.Background(), d, stringJob(2), []string{"a", "b"})

	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "a", res.Failed[0].Item)
	assert.Equal(t, "b", res.Failed[1].Item)
	assert.Len(t, d.calls, 3)
}
