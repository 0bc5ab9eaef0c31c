package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/butler/internal/engine"
	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
)

type fakeRunner struct {
	allRules []rule.Rule
	oneRule  *rule.Rule
	allErr   error
	oneErr   error
	result   engine.RuleResult
}

func (f *fakeRunner) RunAll(_ context.Context, rules []rule.Rule) (engine.RunResult, error) {
	f.allRules = rules
	res := engine.RunResult{RunID: "run-1", Type: engine.RunTypeScheduled, Status: engine.RunCompleted}
	for _, r := range rules {
		res.Rules = append(res.Rules, engine.RuleResult{RuleID: r.ID, Status: engine.StatusNoMatches})
	}
	if f.allErr != nil {
		res.Status = engine.RunAborted
	}
	return res, f.allErr
}

func (f *fakeRunner) RunOne(_ context.Context, r rule.Rule) (engine.RuleResult, error) {
	f.oneRule = &r
	res := f.result
	res.RuleID = r.ID
	return res, f.oneErr
}

type fakeServices struct {
	services   []hydrus.Service
	refreshErr error
	refreshed  int
}

func (f *fakeServices) All() []hydrus.Service { return f.services }
func (f *fakeServices) Len() int              { return len(f.services) }
func (f *fakeServices) LoadedAt() time.Time   { return time.Time{} }
func (f *fakeServices) Refresh(context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func testRules() *rule.Set {
	return rule.NewSet(
		rule.Rule{ID: "archive-old", Name: "Archive old", Importance: 1, Action: rule.AddTo{Destinations: []string{"k"}}},
		rule.Rule{ID: "rate-favs", Importance: 2, Action: rule.SetRating{ServiceKey: "k", Value: rule.NumberRating(5)}},
	)
}

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	s := New(&fakeRunner{}, testRules(), &fakeServices{services: []hydrus.Service{{Key: "a"}}})

	rec, body := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["rules_loaded"])
	assert.EqualValues(t, 1, body["services_loaded"])
}

func TestRunAll_UsesCurrentRules(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testRules(), &fakeServices{})

	rec, body := do(t, s, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, string(engine.RunCompleted), body["status"])
	require.Len(t, runner.allRules, 2)
	assert.Len(t, body["rules"], 2)
}

func TestRunAll_PersistenceFailure(t *testing.T) {
	runner := &fakeRunner{allErr: &engine.RunError{Code: engine.ErrCodePersistence, Message: "database write failed"}}
	s := New(runner, testRules(), &fakeServices{})

	rec, body := do(t, s, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "PERSISTENCE")
	assert.Equal(t, string(engine.RunAborted), body["status"])
}

func TestRunAll_NotStarted(t *testing.T) {
	runner := &fakeRunner{allErr: context.Canceled}
	s := New(runner, testRules(), &fakeServices{})

	rec, _ := do(t, s, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunRule(t *testing.T) {
	runner := &fakeRunner{result: engine.RuleResult{
		Status: engine.StatusActionsProcessed,
		Counts: engine.Counts{Matched: 4, Succeeded: 4},
	}}
	s := New(runner, testRules(), &fakeServices{})

	rec, body := do(t, s, http.MethodPost, "/rules/rate-favs/run")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, runner.oneRule)
	assert.Equal(t, "rate-favs", runner.oneRule.ID)
	assert.Equal(t, string(engine.StatusActionsProcessed), body["status"])
	counts := body["counts"].(map[string]any)
	assert.EqualValues(t, 4, counts["matched"])
	assert.NotContains(t, body, "error")
}

func TestRunRule_ByName(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testRules(), &fakeServices{})

	rec, _ := do(t, s, http.MethodPost, "/rules/archive%20old/run")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, runner.oneRule)
	assert.Equal(t, "archive-old", runner.oneRule.ID)
}

func TestRunRule_ReportsRuleError(t *testing.T) {
	runner := &fakeRunner{result: engine.RuleResult{
		Status: engine.StatusTranslationFailed,
		Err:    &engine.RunError{Code: engine.ErrCodeTranslationCritical, Message: "bad condition"},
	}}
	s := New(runner, testRules(), &fakeServices{})

	rec, body := do(t, s, http.MethodPost, "/rules/rate-favs/run")
	assert.Equal(t, http.StatusOK, rec.Code, "rule failures are results, not HTTP errors")
	assert.Equal(t, string(engine.ErrCodeTranslationCritical), body["error_code"])
}

func TestRunRule_NotFoundSuggests(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testRules(), &fakeServices{})

	rec, body := do(t, s, http.MethodPost, "/rules/ratefav/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []any{"rate-favs"}, body["suggestions"])
	assert.Nil(t, runner.oneRule)
}

func TestListServices(t *testing.T) {
	services := &fakeServices{services: []hydrus.Service{
		{Key: "k-files", Name: "my files", Type: hydrus.ServiceLocalFileDomain},
		{Key: "k-stars", Name: "stars", Type: hydrus.ServiceNumericalRating, MaxStars: 5},
	}}
	s := New(&fakeRunner{}, testRules(), services)

	rec, body := do(t, s, http.MethodGet, "/services")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.Nil(t, body["loaded_at"])

	list := body["services"].([]any)
	stars := list[1].(map[string]any)
	assert.Equal(t, "k-stars", stars["service_key"])
	assert.EqualValues(t, 5, stars["max_stars"])
}

func TestRefreshServices(t *testing.T) {
	services := &fakeServices{}
	s := New(&fakeRunner{}, testRules(), services)

	rec, body := do(t, s, http.MethodPost, "/services/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refreshed", body["status"])
	assert.Equal(t, 1, services.refreshed)

	services.refreshErr = errors.New("connection refused")
	rec, body = do(t, s, http.MethodPost, "/services/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "connection refused", body["details"])
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(&fakeRunner{}, testRules(), &fakeServices{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
