// Package server exposes rule runs and the service catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/butler/internal/engine"
	"github.com/roach88/butler/internal/hydrus"
	"github.com/roach88/butler/internal/rule"
)

// Runner executes rules.
type Runner interface {
	RunAll(ctx context.Context, rules []rule.Rule) (engine.RunResult, error)
	RunOne(ctx context.Context, r rule.Rule) (engine.RuleResult, error)
}

// Services is the cached service catalog.
type Services interface {
	All() []hydrus.Service
	Len() int
	LoadedAt() time.Time
	Refresh(ctx context.Context) error
}

// Server routes HTTP triggers to the engine.
type Server struct {
	runner   Runner
	rules    *rule.Set
	services Services
	router   *chi.Mux
}

// New returns a Server with its routes installed.
func New(runner Runner, rules *rule.Set, services Services) *Server {
	s := &Server{runner: runner, rules: rules, services: services}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	// Runs wait on the run lock and may take minutes; no request timeout.
	r.Post("/runs", s.handleRunAll)
	r.Post("/rules/{ruleId}/run", s.handleRunRule)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/services", s.handleListServices)
		r.Post("/services/refresh", s.handleRefreshServices)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"rules_loaded":    s.rules.Len(),
		"services_loaded": s.services.Len(),
	})
}

type ruleResponse struct {
	engine.RuleResult
	ErrorCode engine.RunErrorCode `json:"error_code,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func newRuleResponse(rr engine.RuleResult) ruleResponse {
	resp := ruleResponse{RuleResult: rr}
	if rr.Err != nil {
		resp.ErrorCode = rr.Err.Code
		resp.Error = rr.Err.Error()
	}
	return resp
}

type runResponse struct {
	RunID   string         `json:"run_id"`
	Type    string         `json:"type"`
	Status  engine.Status  `json:"status"`
	Summary string         `json:"summary"`
	Rules   []ruleResponse `json:"rules"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.RunAll(r.Context(), s.rules.Rules())

	resp := runResponse{
		RunID:   res.RunID,
		Type:    res.Type,
		Status:  res.Status,
		Summary: res.Summary(),
		Rules:   make([]ruleResponse, len(res.Rules)),
	}
	for i, rr := range res.Rules {
		resp.Rules[i] = newRuleResponse(rr)
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		if !engine.IsAbort(err) {
			// The run never started, e.g. the lock wait was cancelled.
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleRunRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	target, ok := s.rules.Find(ruleID)
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":       "rule not found",
			"rule":        ruleID,
			"suggestions": s.rules.Suggest(ruleID, 3),
		})
		return
	}

	rr, err := s.runner.RunOne(r.Context(), target)
	resp := newRuleResponse(rr)
	if err != nil {
		if resp.Error == "" {
			resp.Error = err.Error()
		}
		status := http.StatusInternalServerError
		if !engine.IsAbort(err) {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type serviceResponse struct {
	Key        string             `json:"service_key"`
	Name       string             `json:"name"`
	Type       hydrus.ServiceType `json:"type"`
	TypePretty string             `json:"type_pretty,omitempty"`
	MaxStars   int                `json:"max_stars,omitempty"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	all := s.services.All()
	out := make([]serviceResponse, len(all))
	for i, svc := range all {
		out[i] = serviceResponse{
			Key:        svc.Key,
			Name:       svc.Name,
			Type:       svc.Type,
			TypePretty: svc.TypePretty,
			MaxStars:   svc.MaxStars,
		}
	}

	var loadedAt *time.Time
	if t := s.services.LoadedAt(); !t.IsZero() {
		loadedAt = &t
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"services":  out,
		"count":     len(out),
		"loaded_at": loadedAt,
	})
}

func (s *Server) handleRefreshServices(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Refresh(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, "refresh services failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "refreshed",
		"count":  s.services.Len(),
	})
}

// requestLogger logs each request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
