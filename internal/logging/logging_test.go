package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/roach88/butler/internal/logging"
)

func TestGetLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"info", slog.LevelInfo},
		{"Debug", slog.LevelDebug},
	}
	for _, tt := range tests {
		got, err := logging.GetLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logging.GetLevel("loud")
	require.ErrorIs(t, err, logging.ErrUnknownLogLevel)
}

func TestGetFormat(t *testing.T) {
	t.Parallel()

	for _, f := range logging.AllFormats {
		got, err := logging.GetFormat(f)
		require.NoError(t, err)
		assert.Equal(t, logging.Format(f), got)
	}

	_, err := logging.GetFormat("xml")
	require.ErrorIs(t, err, logging.ErrUnknownLogFormat)
}

func TestCreateHandlerWithStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h, err := logging.CreateHandlerWithStrings(&buf, "info", "json")
	require.NoError(t, err)

	slog.New(h).Info("rule finished", "rule", "r1", "status", "success_no_matches")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "rule finished", rec["msg"])
	assert.Equal(t, "r1", rec["rule"])
	assert.Contains(t, rec, "source")

	_, err = logging.CreateHandlerWithStrings(&buf, "nope", "json")
	require.ErrorIs(t, err, logging.ErrInvalidArgument)
	_, err = logging.CreateHandlerWithStrings(&buf, "info", "nope")
	require.ErrorIs(t, err, logging.ErrUnknownLogFormat)
}

func TestCreateHandler_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(logging.CreateHandler(&buf, slog.LevelWarn, logging.FormatLogfmt))

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestCreateHandler_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(logging.CreateHandler(&buf, slog.LevelInfo, logging.FormatText))

	logger.Info("batch finished", "succeeded", 4)

	assert.Contains(t, buf.String(), "batch finished")
	assert.Contains(t, buf.String(), "succeeded=4")
}

func TestWithContext_PrefersStoredLogger(t *testing.T) {
	t.Parallel()

	stored := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := logging.NewContext(context.Background(), stored)

	assert.Same(t, stored, logging.WithContext(ctx))
}

func TestWithContext_AddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "run")
	defer span.End()

	logging.WithContext(ctx).Info("traced")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	traceID := span.SpanContext().TraceID().String()
	assert.Equal(t, traceID[:8], rec["trace_id"])
}

func TestWithContext_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.Same(t, slog.Default(), logging.WithContext(context.Background()))
}
