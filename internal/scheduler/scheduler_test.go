package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_DisabledReturnsImmediately(t *testing.T) {
	called := false
	i := NewInterval("noop", 0, func(context.Context) error { called = true; return nil })
	assert.False(t, i.Enabled())
	require.NoError(t, i.Run(context.Background()))
	assert.False(t, called)
}

func TestInterval_FiresRepeatedly(t *testing.T) {
	var runs atomic.Int32
	i := NewInterval("count", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("failures do not stop the schedule")
	}, WithInitialDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- i.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestInterval_CancelDuringInitialDelay(t *testing.T) {
	var runs atomic.Int32
	i := NewInterval("late", time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, i.Run(ctx))
	assert.Zero(t, runs.Load())
}

func TestWatcher_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(rules, []byte("rules: []\n"), 0o600))

	reloaded := make(chan string, 4)
	w := NewWatcher().WithDebounce(10 * time.Millisecond)
	require.NoError(t, w.Watch(rules, func(_ context.Context, path string) error {
		reloaded <- path
		return nil
	}))
	require.NoError(t, w.Watch("", nil), "empty paths are ignored")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(rules, []byte("rules: []\n# edited\n"), 0o600))

	select {
	case got := <-reloaded:
		want, err := filepath.Abs(rules)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatal("reload not triggered")
	}
}

func TestWatcher_NoFilesReturns(t *testing.T) {
	require.NoError(t, NewWatcher().Run(context.Background()))
}
