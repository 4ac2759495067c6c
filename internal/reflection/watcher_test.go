package reflection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchedExecutor(t *testing.T) *Executor {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.ColdPath.WatchSettle = config.Duration(50 * time.Millisecond)
	x, err := NewExecutor(cfg, nil)
	require.NoError(t, err)
	return x
}

func waitResult(t *testing.T, w *Watcher) WatchResult {
	t.Helper()
	select {
	case res := <-w.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher result")
		return WatchResult{}
	}
}

func TestWatcher_ExtractsSettledTranscript(t *testing.T) {
	x := newWatchedExecutor(t)
	dir := t.TempDir()

	w, err := NewWatcher(x, dir, "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "session-1.jsonl")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"type":"user","message":{"role":"user","content":"Task: migrate the auth service"}}`+"\n"), 0600))

	res := waitResult(t, w)
	require.NoError(t, res.Err)
	assert.Equal(t, path, res.Path)
	require.NotNil(t, res.Episode)
	assert.Equal(t, "migrate the auth service", res.Episode.Task)
	assert.Equal(t, filepath.Base(dir), res.Episode.Project)
	assert.Equal(t, "session-1", res.Episode.SessionID)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	x := newWatchedExecutor(t)
	dir := t.TempDir()

	w, err := NewWatcher(x, dir, "shop")
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("Task: ignored"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.txt"), []byte("Task: picked up"), 0600))

	res := waitResult(t, w)
	require.NoError(t, res.Err)
	assert.Equal(t, "picked up", res.Episode.Task)
	assert.Equal(t, "shop", res.Episode.Project)

	select {
	case extra := <-w.Results():
		t.Fatalf("unexpected result for %s", extra.Path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	x := newWatchedExecutor(t)
	w, err := NewWatcher(x, t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
}

func TestWatcher_MissingDir(t *testing.T) {
	x := newWatchedExecutor(t)
	w, err := NewWatcher(x, filepath.Join(t.TempDir(), "missing"), "")
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Start(context.Background()))
}
