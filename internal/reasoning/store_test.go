package reasoning

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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	s, err := NewStore(cfg, nil)
	require.NoError(t, err)
	return s
}

func TestStore_AppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, task := range []string{"t1", "t2", "t3"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return ts }
		_, err := s.Append(ctx, "coder", task, "/work/shop", "considered caching then rejected it")
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, "coder", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].TaskID)
	assert.Equal(t, "t2", got[1].TaskID)
	assert.Equal(t, "reasoning", got[0].Type)
	assert.Equal(t, "/work/shop", got[0].Project)
	assert.Equal(t, 35, got[0].CharCount)

	assert.FileExists(t, filepath.Join(s.dir, "coder", "episodic", "episodes.jsonl"))
}

func TestStore_CharCountIsRunes(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Append(context.Background(), "coder", "t", "", "héllo wörld")
	require.NoError(t, err)
	assert.Equal(t, 11, e.CharCount)
}

func TestStore_RecentUnknownAgent(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Recent(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_RecentSkipsOtherLines(t *testing.T) {
	s := newTestStore(t)
	path := s.Path("coder")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	content := `{"type":"reasoning","task_id":"old","content":"a","timestamp":"2025-01-02T03:04:05.123456"}
not json
{"type":"episode","task_id":"other"}

{"type":"reasoning","task_id":"new","content":"b","timestamp":"2025-02-02T03:04:05+00:00"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	got, err := s.Recent(context.Background(), "coder", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].TaskID)
	assert.Equal(t, "old", got[1].TaskID)
	assert.Equal(t, 2025, got[1].Timestamp.Year())
}

func TestStore_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "../escape", "t", "", "text")
	assert.ErrorIs(t, err, ErrInvalidAgent)

	_, err = s.Append(ctx, "coder", "t", "", "   ")
	assert.ErrorIs(t, err, ErrEmptyReasoning)

	_, err = s.Recent(ctx, "", 1)
	assert.ErrorIs(t, err, ErrInvalidAgent)
}
