package reflection

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHooks_SessionEndExtracts(t *testing.T) {
	x, cfg := newTestExecutor(t)
	ctx := context.Background()
	path := writeTranscript(t, "abc.jsonl",
		`{"type":"user","message":{"role":"user","content":"Task: speed up the docker build"}}`+"\n")

	m := hooks.NewHookManager(cfg.Hooks, nil)
	x.RegisterHooks(m)

	for i := 0; i < 3; i++ {
		out, err := m.Execute(ctx, &hooks.Event{
			Type:           hooks.HookSessionEnd,
			SessionID:      "abc",
			TranscriptPath: path,
			CWD:            "/work/shop",
		})
		require.NoError(t, err)
		assert.Empty(t, out.Context)
	}

	recent, err := x.episodes.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "shop", recent[0].Project)

	rules, err := x.rules.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rules)
	assert.Contains(t, rules[0].Trigger, "docker")
}

func TestRegisterHooks_NoTranscript(t *testing.T) {
	x, cfg := newTestExecutor(t)
	m := hooks.NewHookManager(cfg.Hooks, nil)
	x.RegisterHooks(m)

	_, err := m.Execute(context.Background(), &hooks.Event{Type: hooks.HookPreCompact})
	require.NoError(t, err)

	n, err := x.episodes.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegisterHooks_Gated(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		hook   hooks.HookType
	}{
		{"cold path disabled", func(c *config.Config) { c.ColdPath.Enabled = false }, hooks.HookSessionEnd},
		{"session end off", func(c *config.Config) { c.Hooks.ExtractOnSessionEnd = false }, hooks.HookSessionEnd},
		{"pre compact off", func(c *config.Config) { c.Hooks.ExtractOnPreCompact = false }, hooks.HookPreCompact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.RootDir = t.TempDir()
			tt.mutate(cfg)
			x, err := NewExecutor(cfg, nil)
			require.NoError(t, err)

			m := hooks.NewHookManager(cfg.Hooks, nil)
			x.RegisterHooks(m)

			path := writeTranscript(t, "s.txt", "Task: nothing to see")
			_, err = m.Execute(context.Background(), &hooks.Event{Type: tt.hook, TranscriptPath: path})
			require.NoError(t, err)

			n, err := x.episodes.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}
