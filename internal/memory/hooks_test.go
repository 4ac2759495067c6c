package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/ralph-memory/internal/hooks"
	"github.com/fyrsmithlabs/ralph-memory/internal/procedural"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestRegisterHooks_InjectsPrompts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, cfg := newTestManager(t, WithMetrics(newTestMetrics(reader)))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := m.WriteProcedural(ctx, procedural.WriteRequest{
			Trigger:  "any tool",
			Behavior: fmt.Sprintf("rule %d", i),
		})
		require.NoError(t, err)
	}
	_, err := m.WriteProcedural(ctx, procedural.WriteRequest{
		Trigger:        "session",
		Behavior:       "read the handoff notes",
		InjectionPoint: procedural.SessionStart,
	})
	require.NoError(t, err)

	hm := hooks.NewHookManager(cfg.Hooks, nil)
	m.RegisterHooks(hm)

	out, err := hm.Execute(ctx, &hooks.Event{Type: hooks.HookPreToolUse, ToolName: "Bash"})
	require.NoError(t, err)
	assert.Len(t, out.Context, cfg.Hooks.MaxInjections)

	out, err = hm.Execute(ctx, &hooks.Event{Type: hooks.HookSessionStart})
	require.NoError(t, err)
	assert.Equal(t, []string{"Based on past experience: read the handoff notes"}, out.Context)

	out, err = hm.Execute(ctx, &hooks.Event{Type: hooks.HookUserPromptSubmit, Prompt: "hi"})
	require.NoError(t, err)
	assert.Empty(t, out.Context)

	assert.Equal(t, int64(6), sumOf(t, reader, "ralph.memory.prompt_injections_total"))
}

func TestRegisterHooks_Disabled(t *testing.T) {
	m, cfg := newTestManager(t)
	ctx := context.Background()
	_, err := m.WriteProcedural(ctx, procedural.WriteRequest{Trigger: "t", Behavior: "b"})
	require.NoError(t, err)

	cfg.Hooks.InjectRules = false
	hm := hooks.NewHookManager(cfg.Hooks, nil)
	m.RegisterHooks(hm)

	out, err := hm.Execute(ctx, &hooks.Event{Type: hooks.HookPreToolUse})
	require.NoError(t, err)
	assert.Empty(t, out.Context)
}
