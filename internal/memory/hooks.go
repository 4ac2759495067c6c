package memory

import (
	"context"

	"github.com/fyrsmithlabs/ralph-memory/internal/hooks"
	"github.com/fyrsmithlabs/ralph-memory/internal/procedural"
	"go.uber.org/zap"
)

// injectionHooks are the events that carry rule prompts back to the
// assistant. Each maps to the injection point of the same name.
var injectionHooks = []hooks.HookType{
	hooks.HookSessionStart,
	hooks.HookPreToolUse,
	hooks.HookUserPromptSubmit,
}

// RegisterHooks adds rule prompt injection to the hook manager when
// enabled. At most MaxInjections prompts are added per event.
func (m *Manager) RegisterHooks(hm *hooks.HookManager) {
	cfg := hm.Config()
	if !cfg.InjectRules || cfg.MaxInjections == 0 {
		m.logger.Debug("rule injection disabled")
		return
	}
	limit := cfg.MaxInjections
	for _, t := range injectionHooks {
		hm.RegisterHandler(t, func(ctx context.Context, ev *hooks.Event, out *hooks.Output) error {
			return m.injectPrompts(ctx, ev, out, limit)
		})
	}
}

func (m *Manager) injectPrompts(ctx context.Context, ev *hooks.Event, out *hooks.Output, limit int) error {
	prompts, err := m.rules.GetPromptInjections(ctx, procedural.InjectionPoint(ev.Type))
	if err != nil {
		return err
	}
	if len(prompts) > limit {
		prompts = prompts[:limit]
	}
	out.AddContext(prompts...)
	m.metrics.injected(ctx, string(ev.Type), len(prompts))

	if len(prompts) > 0 {
		m.logger.Debug("rule prompts injected",
			zap.String("hook", string(ev.Type)),
			zap.String("session_id", ev.SessionID),
			zap.Int("count", len(prompts)))
	}
	return nil
}
