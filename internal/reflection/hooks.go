package reflection

import (
	"context"

	"github.com/fyrsmithlabs/ralph-memory/internal/hooks"
	"go.uber.org/zap"
)

// RegisterHooks wires the cold path to session lifecycle events. SessionEnd
// and PreCompact run extraction then pattern mining, each gated by its
// hooks setting. Nothing is registered while the cold path is disabled.
func (x *Executor) RegisterHooks(m *hooks.HookManager) {
	if !x.cfg.ColdPath.Enabled {
		x.logger.Debug("cold path disabled, reflection hooks not registered")
		return
	}
	cfg := m.Config()
	if cfg.ExtractOnSessionEnd {
		m.RegisterHandler(hooks.HookSessionEnd, x.handleTranscriptEvent)
	}
	if cfg.ExtractOnPreCompact {
		m.RegisterHandler(hooks.HookPreCompact, x.handleTranscriptEvent)
	}
}

func (x *Executor) handleTranscriptEvent(ctx context.Context, ev *hooks.Event, _ *hooks.Output) error {
	if ev.TranscriptPath == "" {
		x.logger.Debug("hook event without transcript, skipping extraction",
			zap.String("hook", string(ev.Type)),
			zap.String("session_id", ev.SessionID))
		return nil
	}

	if _, err := x.Extract(ctx, ev.TranscriptPath, ev.Project(), ev.SessionID); err != nil {
		return err
	}
	_, err := x.RunPatterns(ctx)
	return err
}
