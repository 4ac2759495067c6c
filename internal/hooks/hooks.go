package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"go.uber.org/zap"
)

// HookType represents different lifecycle hooks
type HookType string

const (
	// HookSessionStart is called when a new session starts or resumes
	HookSessionStart HookType = "SessionStart"

	// HookSessionEnd is called when a session ends
	HookSessionEnd HookType = "SessionEnd"

	// HookPreCompact is called before the context window is compacted
	HookPreCompact HookType = "PreCompact"

	// HookPreToolUse is called before a tool runs
	HookPreToolUse HookType = "PreToolUse"

	// HookUserPromptSubmit is called when the user submits a prompt
	HookUserPromptSubmit HookType = "UserPromptSubmit"

	// HookStop is called when the assistant finishes responding
	HookStop HookType = "Stop"
)

// ErrUnknownHook is returned by ParseHookType for unrecognized names.
var ErrUnknownHook = errors.New("unknown hook type")

var hookTypes = []HookType{
	HookSessionStart, HookSessionEnd, HookPreCompact,
	HookPreToolUse, HookUserPromptSubmit, HookStop,
}

// ParseHookType accepts the canonical event name in any case, with or
// without separators ("session_end", "session-end", "SessionEnd").
func ParseHookType(s string) (HookType, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(s))
	for _, t := range hookTypes {
		if strings.ToLower(string(t)) == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownHook, s)
}

// HookHandler handles a hook event. Handlers may add assistant context to out.
type HookHandler func(ctx context.Context, ev *Event, out *Output) error

// HookManager manages lifecycle hooks
type HookManager struct {
	config config.HooksConfig
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[HookType][]HookHandler
}

// NewHookManager creates a new hook manager
func NewHookManager(cfg config.HooksConfig, logger *zap.Logger) *HookManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookManager{
		config:   cfg,
		logger:   logger,
		handlers: make(map[HookType][]HookHandler),
	}
}

// RegisterHandler registers a handler for a hook type
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute runs every handler registered for ev.Type in order.
//
// A failing handler does not stop the others: memory is advisory and must
// not block the session. The returned error joins every handler failure;
// the output still carries the context gathered by the handlers that ran.
func (h *HookManager) Execute(ctx context.Context, ev *Event) (*Output, error) {
	out := &Output{Event: ev.Type}

	h.mu.RLock()
	handlers := append([]HookHandler(nil), h.handlers[ev.Type]...)
	h.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := handler(ctx, ev, out); err != nil {
			h.logger.Warn("hook handler failed",
				zap.String("hook", string(ev.Type)),
				zap.String("session_id", ev.SessionID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("hook %s failed: %w", ev.Type, errors.Join(errs...))
	}
	return out, nil
}

// Config returns the hook configuration
func (h *HookManager) Config() config.HooksConfig {
	return h.config
}
