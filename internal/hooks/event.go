package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// maxEventSize bounds the hook payload read from stdin.
const maxEventSize = 1024 * 1024

// Event is the payload the hook runner passes on stdin.
type Event struct {
	Type           HookType        `json:"hook_event_name"`
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path"`
	CWD            string          `json:"cwd"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	Prompt         string          `json:"prompt,omitempty"`
	Trigger        string          `json:"trigger,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Project names the project the event belongs to: the base name of the
// working directory.
func (e *Event) Project() string {
	if e.CWD == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(e.CWD))
}

// ParseEvent decodes a hook payload. fallback is used when the payload
// does not name its event.
func ParseEvent(r io.Reader, fallback HookType) (*Event, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEventSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading hook event: %w", err)
	}
	if len(data) > maxEventSize {
		return nil, fmt.Errorf("hook event exceeds %d bytes", maxEventSize)
	}

	ev := &Event{}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decoding hook event: %w", err)
		}
	}

	if ev.Type == "" {
		ev.Type = fallback
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: event name missing", ErrUnknownHook)
	}
	t, err := ParseHookType(string(ev.Type))
	if err != nil {
		return nil, err
	}
	ev.Type = t
	return ev, nil
}

// Output collects what handlers want to tell the assistant.
type Output struct {
	Event   HookType
	Context []string
}

// AddContext appends non-empty text to the additional context.
func (o *Output) AddContext(text ...string) {
	for _, t := range text {
		if strings.TrimSpace(t) != "" {
			o.Context = append(o.Context, t)
		}
	}
}

type hookSpecificOutput struct {
	HookEventName     HookType `json:"hookEventName"`
	AdditionalContext string   `json:"additionalContext"`
}

// Encode writes the hook response. Nothing is written when there is no
// context to add.
func (o *Output) Encode(w io.Writer) error {
	if len(o.Context) == 0 {
		return nil
	}
	resp := struct {
		HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
	}{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:     o.Event,
			AdditionalContext: strings.Join(o.Context, "\n"),
		},
	}
	return json.NewEncoder(w).Encode(resp)
}
