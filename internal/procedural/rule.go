package procedural

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for procedural store operations.
var (
	ErrEmptyTrigger      = errors.New("rule trigger cannot be empty")
	ErrEmptyBehavior     = errors.New("rule behavior cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidDecayRate  = errors.New("decay rate cannot be negative")
)

const (
	// DefaultConfidence is the confidence of an explicitly written rule.
	DefaultConfidence = 0.8

	// ActiveThreshold is the minimum confidence for a rule to be served.
	ActiveThreshold = 0.5

	// UnusedDecayFloor bounds DecayConfidence. Age decay in Merge uses its
	// own, configurable floor.
	UnusedDecayFloor = 0.1

	// legacyDefaultConfidence is assumed for stored rules that carry none.
	legacyDefaultConfidence = 0.5

	promptPrefix = "Based on past experience: "
	idPrefix     = "proc-"
)

// InjectionPoint names the hook stage at which a rule's prompt is injected.
type InjectionPoint string

const (
	PreToolUse       InjectionPoint = "PreToolUse"
	PostToolUse      InjectionPoint = "PostToolUse"
	SessionStart     InjectionPoint = "SessionStart"
	UserPromptSubmit InjectionPoint = "UserPromptSubmit"
)

// Rule is a learned trigger to behavior mapping.
//
// Rules round-trip through JSON without losing fields this version does not
// know about; see UnmarshalJSON for the accepted legacy field names.
type Rule struct {
	ID             string
	Trigger        string
	Behavior       string
	Rationale      string
	SourceEpisodes []string
	Confidence     float64
	CreatedAt      time.Time
	LastApplied    *time.Time
	TimesApplied   int
	InjectionPoint InjectionPoint
	PromptTemplate string
	Active         bool

	// DecayedAt marks how far age decay has been applied. Nil means the
	// rule has not been age-decayed since CreatedAt.
	DecayedAt *time.Time

	// Extra holds fields not recognized by this version.
	Extra map[string]json.RawMessage
}

// NewRule returns an active rule with the default prompt template.
func NewRule(id, trigger, behavior, rationale string, confidence float64, now time.Time) Rule {
	return Rule{
		ID:             id,
		Trigger:        trigger,
		Behavior:       behavior,
		Rationale:      rationale,
		SourceEpisodes: []string{},
		Confidence:     confidence,
		CreatedAt:      now.UTC(),
		InjectionPoint: PreToolUse,
		PromptTemplate: promptPrefix + behavior,
		Active:         true,
	}
}

// NewID returns a fresh rule id of the form proc-<8 hex>.
func NewID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// wireRule is the current field layout.
type wireRule struct {
	ID             string         `json:"rule_id"`
	Trigger        string         `json:"trigger"`
	Behavior       string         `json:"behavior"`
	Rationale      string         `json:"rationale"`
	SourceEpisodes []string       `json:"source_episodes"`
	Confidence     float64        `json:"confidence"`
	CreatedAt      *time.Time     `json:"created_at"`
	LastApplied    *time.Time     `json:"last_applied"`
	TimesApplied   int            `json:"times_applied"`
	InjectionPoint InjectionPoint `json:"injection_point"`
	PromptTemplate string         `json:"prompt_template"`
	Active         bool           `json:"active"`
	DecayedAt      *time.Time     `json:"decayed_at,omitempty"`
}

var knownFields = map[string]bool{
	"rule_id": true, "trigger": true, "behavior": true, "rationale": true,
	"source_episodes": true, "confidence": true, "created_at": true,
	"last_applied": true, "times_applied": true, "injection_point": true,
	"prompt_template": true, "active": true, "decayed_at": true,
	// legacy names
	"created": true, "apply_count": true,
}

// MarshalJSON writes the current layout plus any preserved unknown fields.
func (r Rule) MarshalJSON() ([]byte, error) {
	w := wireRule{
		ID:             r.ID,
		Trigger:        r.Trigger,
		Behavior:       r.Behavior,
		Rationale:      r.Rationale,
		SourceEpisodes: r.SourceEpisodes,
		Confidence:     r.Confidence,
		LastApplied:    r.LastApplied,
		TimesApplied:   r.TimesApplied,
		InjectionPoint: r.InjectionPoint,
		PromptTemplate: r.PromptTemplate,
		Active:         r.Active,
		DecayedAt:      r.DecayedAt,
	}
	if w.SourceEpisodes == nil {
		w.SourceEpisodes = []string{}
	}
	if !r.CreatedAt.IsZero() {
		created := r.CreatedAt
		w.CreatedAt = &created
	}
	if len(r.Extra) == 0 {
		return json.Marshal(w)
	}

	known, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(r.Extra)+len(knownFields))
	for k, v := range r.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the current layout and the legacy one.
//
// Legacy mapping: "created" -> created_at, "apply_count" -> times_applied.
// Missing confidence reads as 0.5, missing injection_point as PreToolUse,
// missing active as true, missing rule_id as "unknown". Timestamps may be
// RFC 3339 or naive ISO 8601 (read as UTC).
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rule := Rule{
		ID:             "unknown",
		Confidence:     legacyDefaultConfidence,
		InjectionPoint: PreToolUse,
		Active:         true,
	}

	var err error
	field := func(key string, dst any) {
		if err != nil {
			return
		}
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return
		}
		if e := json.Unmarshal(v, dst); e != nil {
			err = fmt.Errorf("rule field %s: %w", key, e)
		}
	}
	timeField := func(key string) *time.Time {
		var s string
		field(key, &s)
		if s == "" {
			return nil
		}
		t, ok := parseTimestamp(s)
		if !ok {
			if err == nil {
				err = fmt.Errorf("rule field %s: invalid timestamp %q", key, s)
			}
			return nil
		}
		return &t
	}

	field("rule_id", &rule.ID)
	field("trigger", &rule.Trigger)
	field("behavior", &rule.Behavior)
	field("rationale", &rule.Rationale)
	field("source_episodes", &rule.SourceEpisodes)
	field("confidence", &rule.Confidence)
	field("apply_count", &rule.TimesApplied)
	field("times_applied", &rule.TimesApplied)
	field("injection_point", &rule.InjectionPoint)
	field("prompt_template", &rule.PromptTemplate)
	field("active", &rule.Active)

	if t := timeField("created"); t != nil {
		rule.CreatedAt = *t
	}
	if t := timeField("created_at"); t != nil {
		rule.CreatedAt = *t
	}
	rule.LastApplied = timeField("last_applied")
	rule.DecayedAt = timeField("decayed_at")
	if err != nil {
		return err
	}

	if rule.InjectionPoint == "" {
		rule.InjectionPoint = PreToolUse
	}
	if rule.SourceEpisodes == nil {
		rule.SourceEpisodes = []string{}
	}
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if rule.Extra == nil {
			rule.Extra = make(map[string]json.RawMessage)
		}
		rule.Extra[k] = v
	}

	*r = rule
	return nil
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
