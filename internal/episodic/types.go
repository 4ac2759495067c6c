package episodic

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for episodic store operations.
var (
	ErrInvalidEpisodeID  = errors.New("invalid episode id")
	ErrEmptyTask         = errors.New("episode task cannot be empty")
	ErrInvalidImportance = errors.New("importance must be between 1 and 10")
)

const (
	// DefaultImportance is applied when an episode leaves importance unset.
	DefaultImportance = 5

	// DefaultSearchLimit is the default maximum number of results.
	DefaultSearchLimit = 10

	// summaryTaskLen bounds the task text copied into the index.
	summaryTaskLen = 100

	idPrefix = "ep-"
)

var episodeIDPattern = regexp.MustCompile(`^ep-[A-Za-z0-9._-]+$`)

// Action is one step taken during an episode.
type Action struct {
	Type        string  `json:"action_type"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
	Success     bool    `json:"success"`
	Error       *string `json:"error"`
}

// UnmarshalJSON also accepts the short {"type", "file"} form written by
// older extraction runs.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        string  `json:"action_type"`
		Target      string  `json:"target"`
		Description string  `json:"description"`
		Success     *bool   `json:"success"`
		Error       *string `json:"error"`
		LegacyType  string  `json:"type"`
		LegacyFile  string  `json:"file"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Action{
		Type:        raw.Type,
		Target:      raw.Target,
		Description: raw.Description,
		Success:     true,
		Error:       raw.Error,
	}
	if a.Type == "" {
		a.Type = raw.LegacyType
	}
	if a.Target == "" {
		a.Target = raw.LegacyFile
	}
	if raw.Success != nil {
		a.Success = *raw.Success
	}
	return nil
}

// Alternative is an option considered and the reason it was or was not taken.
type Alternative struct {
	Option    string `json:"option"`
	Rationale string `json:"rationale"`
}

// Episode is the complete record of one task attempt.
type Episode struct {
	ID        string    `json:"episode_id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Project   string    `json:"project"`

	Task        string   `json:"task"`
	Context     string   `json:"context"`
	Constraints []string `json:"constraints"`

	Approach               string        `json:"approach"`
	AlternativesConsidered []Alternative `json:"alternatives_considered"`
	DecisionFactors        []string      `json:"decision_factors"`

	Actions []Action `json:"actions"`

	Success          bool     `json:"success"`
	TestsPassed      *int     `json:"tests_passed"`
	UserSatisfaction *string  `json:"user_satisfaction"`
	ArtifactsCreated []string `json:"artifacts_created"`

	Learnings []string `json:"learnings"`

	Tags            []string `json:"tags"`
	Importance      int      `json:"importance"`
	DurationMinutes *int     `json:"duration_minutes"`
}

// Month returns the YYYY-MM partition the episode is stored under.
func (e *Episode) Month() string {
	return e.Timestamp.UTC().Format("2006-01")
}

// Summary returns the index entry for the episode.
func (e *Episode) Summary() Summary {
	return Summary{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		Task:       truncate(e.Task, summaryTaskLen),
		Project:    e.Project,
		Success:    e.Success,
		Importance: e.Importance,
		Tags:       append([]string{}, e.Tags...),
	}
}

// prepare fills defaults and validates the episode before it is written.
func (e *Episode) prepare(now time.Time) error {
	if strings.TrimSpace(e.Task) == "" {
		return ErrEmptyTask
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.ID == "" {
		e.ID = NewID(e.Timestamp)
	}
	if !ValidID(e.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidEpisodeID, e.ID)
	}
	if e.Importance == 0 {
		e.Importance = DefaultImportance
	}
	if e.Importance < 1 || e.Importance > 10 {
		return fmt.Errorf("%w: got %d", ErrInvalidImportance, e.Importance)
	}
	return nil
}

// Summary is the lightweight index entry for an episode.
type Summary struct {
	ID         string    `json:"episode_id"`
	Timestamp  time.Time `json:"timestamp"`
	Task       string    `json:"task"`
	Project    string    `json:"project"`
	Success    bool      `json:"success"`
	Importance int       `json:"importance"`
	Tags       []string  `json:"tags"`
}

// SearchQuery filters episodes. All set filters must match.
type SearchQuery struct {
	// Query is a case-insensitive substring of the summary task.
	Query string

	// Tags matches episodes carrying any of the listed tags.
	Tags []string

	Project string
	Limit   int
}

// NewID returns an id of the form ep-YYYYMMDD-HHMMSS-<6 hex>.
func NewID(ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return idPrefix + ts.UTC().Format("20060102-150405") + "-" + suffix
}

// ValidID reports whether id is safe to use as a file name.
func ValidID(id string) bool {
	return episodeIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
