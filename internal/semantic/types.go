package semantic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for semantic store operations.
var (
	ErrEmptyContent      = errors.New("fact content cannot be empty")
	ErrInvalidCategory   = errors.New("invalid fact category")
	ErrInvalidImportance = errors.New("importance must be between 1 and 10")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidTTL        = errors.New("ttl_days must be positive")
)

const (
	// DefaultImportance is applied when a write leaves importance unset.
	DefaultImportance = 5

	// DefaultConfidence is the confidence of a newly written fact.
	DefaultConfidence = 1.0

	// DefaultSearchLimit is the default maximum number of search results.
	DefaultSearchLimit = 10

	idPrefix = "sem-"
)

// Category classifies a fact.
type Category string

const (
	CategoryUserPref      Category = "user_pref"
	CategoryProjectFact   Category = "project_fact"
	CategoryTechDecision  Category = "tech_decision"
	CategoryTeamKnowledge Category = "team_knowledge"
	CategoryGeneral       Category = "general"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryUserPref, CategoryProjectFact, CategoryTechDecision, CategoryTeamKnowledge, CategoryGeneral:
		return true
	}
	return false
}

// Fact is a stable, atomic piece of knowledge.
type Fact struct {
	ID         string    `json:"fact_id"`
	Content    string    `json:"content"`
	Category   Category  `json:"category"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	Importance int       `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// TTLDays is nil for facts that never expire.
	TTLDays *int     `json:"ttl_days"`
	Tags    []string `json:"tags"`
}

// Expired reports whether the fact's TTL has elapsed at now.
func (f *Fact) Expired(now time.Time) bool {
	if f.TTLDays == nil {
		return false
	}
	return f.CreatedAt.Add(time.Duration(*f.TTLDays) * 24 * time.Hour).Before(now)
}

// matches reports a case-insensitive substring match on content or any tag.
// query must already be lower-cased.
func (f *Fact) matches(query string) bool {
	if strings.Contains(strings.ToLower(f.Content), query) {
		return true
	}
	for _, tag := range f.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

// WriteRequest describes a new fact. Zero values select defaults:
// category "general", importance 5, no TTL.
type WriteRequest struct {
	Content    string
	Category   Category
	Source     string
	Importance int
	Tags       []string
	TTLDays    *int
}

// Validate checks the request and fills defaults.
func (r *WriteRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if r.Category == "" {
		r.Category = CategoryGeneral
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	if r.Importance == 0 {
		r.Importance = DefaultImportance
	}
	if r.Importance < 1 || r.Importance > 10 {
		return fmt.Errorf("%w: got %d", ErrInvalidImportance, r.Importance)
	}
	if r.TTLDays != nil && *r.TTLDays <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTTL, *r.TTLDays)
	}
	return nil
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Content    *string
	Importance *int
}

// Validate checks the set fields.
func (r *UpdateRequest) Validate() error {
	if r.Content != nil && strings.TrimSpace(*r.Content) == "" {
		return ErrEmptyContent
	}
	if r.Importance != nil && (*r.Importance < 1 || *r.Importance > 10) {
		return fmt.Errorf("%w: got %d", ErrInvalidImportance, *r.Importance)
	}
	return nil
}

// NewID returns a fresh fact id of the form sem-<12 hex>.
func NewID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
