package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ralph-memory/internal/episodic"
	"github.com/fyrsmithlabs/ralph-memory/internal/procedural"
	"github.com/fyrsmithlabs/ralph-memory/internal/semantic"
)

// MemoryType names one of the stores.
type MemoryType string

const (
	TypeSemantic   MemoryType = "semantic"
	TypeEpisodic   MemoryType = "episodic"
	TypeProcedural MemoryType = "procedural"
)

// AllTypes is the default search scope.
var AllTypes = []MemoryType{TypeSemantic, TypeEpisodic, TypeProcedural}

// ErrUnknownType is returned for unrecognized memory type names.
var ErrUnknownType = errors.New("unknown memory type")

// ParseTypes converts type names, rejecting unknown ones. Duplicates are
// dropped. No names means AllTypes.
func ParseTypes(names []string) ([]MemoryType, error) {
	if len(names) == 0 {
		return append([]MemoryType{}, AllTypes...), nil
	}
	seen := make(map[MemoryType]bool)
	types := make([]MemoryType, 0, len(names))
	for _, name := range names {
		t := MemoryType(strings.ToLower(strings.TrimSpace(name)))
		switch t {
		case TypeSemantic, TypeEpisodic, TypeProcedural:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types, nil
}

// WriteResult reports a successful write.
type WriteResult struct {
	Success bool
	ID      string
	Type    MemoryType
}

// MarshalJSON names the id field after the store: fact_id, episode_id or
// rule_id.
func (r WriteResult) MarshalJSON() ([]byte, error) {
	key := "id"
	switch r.Type {
	case TypeSemantic:
		key = "fact_id"
	case TypeEpisodic:
		key = "episode_id"
	case TypeProcedural:
		key = "rule_id"
	}
	return json.Marshal(map[string]any{
		"success": r.Success,
		key:       r.ID,
		"type":    r.Type,
	})
}

// SearchResults holds one result list per searched store type. Types that
// were not searched are left out of the JSON form.
type SearchResults struct {
	Semantic   []semantic.Fact
	Episodic   []episodic.Summary
	Procedural []procedural.Rule

	searched []MemoryType
}

// Searched returns the store types that were queried.
func (r *SearchResults) Searched() []MemoryType {
	return r.searched
}

// MarshalJSON implements json.Marshaler.
func (r *SearchResults) MarshalJSON() ([]byte, error) {
	out := make(map[MemoryType]any, len(r.searched))
	for _, t := range r.searched {
		switch t {
		case TypeSemantic:
			out[t] = r.Semantic
		case TypeEpisodic:
			out[t] = r.Episodic
		case TypeProcedural:
			out[t] = r.Procedural
		}
	}
	return json.Marshal(out)
}

// TaskContext is everything the stores know that bears on a task.
type TaskContext struct {
	SemanticFacts    []semantic.Fact    `json:"semantic_facts"`
	SimilarEpisodes  []episodic.Summary `json:"similar_episodes"`
	ApplicableRules  []procedural.Rule  `json:"applicable_rules"`
	PromptInjections []string           `json:"prompt_injections"`
}

// Stats summarizes store sizes.
type Stats struct {
	SemanticCount   int      `json:"semantic_count"`
	EpisodicCount   int      `json:"episodic_count"`
	ProceduralCount int      `json:"procedural_count"`
	ActiveRules     int      `json:"active_rules"`
	Tags            []string `json:"tags"`
	Projects        []string `json:"projects"`
}
