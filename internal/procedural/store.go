// Package procedural stores learned trigger to behavior rules.
//
// Rules live in a single JSON document, {"rules": [...], "updated": ...}.
// Explicitly written rules start at confidence 0.8; rules mined from
// episode patterns arrive through Merge, which also applies age decay and
// the retention policy.
package procedural

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/filestore"
	"go.uber.org/zap"
)

// document is the on-disk layout.
type document struct {
	Rules   []Rule     `json:"rules"`
	Updated *time.Time `json:"updated,omitempty"`
}

// WriteRequest describes an explicitly authored rule.
type WriteRequest struct {
	Trigger        string
	Behavior       string
	Rationale      string
	SourceEpisodes []string

	// Confidence defaults to 0.8 when zero.
	Confidence float64

	// InjectionPoint defaults to PreToolUse.
	InjectionPoint InjectionPoint
}

// Validate checks req and fills defaults.
func (r *WriteRequest) Validate() error {
	r.Trigger = strings.TrimSpace(r.Trigger)
	r.Behavior = strings.TrimSpace(r.Behavior)
	if r.Trigger == "" {
		return ErrEmptyTrigger
	}
	if r.Behavior == "" {
		return ErrEmptyBehavior
	}
	if r.Confidence == 0 {
		r.Confidence = DefaultConfidence
	}
	if r.Confidence < 0 || r.Confidence > 1 || math.IsNaN(r.Confidence) {
		return ErrInvalidConfidence
	}
	if r.InjectionPoint == "" {
		r.InjectionPoint = PreToolUse
	}
	return nil
}

// MergeOptions is the retention policy applied by Merge.
type MergeOptions struct {
	// DecayPerWeek is subtracted from a rule's confidence per whole week of
	// age not yet accounted for.
	DecayPerWeek float64

	// AgeFloor is the lowest confidence age decay can produce.
	AgeFloor float64

	// MinConfidence drops rules below it after decay.
	MinConfidence float64

	// MaxRules caps the number of rules kept, highest confidence first.
	MaxRules int
}

// OptionsFromConfig builds the retention policy from configuration.
func OptionsFromConfig(cfg config.ProceduralConfig) MergeOptions {
	return MergeOptions{
		DecayPerWeek:  cfg.ConfidenceDecayPerWeek,
		AgeFloor:      cfg.AgeDecayFloor,
		MinConfidence: cfg.MinConfidence,
		MaxRules:      cfg.MaxRules,
	}
}

// MergeResult summarizes a Merge.
type MergeResult struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Dropped  int `json:"dropped"`
	Total    int `json:"total"`
}

// Store persists procedural rules.
type Store struct {
	path        string
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore creates a Store backed by cfg.ProceduralPath().
func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:        cfg.ProceduralPath(),
		lockTimeout: cfg.Storage.LockTimeout.Duration(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Write validates req and persists a new active rule.
func (s *Store) Write(ctx context.Context, req WriteRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	rule := NewRule(NewID(), req.Trigger, req.Behavior, req.Rationale, req.Confidence, s.now())
	rule.InjectionPoint = req.InjectionPoint
	rule.SourceEpisodes = append([]string{}, req.SourceEpisodes...)

	err := s.update(ctx, func(doc *document) (bool, error) {
		doc.Rules = append(doc.Rules, rule)
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("writing rule: %w", err)
	}

	s.logger.Debug("rule written", zap.String("rule_id", rule.ID))
	return rule.ID, nil
}

// GetActiveRules returns active rules with confidence >= 0.5 whose trigger
// contains task (case-insensitive; empty matches all), by descending
// confidence.
func (s *Store) GetActiveRules(ctx context.Context, task string) ([]Rule, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return activeRules(doc.Rules, task), nil
}

func activeRules(rules []Rule, task string) []Rule {
	needle := strings.ToLower(task)
	result := make([]Rule, 0)
	for _, r := range rules {
		if !r.Active || r.Confidence < ActiveThreshold {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.Trigger), needle) {
			continue
		}
		result = append(result, r)
	}
	sortByConfidence(result)
	return result
}

// GetPromptInjections returns the non-empty prompt templates of the active
// rules registered for point, highest confidence first.
func (s *Store) GetPromptInjections(ctx context.Context, point InjectionPoint) ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	prompts := make([]string, 0)
	for _, r := range activeRules(doc.Rules, "") {
		if r.InjectionPoint == point && r.PromptTemplate != "" {
			prompts = append(prompts, r.PromptTemplate)
		}
	}
	return prompts, nil
}

// ApplyRule records one application of the rule. It reports false when id
// is unknown.
func (s *Store) ApplyRule(ctx context.Context, id string) (bool, error) {
	found, err := s.modify(ctx, id, func(r *Rule) {
		now := s.now()
		r.TimesApplied++
		r.LastApplied = &now
	})
	if err != nil {
		return false, fmt.Errorf("applying rule %s: %w", id, err)
	}
	return found, nil
}

// SetActive enables or disables the rule. It reports false when id is unknown.
func (s *Store) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	found, err := s.modify(ctx, id, func(r *Rule) {
		r.Active = active
	})
	if err != nil {
		return false, fmt.Errorf("updating rule %s: %w", id, err)
	}
	return found, nil
}

// DecayConfidence lowers the confidence of every rule that was never applied
// by rate, never below 0.1. Applied rules are untouched. It returns the
// number of rules changed.
func (s *Store) DecayConfidence(ctx context.Context, rate float64) (int, error) {
	if rate < 0 || math.IsNaN(rate) {
		return 0, ErrInvalidDecayRate
	}

	decayed := 0
	err := s.update(ctx, func(doc *document) (bool, error) {
		for i := range doc.Rules {
			r := &doc.Rules[i]
			if r.TimesApplied != 0 {
				continue
			}
			next := math.Max(UnusedDecayFloor, r.Confidence-rate)
			if next != r.Confidence {
				r.Confidence = next
				decayed++
			}
		}
		return decayed > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("decaying rules: %w", err)
	}
	if decayed > 0 {
		s.logger.Info("unused rules decayed", zap.Int("count", decayed), zap.Float64("rate", rate))
	}
	return decayed, nil
}

// Merge folds incoming rules into the document and applies opts.
//
// An incoming rule with a known id replaces the stored one only when its
// confidence is higher; the stored usage counters and active flag are kept.
// Age decay then lowers every rule by DecayPerWeek for each whole week since
// it was last decayed (or created), never below AgeFloor; rules already at
// or below the floor are left alone. Finally rules under MinConfidence are
// dropped and at most MaxRules are kept, highest confidence first.
func (s *Store) Merge(ctx context.Context, incoming []Rule, opts MergeOptions) (MergeResult, error) {
	var result MergeResult
	now := s.now()

	doc := &document{}
	err := filestore.Update(ctx, s.path, s.lockTimeout, doc, func(bool) (bool, error) {
		result = MergeResult{}

		pos := make(map[string]int, len(doc.Rules))
		for i, r := range doc.Rules {
			pos[r.ID] = i
		}
		for _, in := range incoming {
			if in.CreatedAt.IsZero() {
				in.CreatedAt = now
			}
			i, ok := pos[in.ID]
			if !ok {
				pos[in.ID] = len(doc.Rules)
				doc.Rules = append(doc.Rules, in)
				result.Added++
				continue
			}
			old := doc.Rules[i]
			if in.Confidence <= old.Confidence {
				continue
			}
			in.TimesApplied = old.TimesApplied
			in.LastApplied = old.LastApplied
			in.Active = old.Active
			in.CreatedAt = old.CreatedAt
			in.DecayedAt = old.DecayedAt
			doc.Rules[i] = in
			result.Replaced++
		}

		before := len(doc.Rules)
		kept := make([]Rule, 0, len(doc.Rules))
		for _, r := range doc.Rules {
			ageDecay(&r, now, opts)
			if r.Confidence >= opts.MinConfidence {
				kept = append(kept, r)
			}
		}
		sortByConfidence(kept)
		if opts.MaxRules > 0 && len(kept) > opts.MaxRules {
			kept = kept[:opts.MaxRules]
		}
		result.Dropped = before - len(kept)
		result.Total = len(kept)

		doc.Rules = kept
		doc.Updated = &now
		return true, nil
	})
	if err != nil {
		return MergeResult{}, fmt.Errorf("merging rules: %w", err)
	}

	s.logger.Info("procedural rules merged",
		zap.Int("added", result.Added),
		zap.Int("replaced", result.Replaced),
		zap.Int("dropped", result.Dropped),
		zap.Int("total", result.Total))
	return result, nil
}

// ageDecay applies the whole days elapsed since the rule's decay anchor and
// advances the anchor by exactly those days, so repeated calls never charge
// the same interval twice.
func ageDecay(r *Rule, now time.Time, opts MergeOptions) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
		return
	}
	anchor := r.CreatedAt
	if r.DecayedAt != nil {
		anchor = *r.DecayedAt
	}
	days := int(now.Sub(anchor).Hours() / 24)
	if days <= 0 {
		return
	}
	next := anchor.Add(time.Duration(days) * 24 * time.Hour)
	r.DecayedAt = &next

	if opts.DecayPerWeek <= 0 || r.Confidence <= opts.AgeFloor {
		return
	}
	weeks := float64(days) / 7
	r.Confidence = math.Max(opts.AgeFloor, r.Confidence-opts.DecayPerWeek*weeks)
}

// Get returns the rule, or nil when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*Rule, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Rules {
		if doc.Rules[i].ID == id {
			r := doc.Rules[i]
			return &r, nil
		}
	}
	return nil, nil
}

// List returns every rule in document order.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// Count returns the total number of rules and how many are active.
func (s *Store) Count(ctx context.Context) (total, active int, err error) {
	doc, err := s.load()
	if err != nil {
		return 0, 0, err
	}
	return len(doc.Rules), len(activeRules(doc.Rules, "")), nil
}

func sortByConfidence(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Confidence > rules[j].Confidence
	})
}

func (s *Store) load() (*document, error) {
	doc := &document{}
	if _, err := filestore.ReadJSON(s.path, doc); err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if doc.Rules == nil {
		doc.Rules = []Rule{}
	}
	return doc, nil
}

func (s *Store) modify(ctx context.Context, id string, fn func(*Rule)) (bool, error) {
	var found bool
	err := s.update(ctx, func(doc *document) (bool, error) {
		for i := range doc.Rules {
			if doc.Rules[i].ID == id {
				fn(&doc.Rules[i])
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	return found, err
}

// update holds the store lock across reload, mutate and write.
func (s *Store) update(ctx context.Context, mutate func(*document) (bool, error)) error {
	doc := &document{}
	return filestore.Update(ctx, s.path, s.lockTimeout, doc, func(bool) (bool, error) {
		if doc.Rules == nil {
			doc.Rules = []Rule{}
		}
		return mutate(doc)
	})
}
