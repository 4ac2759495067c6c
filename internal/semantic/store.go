// Package semantic stores stable knowledge facts in a single JSON document.
package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/filestore"
	"go.uber.org/zap"
)

// document is the on-disk layout: {"facts": [...]}.
type document struct {
	Facts []Fact `json:"facts"`
}

// Store persists facts. Every mutation is a locked read-modify-write of
// the whole document, so concurrent processes never lose updates.
type Store struct {
	path        string
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore creates a Store backed by cfg.SemanticPath().
func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:        cfg.SemanticPath(),
		lockTimeout: cfg.Storage.LockTimeout.Duration(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Write validates req, assigns a new id and persists the fact.
func (s *Store) Write(ctx context.Context, req WriteRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	now := s.now()
	fact := Fact{
		ID:         NewID(),
		Content:    req.Content,
		Category:   req.Category,
		Source:     req.Source,
		Confidence: DefaultConfidence,
		Importance: req.Importance,
		CreatedAt:  now,
		UpdatedAt:  now,
		TTLDays:    req.TTLDays,
		Tags:       append([]string{}, req.Tags...),
	}

	err := s.update(ctx, func(doc *document) (bool, error) {
		doc.Facts = append(doc.Facts, fact)
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("writing fact: %w", err)
	}

	s.logger.Debug("fact written",
		zap.String("fact_id", fact.ID),
		zap.String("category", string(fact.Category)))
	return fact.ID, nil
}

// Search returns facts whose content or tags contain query (case-insensitive),
// by descending importance. Equal importance keeps document order.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	results := make([]Fact, 0)
	for _, f := range doc.Facts {
		if f.matches(q) {
			results = append(results, f)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Importance > results[j].Importance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Update applies the set fields of req and refreshes updated_at.
// It reports false when id is unknown.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}

	var found bool
	err := s.update(ctx, func(doc *document) (bool, error) {
		for i := range doc.Facts {
			if doc.Facts[i].ID != id {
				continue
			}
			if req.Content != nil {
				doc.Facts[i].Content = *req.Content
			}
			if req.Importance != nil {
				doc.Facts[i].Importance = *req.Importance
			}
			doc.Facts[i].UpdatedAt = s.now()
			found = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, fmt.Errorf("updating fact %s: %w", id, err)
	}
	return found, nil
}

// Delete removes the fact. It reports false when id is unknown.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.update(ctx, func(doc *document) (bool, error) {
		for i := range doc.Facts {
			if doc.Facts[i].ID == id {
				doc.Facts = append(doc.Facts[:i], doc.Facts[i+1:]...)
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting fact %s: %w", id, err)
	}
	return found, nil
}

// Get returns the fact, or nil when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*Fact, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Facts {
		if doc.Facts[i].ID == id {
			f := doc.Facts[i]
			return &f, nil
		}
	}
	return nil, nil
}

// List returns every fact in document order.
func (s *Store) List(ctx context.Context) ([]Fact, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Facts, nil
}

// Count returns the number of stored facts.
func (s *Store) Count(ctx context.Context) (int, error) {
	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(doc.Facts), nil
}

// ExpireFacts deletes facts whose TTL elapsed before now and returns how
// many were removed. Facts without a TTL are kept.
func (s *Store) ExpireFacts(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := s.update(ctx, func(doc *document) (bool, error) {
		kept := doc.Facts[:0]
		for _, f := range doc.Facts {
			if f.Expired(now) {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		doc.Facts = kept
		return removed > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("expiring facts: %w", err)
	}
	if removed > 0 {
		s.logger.Info("expired facts removed", zap.Int("removed", removed))
	}
	return removed, nil
}

func (s *Store) load() (*document, error) {
	doc := &document{}
	if _, err := filestore.ReadJSON(s.path, doc); err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	if doc.Facts == nil {
		doc.Facts = []Fact{}
	}
	return doc, nil
}

// update holds the store lock across reload, mutate and write.
// mutate reports whether the document changed and needs writing.
func (s *Store) update(ctx context.Context, mutate func(*document) (bool, error)) error {
	return filestore.WithLock(ctx, s.path, s.lockTimeout, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		changed, err := mutate(doc)
		if err != nil || !changed {
			return err
		}
		return filestore.WriteJSON(s.path, doc)
	})
}
