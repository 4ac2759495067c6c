package episodic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/ralph-memory/internal/filestore"
	"go.uber.org/zap"
)

// LegacyEntry is the value type of the flat index: one summary keyed by id.
type LegacyEntry struct {
	Task       string    `json:"task"`
	Tags       []string  `json:"tags"`
	Success    bool      `json:"success"`
	Importance int       `json:"importance"`
	Timestamp  time.Time `json:"timestamp"`
	Project    string    `json:"project"`
}

// ExportLegacyIndex writes the flat id-keyed projection of the index,
// limited to the limit most recent episodes, to LegacyIndexPath. The file is
// output only; nothing in this package reads it back.
func (s *Store) ExportLegacyIndex(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("legacy index limit must be positive, got %d", limit)
	}

	var written int
	err := filestore.WithLock(ctx, s.indexPath(), s.lockTimeout, func() error {
		idx, _, err := s.readIndex()
		if err != nil {
			return err
		}

		recent := append([]Summary{}, idx.Episodes...)
		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].Timestamp.After(recent[j].Timestamp)
		})
		if len(recent) > limit {
			recent = recent[:limit]
		}

		flat := make(map[string]LegacyEntry, len(recent))
		for _, sum := range recent {
			flat[sum.ID] = LegacyEntry{
				Task:       sum.Task,
				Tags:       sum.Tags,
				Success:    sum.Success,
				Importance: sum.Importance,
				Timestamp:  sum.Timestamp,
				Project:    sum.Project,
			}
		}
		written = len(flat)
		return filestore.WriteJSON(s.LegacyIndexPath(), flat)
	})
	if err != nil {
		return 0, fmt.Errorf("exporting legacy index: %w", err)
	}

	s.logger.Debug("legacy index exported", zap.Int("entries", written))
	return written, nil
}
