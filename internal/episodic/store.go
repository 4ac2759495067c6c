package episodic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/filestore"
	"go.uber.org/zap"
)

const (
	indexFile       = "index.json"
	legacyIndexFile = "legacy-index.json"
)

// Store persists episodes and owns their index.
//
// All mutations hold the index lock for the whole operation, so body files
// and the index change together from the point of view of other processes.
type Store struct {
	dir         string
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore creates a Store rooted at cfg.EpisodesDir().
func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:         cfg.EpisodesDir(),
		lockTimeout: cfg.Storage.LockTimeout.Duration(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dir returns the episode root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

// LegacyIndexPath returns the location of the exported flat index.
func (s *Store) LegacyIndexPath() string { return filepath.Join(s.dir, legacyIndexFile) }

// BodyPath returns the storage location of an episode.
func (s *Store) BodyPath(id string, ts time.Time) string {
	return filepath.Join(s.dir, ts.UTC().Format("2006-01"), id+".json")
}

// Write persists ep and indexes it. A missing id or timestamp is assigned
// and written back into ep; the timestamp is normalized to UTC.
func (s *Store) Write(ctx context.Context, ep *Episode) (string, error) {
	if ep == nil {
		return "", fmt.Errorf("episode cannot be nil")
	}
	if err := ep.prepare(s.now()); err != nil {
		return "", err
	}

	err := s.update(ctx, func(idx *Index) (bool, error) {
		if _, exists := idx.find(ep.ID); exists {
			return false, fmt.Errorf("episode %s already exists", ep.ID)
		}
		if err := filestore.WriteJSON(s.BodyPath(ep.ID, ep.Timestamp), ep); err != nil {
			return false, err
		}
		idx.add(ep.Summary())
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("writing episode: %w", err)
	}

	s.logger.Debug("episode written",
		zap.String("episode_id", ep.ID),
		zap.String("project", ep.Project),
		zap.Strings("tags", ep.Tags))
	return ep.ID, nil
}

// Get loads the episode body. It returns nil when the id is not indexed or
// its body file is gone.
func (s *Store) Get(ctx context.Context, id string) (*Episode, error) {
	if !ValidID(id) {
		return nil, nil
	}
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	summary, ok := idx.find(id)
	if !ok {
		return nil, nil
	}

	path := s.BodyPath(id, summary.Timestamp)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// Older tools partitioned by local time; look in every month.
		matches, _ := filepath.Glob(filepath.Join(s.dir, "*", id+".json"))
		if len(matches) == 0 {
			return nil, nil
		}
		path = matches[0]
	}

	var ep Episode
	found, err := filestore.ReadJSON(path, &ep)
	if err != nil {
		return nil, fmt.Errorf("loading episode %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &ep, nil
}

// Search filters the index and ranks matches by descending importance.
// Equal importance keeps index order.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]Summary, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	var projectIDs, tagIDs map[string]bool
	if q.Project != "" {
		projectIDs = toSet(idx.Projects[q.Project])
	}
	if len(q.Tags) > 0 {
		tagIDs = map[string]bool{}
		for _, tag := range q.Tags {
			for _, id := range idx.Tags[tag] {
				tagIDs[id] = true
			}
		}
	}
	query := strings.ToLower(q.Query)

	results := make([]Summary, 0)
	for _, sum := range idx.Episodes {
		if projectIDs != nil && !projectIDs[sum.ID] {
			continue
		}
		if tagIDs != nil && !tagIDs[sum.ID] {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(sum.Task), query) {
			continue
		}
		results = append(results, sum)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Importance > results[j].Importance
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// GetRecent returns the newest summaries first.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	results := append([]Summary{}, idx.Episodes...)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes the body and every index reference. It reports false when
// the id is not indexed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, nil
	}
	var found bool
	err := s.update(ctx, func(idx *Index) (bool, error) {
		summary, ok := idx.find(id)
		if !ok {
			return false, nil
		}
		if err := os.Remove(s.BodyPath(id, summary.Timestamp)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
		found = idx.remove(id)
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting episode %s: %w", id, err)
	}
	return found, nil
}

// Prune deletes episodes older than cutoff whose importance is below
// minImportance, scanning the body files rather than the index. Files that
// cannot be parsed are skipped. It returns how many episodes were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, minImportance int) (int, error) {
	removed := 0
	err := s.update(ctx, func(idx *Index) (bool, error) {
		for _, path := range s.bodyFiles() {
			if err := ctx.Err(); err != nil {
				return removed > 0, err
			}
			var probe struct {
				Timestamp  string `json:"timestamp"`
				Importance *int   `json:"importance"`
			}
			data, err := filestore.ReadFile(path)
			if err != nil || json.Unmarshal(data, &probe) != nil {
				s.logger.Debug("skipping unreadable episode", zap.String("path", path))
				continue
			}

			ts := parseTimestamp(probe.Timestamp)
			if probe.Timestamp == "" {
				ts = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			} else if ts.IsZero() {
				s.logger.Debug("skipping episode with bad timestamp", zap.String("path", path))
				continue
			}
			importance := DefaultImportance
			if probe.Importance != nil {
				importance = *probe.Importance
			}
			if !ts.Before(cutoff) || importance >= minImportance {
				continue
			}

			if err := os.Remove(path); err != nil {
				s.logger.Debug("failed to remove episode", zap.String("path", path), zap.Error(err))
				continue
			}
			idx.remove(strings.TrimSuffix(filepath.Base(path), ".json"))
			removed++
		}
		return removed > 0, nil
	})
	if err != nil {
		return removed, fmt.Errorf("pruning episodes: %w", err)
	}
	return removed, nil
}

// Rebuild regenerates the index from the body files on disk, dropping
// summaries whose bodies are gone and indexing orphaned bodies. It returns
// the number of indexed episodes.
func (s *Store) Rebuild(ctx context.Context) (int, error) {
	var count int
	err := filestore.WithLock(ctx, s.indexPath(), s.lockTimeout, func() error {
		summaries := make([]Summary, 0)
		for _, path := range s.bodyFiles() {
			var ep Episode
			if _, err := filestore.ReadJSON(path, &ep); err != nil {
				s.logger.Debug("skipping unreadable episode", zap.String("path", path), zap.Error(err))
				continue
			}
			if ep.ID == "" {
				ep.ID = strings.TrimSuffix(filepath.Base(path), ".json")
			}
			if ep.Importance == 0 {
				ep.Importance = DefaultImportance
			}
			summaries = append(summaries, ep.Summary())
		}
		sortSummaries(summaries)

		idx := newIndex()
		idx.Episodes = summaries
		idx.reindex()
		count = len(idx.Episodes)
		return filestore.WriteJSON(s.indexPath(), idx)
	})
	if err != nil {
		return 0, fmt.Errorf("rebuilding episode index: %w", err)
	}
	s.logger.Info("episode index rebuilt", zap.Int("episodes", count))
	return count, nil
}

// Count returns the number of indexed episodes.
func (s *Store) Count(ctx context.Context) (int, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return 0, err
	}
	return len(idx.Episodes), nil
}

// Tags returns every tag that appears on an indexed episode.
func (s *Store) Tags(ctx context.Context) ([]string, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.TagNames(), nil
}

// Projects returns every non-empty project name.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.ProjectNames(), nil
}

// Summaries returns the full summary log in index order.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Episodes, nil
}

// bodyFiles lists ep-*.json files under the YYYY-MM directories.
func (s *Store) bodyFiles() []string {
	months, _ := filepath.Glob(filepath.Join(s.dir, "20*-*"))
	var files []string
	for _, month := range months {
		info, err := os.Stat(month)
		if err != nil || !info.IsDir() {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(month, "ep-*.json"))
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files
}

// readIndex loads the index without locking. needsWrite reports that the
// on-disk document was migrated or repaired in memory.
func (s *Store) readIndex() (idx *Index, needsWrite bool, err error) {
	data, err := filestore.ReadFile(s.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newIndex(), false, nil
		}
		return nil, false, fmt.Errorf("reading episode index: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return newIndex(), false, nil
	}

	idx, migrated, err := decodeIndex(data)
	if err != nil {
		return nil, false, err
	}
	if migrated {
		s.logger.Info("migrated legacy episode index", zap.Int("episodes", len(idx.Episodes)))
	}
	if !idx.consistent() {
		s.logger.Warn("episode index inconsistent, regenerating inverted indices")
		idx.reindex()
		return idx, true, nil
	}
	return idx, migrated, nil
}

// loadIndex returns the index for reading, persisting a migration or repair
// first when one was needed.
func (s *Store) loadIndex(ctx context.Context) (*Index, error) {
	idx, needsWrite, err := s.readIndex()
	if err != nil || !needsWrite {
		return idx, err
	}
	if err := s.update(ctx, func(*Index) (bool, error) { return false, nil }); err != nil {
		return nil, err
	}
	idx, _, err = s.readIndex()
	return idx, err
}

// update runs mutate under the index lock on a freshly loaded index and
// writes the index if mutate changed it or the load migrated it.
func (s *Store) update(ctx context.Context, mutate func(*Index) (bool, error)) error {
	return filestore.WithLock(ctx, s.indexPath(), s.lockTimeout, func() error {
		idx, needsWrite, err := s.readIndex()
		if err != nil {
			return err
		}
		changed, mutateErr := mutate(idx)
		if changed || needsWrite {
			if err := filestore.WriteJSON(s.indexPath(), idx); err != nil {
				return err
			}
		}
		return mutateErr
	})
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
