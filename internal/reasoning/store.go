// Package reasoning keeps an append-only log of agent reasoning per agent.
//
// Entries live in <root>/agent-memory/<agent>/episodic/episodes.jsonl, one
// JSON object per line. The file may hold other record types; only entries
// with type "reasoning" are read back.
package reasoning

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/filestore"
	"go.uber.org/zap"
)

const (
	entryType = "reasoning"
	logFile   = "episodes.jsonl"

	// DefaultLimit is the number of entries Recent returns when limit is unset.
	DefaultLimit = 10

	maxLineSize = 4 * 1024 * 1024
)

var (
	// ErrInvalidAgent is returned for agent ids that are not safe directory names.
	ErrInvalidAgent = errors.New("invalid agent id")

	// ErrEmptyReasoning is returned when there is nothing to store.
	ErrEmptyReasoning = errors.New("reasoning cannot be empty")
)

var agentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Entry is one stored piece of reasoning.
type Entry struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	Project   string    `json:"project"`
	Content   string    `json:"content"`
	CharCount int       `json:"char_count"`
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON accepts timestamps without a zone, as older writers
// produced them.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type alias Entry
	var raw struct {
		alias
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry(raw.alias)
	e.Timestamp = parseTimestamp(raw.Timestamp)
	return nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// Store reads and appends agent reasoning logs.
type Store struct {
	dir         string
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore creates a Store rooted at cfg.AgentMemoryDir().
func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:         cfg.AgentMemoryDir(),
		lockTimeout: cfg.Storage.LockTimeout.Duration(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Path returns the log file for agent.
func (s *Store) Path(agent string) string {
	return filepath.Join(s.dir, agent, "episodic", logFile)
}

// Append stores reasoning for agent and returns the written entry.
func (s *Store) Append(ctx context.Context, agent, taskID, project, content string) (*Entry, error) {
	if !validAgent(agent) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAgent, agent)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyReasoning
	}

	entry := &Entry{
		Type:      entryType,
		TaskID:    taskID,
		Project:   project,
		Content:   content,
		CharCount: utf8.RuneCountInString(content),
		Timestamp: s.now(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding reasoning: %w", err)
	}

	path := s.Path(agent)
	err = filestore.WithLock(ctx, path, s.lockTimeout, func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("appending reasoning for %s: %w", agent, err)
	}

	s.logger.Info("reasoning stored",
		zap.String("agent", agent),
		zap.String("task_id", taskID),
		zap.Int("chars", entry.CharCount))
	return entry, nil
}

// Recent returns up to limit reasoning entries for agent, newest first.
// An agent with no log has no entries. Lines that do not decode are skipped.
func (s *Store) Recent(ctx context.Context, agent string, limit int) ([]Entry, error) {
	if !validAgent(agent) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAgent, agent)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	f, err := os.Open(s.Path(agent))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	entries := make([]Entry, 0)
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			skipped++
			continue
		}
		if e.Type == entryType {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading reasoning for %s: %w", agent, err)
	}
	if skipped > 0 {
		s.logger.Debug("skipped malformed reasoning lines", zap.String("agent", agent), zap.Int("count", skipped))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func validAgent(agent string) bool {
	return agentPattern.MatchString(agent) && !strings.Contains(agent, "..")
}
