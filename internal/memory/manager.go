package memory

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/episodic"
	"github.com/fyrsmithlabs/ralph-memory/internal/procedural"
	"github.com/fyrsmithlabs/ralph-memory/internal/reasoning"
	"github.com/fyrsmithlabs/ralph-memory/internal/semantic"
	"go.uber.org/zap"
)

const (
	// contextFactLimit and contextEpisodeLimit bound GetContextForTask.
	contextFactLimit    = 5
	contextEpisodeLimit = 5
)

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics replaces the metrics created on the global meter provider.
func WithMetrics(m *Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// Manager is the unified memory API.
type Manager struct {
	cfg       *config.Config
	semantic  *semantic.Store
	episodic  *episodic.Store
	rules     *procedural.Store
	reasoning *reasoning.Store
	metrics   *Metrics
	logger    *zap.Logger
}

// NewManager creates a Manager over the stores rooted at cfg.RootDir.
func NewManager(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sem, err := semantic.NewStore(cfg, logger.Named("semantic"))
	if err != nil {
		return nil, err
	}
	epi, err := episodic.NewStore(cfg, logger.Named("episodic"))
	if err != nil {
		return nil, err
	}
	proc, err := procedural.NewStore(cfg, logger.Named("procedural"))
	if err != nil {
		return nil, err
	}
	rsn, err := reasoning.NewStore(cfg, logger.Named("reasoning"))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		semantic:  sem,
		episodic:  epi,
		rules:     proc,
		reasoning: rsn,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(logger)
	}
	return m, nil
}

// WriteSemantic stores a fact.
func (m *Manager) WriteSemantic(ctx context.Context, req semantic.WriteRequest) (res WriteResult, err error) {
	defer func() { m.metrics.record(ctx, "write", TypeSemantic, err) }()

	id, err := m.semantic.Write(ctx, req)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Success: true, ID: id, Type: TypeSemantic}, nil
}

// WriteEpisode stores an episode. Unset id, timestamp and importance are
// filled in.
func (m *Manager) WriteEpisode(ctx context.Context, ep *episodic.Episode) (res WriteResult, err error) {
	defer func() { m.metrics.record(ctx, "write", TypeEpisodic, err) }()

	id, err := m.episodic.Write(ctx, ep)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Success: true, ID: id, Type: TypeEpisodic}, nil
}

// WriteProcedural stores a rule.
func (m *Manager) WriteProcedural(ctx context.Context, req procedural.WriteRequest) (res WriteResult, err error) {
	defer func() { m.metrics.record(ctx, "write", TypeProcedural, err) }()

	id, err := m.rules.Write(ctx, req)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Success: true, ID: id, Type: TypeProcedural}, nil
}

// Search queries each requested store type. No types means AllTypes.
// Procedural results are active rules whose trigger contains query.
func (m *Manager) Search(ctx context.Context, query string, types []MemoryType, limit int) (*SearchResults, error) {
	if len(types) == 0 {
		types = AllTypes
	}
	if limit <= 0 {
		limit = semantic.DefaultSearchLimit
	}

	res := &SearchResults{searched: types}
	for _, t := range types {
		var err error
		switch t {
		case TypeSemantic:
			res.Semantic, err = m.semantic.Search(ctx, query, limit)
		case TypeEpisodic:
			res.Episodic, err = m.episodic.Search(ctx, episodic.SearchQuery{Query: query, Limit: limit})
		case TypeProcedural:
			res.Procedural, err = m.rules.GetActiveRules(ctx, query)
			if len(res.Procedural) > limit {
				res.Procedural = res.Procedural[:limit]
			}
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownType, t)
		}
		m.metrics.record(ctx, "search", t, err)
		if err != nil {
			return nil, fmt.Errorf("searching %s memory: %w", t, err)
		}
	}
	return res, nil
}

// GetContextForTask gathers the top facts and similar episodes for task,
// the rules whose trigger mentions it, and the prompts registered for
// PreToolUse. project narrows the episode search when set.
func (m *Manager) GetContextForTask(ctx context.Context, task, project string) (*TaskContext, error) {
	facts, err := m.semantic.Search(ctx, task, contextFactLimit)
	if err != nil {
		return nil, fmt.Errorf("searching facts: %w", err)
	}
	episodes, err := m.episodic.Search(ctx, episodic.SearchQuery{
		Query:   task,
		Project: project,
		Limit:   contextEpisodeLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching episodes: %w", err)
	}
	rules, err := m.rules.GetActiveRules(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	prompts, err := m.rules.GetPromptInjections(ctx, procedural.PreToolUse)
	if err != nil {
		return nil, fmt.Errorf("loading prompt injections: %w", err)
	}

	m.logger.Debug("task context assembled",
		zap.String("project", project),
		zap.Int("facts", len(facts)),
		zap.Int("episodes", len(episodes)),
		zap.Int("rules", len(rules)))
	return &TaskContext{
		SemanticFacts:    facts,
		SimilarEpisodes:  episodes,
		ApplicableRules:  rules,
		PromptInjections: prompts,
	}, nil
}

// Stats reports per-store counts and the known tags and projects.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	facts, err := m.semantic.Count(ctx)
	if err != nil {
		return nil, err
	}
	episodes, err := m.episodic.Count(ctx)
	if err != nil {
		return nil, err
	}
	total, active, err := m.rules.Count(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := m.episodic.Tags(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := m.episodic.Projects(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		SemanticCount:   facts,
		EpisodicCount:   episodes,
		ProceduralCount: total,
		ActiveRules:     active,
		Tags:            tags,
		Projects:        projects,
	}, nil
}

// UpdateFact changes a fact. It reports false when id is unknown.
func (m *Manager) UpdateFact(ctx context.Context, id string, req semantic.UpdateRequest) (found bool, err error) {
	defer func() { m.metrics.record(ctx, "update", TypeSemantic, err) }()
	return m.semantic.Update(ctx, id, req)
}

// DeleteFact removes a fact. It reports false when id is unknown.
func (m *Manager) DeleteFact(ctx context.Context, id string) (found bool, err error) {
	defer func() { m.metrics.record(ctx, "delete", TypeSemantic, err) }()
	return m.semantic.Delete(ctx, id)
}

// DeleteEpisode removes an episode. It reports false when id is unknown.
func (m *Manager) DeleteEpisode(ctx context.Context, id string) (found bool, err error) {
	defer func() { m.metrics.record(ctx, "delete", TypeEpisodic, err) }()
	return m.episodic.Delete(ctx, id)
}

// ApplyRule records that a rule was applied. It reports false when id is
// unknown.
func (m *Manager) ApplyRule(ctx context.Context, id string) (found bool, err error) {
	defer func() { m.metrics.record(ctx, "apply", TypeProcedural, err) }()
	return m.rules.ApplyRule(ctx, id)
}

// GetEpisode returns the full episode, or nil when it does not exist.
func (m *Manager) GetEpisode(ctx context.Context, id string) (*episodic.Episode, error) {
	return m.episodic.Get(ctx, id)
}

// RecentEpisodes returns the newest episode summaries first.
func (m *Manager) RecentEpisodes(ctx context.Context, limit int) ([]episodic.Summary, error) {
	return m.episodic.GetRecent(ctx, limit)
}

// Reindex rebuilds the episode index from the files on disk and returns the
// number of indexed episodes.
func (m *Manager) Reindex(ctx context.Context) (n int, err error) {
	defer func() { m.metrics.record(ctx, "reindex", TypeEpisodic, err) }()

	n, err = m.episodic.Rebuild(ctx)
	if err != nil {
		return 0, err
	}
	if _, err = m.episodic.ExportLegacyIndex(ctx, m.cfg.Episodic.LegacyIndexCap); err != nil {
		return n, err
	}
	return n, nil
}

// StoreReasoning appends reasoning to the agent's log.
func (m *Manager) StoreReasoning(ctx context.Context, agent, taskID, project, content string) (*reasoning.Entry, error) {
	return m.reasoning.Append(ctx, agent, taskID, project, content)
}

// RecentReasoning returns the agent's newest reasoning entries first.
func (m *Manager) RecentReasoning(ctx context.Context, agent string, limit int) ([]reasoning.Entry, error) {
	return m.reasoning.Recent(ctx, agent, limit)
}
