package reflection

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/episodic"
	"github.com/fyrsmithlabs/ralph-memory/internal/procedural"
	"github.com/fyrsmithlabs/ralph-memory/internal/secrets"
	"github.com/fyrsmithlabs/ralph-memory/internal/semantic"
	"github.com/fyrsmithlabs/ralph-memory/internal/transcript"
	"go.uber.org/zap"
)

const (
	successImportance = 7
	failureImportance = 5

	successRuleTags = 3
	failureRuleTags = 2

	maxSourceEpisodes = 10

	// DefaultRecentActivity is the number of log lines Status returns.
	DefaultRecentActivity = 10
)

// Option configures an Executor.
type Option func(*Executor)

// WithExtractor replaces the heuristic transcript extractor.
func WithExtractor(e transcript.Extractor) Option {
	return func(x *Executor) { x.extractor = e }
}

// WithScrubber replaces the scrubber built from the secrets settings.
func WithScrubber(s secrets.Scrubber) Option {
	return func(x *Executor) { x.scrubber = s }
}

// WithMetrics replaces the metrics created on the global meter provider.
func WithMetrics(m *Metrics) Option {
	return func(x *Executor) { x.metrics = m }
}

// Executor orchestrates the cold path over the three stores.
type Executor struct {
	cfg       *config.Config
	episodes  *episodic.Store
	facts     *semantic.Store
	rules     *procedural.Store
	extractor transcript.Extractor
	scrubber  secrets.Scrubber
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewExecutor creates an Executor over the stores rooted at cfg.RootDir.
func NewExecutor(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Executor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	episodes, err := episodic.NewStore(cfg, logger.Named("episodic"))
	if err != nil {
		return nil, err
	}
	facts, err := semantic.NewStore(cfg, logger.Named("semantic"))
	if err != nil {
		return nil, err
	}
	rules, err := procedural.NewStore(cfg, logger.Named("procedural"))
	if err != nil {
		return nil, err
	}

	x := &Executor{
		cfg:      cfg,
		episodes: episodes,
		facts:    facts,
		rules:    rules,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(x)
	}

	if x.extractor == nil {
		x.extractor = transcript.NewHeuristicExtractor()
	}
	if x.scrubber == nil {
		x.scrubber, err = secrets.New(secrets.FromSettings(cfg.Secrets))
		if err != nil {
			return nil, fmt.Errorf("creating scrubber: %w", err)
		}
	}
	if x.metrics == nil {
		x.metrics = NewMetrics(logger)
	}
	return x, nil
}

// Extract builds an episode from the transcript at path and persists it.
//
// An unreadable transcript is not an error: it yields an episode built
// from empty text. Text derived from the transcript is scrubbed of secrets
// before it is written.
func (x *Executor) Extract(ctx context.Context, path, project, sessionID string) (ep *episodic.Episode, err error) {
	start := time.Now()
	defer func() { x.metrics.observe(ctx, "extract", start, err) }()

	t := transcript.Load(path)
	if t.Err != nil {
		x.logger.Warn("transcript unreadable, extracting from empty text",
			zap.String("path", path), zap.Error(t.Err))
	}
	if t.SkippedLines > 0 {
		x.logger.Debug("transcript lines skipped",
			zap.String("path", path), zap.Int("skipped", t.SkippedLines))
	}

	ext, err := x.extractor.Extract(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", path, err)
	}

	if sessionID == "" {
		sessionID = t.SessionID
	}
	ep = x.buildEpisode(ext, project, sessionID)

	if _, err := x.episodes.Write(ctx, ep); err != nil {
		return nil, fmt.Errorf("saving episode: %w", err)
	}
	add(ctx, x.metrics.episodesExtracted, 1)

	x.logger.Info("episode extracted",
		zap.String("episode_id", ep.ID),
		zap.String("project", project),
		zap.Bool("success", ep.Success),
		zap.Strings("tags", ep.Tags))
	return ep, nil
}

func (x *Executor) buildEpisode(ext *transcript.Extraction, project, sessionID string) *episodic.Episode {
	epContext := "Unknown project"
	if project != "" {
		epContext = "Project: " + project
	}

	actions := make([]episodic.Action, 0, len(ext.Files))
	for _, f := range ext.Files {
		actions = append(actions, episodic.Action{Type: "modify", Target: f, Success: true})
	}

	importance := failureImportance
	if ext.Success {
		importance = successImportance
	}

	ep := &episodic.Episode{
		Timestamp:              x.now(),
		SessionID:              sessionID,
		Project:                project,
		Task:                   ext.Task,
		Context:                epContext,
		Constraints:            []string{},
		AlternativesConsidered: []episodic.Alternative{},
		DecisionFactors:        append([]string{}, ext.Decisions...),
		Actions:                actions,
		Success:                ext.Success,
		ArtifactsCreated:       []string{},
		Learnings:              ext.Learnings(),
		Tags:                   append([]string{}, ext.Tags...),
		Importance:             importance,
	}

	fields := []*string{&ep.Task}
	for i := range ep.DecisionFactors {
		fields = append(fields, &ep.DecisionFactors[i])
	}
	for i := range ep.Learnings {
		fields = append(fields, &ep.Learnings[i])
	}
	if n := x.scrubber.ScrubAll(fields...); n > 0 {
		x.logger.Info("secrets redacted from episode", zap.Int("fields", n))
	}
	return ep
}

type tagCount struct {
	tag      string
	count    int
	episodes []string
}

// tally counts tags in first-seen order.
type tally struct {
	order []string
	byTag map[string]*tagCount
}

func newTally() *tally {
	return &tally{byTag: make(map[string]*tagCount)}
}

func (t *tally) add(tag, episodeID string) {
	tc, ok := t.byTag[tag]
	if !ok {
		tc = &tagCount{tag: tag}
		t.byTag[tag] = tc
		t.order = append(t.order, tag)
	}
	tc.count++
	if len(tc.episodes) < maxSourceEpisodes {
		tc.episodes = append(tc.episodes, episodeID)
	}
}

// mostCommon returns the n most frequent tags; ties keep first-seen order.
func (t *tally) mostCommon(n int) []*tagCount {
	out := make([]*tagCount, 0, len(t.order))
	for _, tag := range t.order {
		out = append(out, t.byTag[tag])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DetectPatterns synthesizes rules from tag frequency across the episode
// index. Nothing is detected until the index holds at least the configured
// threshold of episodes; a tag yields a rule only when it occurs in at
// least that many successful (or failed) episodes.
//
// The three most common success tags give "apply best practices" rules
// with confidence min(0.9, 0.5+0.1n). The two most common failure tags give
// "be careful" rules with confidence min(0.85, 0.4+0.1n).
func (x *Executor) DetectPatterns(ctx context.Context) (rules []procedural.Rule, err error) {
	start := time.Now()
	defer func() { x.metrics.observe(ctx, "detect_patterns", start, err) }()

	threshold := x.cfg.ColdPath.PatternDetectionThreshold
	summaries, err := x.episodes.Summaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading episode index: %w", err)
	}
	if len(summaries) < threshold {
		x.logger.Info("not enough episodes for pattern detection",
			zap.Int("episodes", len(summaries)),
			zap.Int("threshold", threshold))
		return []procedural.Rule{}, nil
	}

	succeeded, failed := newTally(), newTally()
	for _, s := range summaries {
		for _, tag := range s.Tags {
			if s.Success {
				succeeded.add(tag, s.ID)
			} else {
				failed.add(tag, s.ID)
			}
		}
	}

	now := x.now()
	rules = make([]procedural.Rule, 0)
	for _, tc := range succeeded.mostCommon(successRuleTags) {
		if tc.count < threshold {
			continue
		}
		r := procedural.NewRule(
			patternRuleID("success", tc.tag),
			fmt.Sprintf("Working on %s related task", tc.tag),
			fmt.Sprintf("Apply %s best practices from past successful sessions", tc.tag),
			fmt.Sprintf("Pattern detected: %d successful sessions involving %s", tc.count, tc.tag),
			min(0.9, 0.5+0.1*float64(tc.count)),
			now,
		)
		r.SourceEpisodes = tc.episodes
		rules = append(rules, r)
	}
	for _, tc := range failed.mostCommon(failureRuleTags) {
		if tc.count < threshold {
			continue
		}
		r := procedural.NewRule(
			patternRuleID("avoid", tc.tag),
			fmt.Sprintf("Working on %s related task", tc.tag),
			fmt.Sprintf("Be extra careful with %s - past sessions had issues", tc.tag),
			fmt.Sprintf("Pattern detected: %d problematic sessions involving %s", tc.count, tc.tag),
			min(0.85, 0.4+0.1*float64(tc.count)),
			now,
		)
		r.SourceEpisodes = tc.episodes
		rules = append(rules, r)
	}

	add(ctx, x.metrics.rulesDetected, len(rules))
	x.logger.Info("patterns detected",
		zap.Int("episodes", len(summaries)),
		zap.Int("rules", len(rules)))
	return rules, nil
}

// patternRuleID is stable per (kind, tag) so repeated mining updates the
// same rule instead of adding a new one.
func patternRuleID(kind, tag string) string {
	sum := md5.Sum([]byte(tag))
	return fmt.Sprintf("proc-%s-%s-%s", kind, tag, hex.EncodeToString(sum[:])[:4])
}

// SaveProceduralRules merges rules into the procedural store under the
// configured retention policy.
func (x *Executor) SaveProceduralRules(ctx context.Context, rules []procedural.Rule) (res procedural.MergeResult, err error) {
	start := time.Now()
	defer func() { x.metrics.observe(ctx, "save_rules", start, err) }()

	res, err = x.rules.Merge(ctx, rules, procedural.OptionsFromConfig(x.cfg.Procedural))
	if err != nil {
		return procedural.MergeResult{}, err
	}
	add(ctx, x.metrics.rulesSaved, res.Total)
	return res, nil
}

// PatternRun is the outcome of RunPatterns.
type PatternRun struct {
	Detected []procedural.Rule      `json:"detected"`
	Saved    procedural.MergeResult `json:"saved"`
}

// RunPatterns detects patterns and saves them. The procedural store is not
// touched when nothing was detected.
func (x *Executor) RunPatterns(ctx context.Context) (*PatternRun, error) {
	rules, err := x.DetectPatterns(ctx)
	if err != nil {
		return nil, err
	}
	run := &PatternRun{Detected: rules}
	if len(rules) == 0 {
		return run, nil
	}
	run.Saved, err = x.SaveProceduralRules(ctx, rules)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CleanupResult reports what a retention sweep removed.
type CleanupResult struct {
	EpisodesRemoved    int `json:"episodes_removed"`
	FactsExpired       int `json:"facts_expired"`
	LegacyIndexEntries int `json:"legacy_index_entries"`
}

// CleanupOldEpisodes removes episodes older than the TTL whose importance
// is below the keep threshold, expires semantic facts past their own TTL,
// and refreshes the exported legacy index.
func (x *Executor) CleanupOldEpisodes(ctx context.Context) (res CleanupResult, err error) {
	start := time.Now()
	defer func() { x.metrics.observe(ctx, "cleanup", start, err) }()

	now := x.now()
	cutoff := now.AddDate(0, 0, -x.cfg.Episodic.TTLDays)

	res.EpisodesRemoved, err = x.episodes.Prune(ctx, cutoff, x.cfg.Episodic.MinImportanceToKeep)
	if err != nil {
		return res, fmt.Errorf("pruning episodes: %w", err)
	}
	add(ctx, x.metrics.episodesRemoved, res.EpisodesRemoved)

	res.FactsExpired, err = x.facts.ExpireFacts(ctx, now)
	if err != nil {
		return res, fmt.Errorf("expiring facts: %w", err)
	}
	add(ctx, x.metrics.factsExpired, res.FactsExpired)

	res.LegacyIndexEntries, err = x.episodes.ExportLegacyIndex(ctx, x.cfg.Episodic.LegacyIndexCap)
	if err != nil {
		return res, fmt.Errorf("exporting legacy index: %w", err)
	}

	x.logger.Info("cleaned up old episodes",
		zap.Int("episodes_removed", res.EpisodesRemoved),
		zap.Int("facts_expired", res.FactsExpired),
		zap.Time("cutoff", cutoff))
	return res, nil
}

// DecayUnusedRules lowers the confidence of never-applied rules by the
// configured unused decay rate (floor 0.1). Age decay during merges is a
// separate mechanism with its own floor.
func (x *Executor) DecayUnusedRules(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { x.metrics.observe(ctx, "decay", start, err) }()

	n, err = x.rules.DecayConfidence(ctx, x.cfg.Procedural.UnusedDecayRate)
	if err != nil {
		return 0, err
	}
	add(ctx, x.metrics.rulesDecayed, n)
	return n, nil
}

// Status is the cold path diagnostic report.
type Status struct {
	ColdPathEnabled  bool     `json:"cold_path_enabled"`
	PatternThreshold int      `json:"pattern_threshold"`
	EpisodeCount     int      `json:"episode_count"`
	ProceduralRules  int      `json:"procedural_rules"`
	ActiveRules      int      `json:"active_rules"`
	SemanticFacts    int      `json:"semantic_facts"`
	RecentActivity   []string `json:"recent_activity"`
}

// Status reports configuration, store counts and the last lines of the
// reflection log.
func (x *Executor) Status(ctx context.Context, recent int) (*Status, error) {
	if recent <= 0 {
		recent = DefaultRecentActivity
	}

	episodes, err := x.episodes.Count(ctx)
	if err != nil {
		return nil, err
	}
	total, active, err := x.rules.Count(ctx)
	if err != nil {
		return nil, err
	}
	facts, err := x.facts.Count(ctx)
	if err != nil {
		return nil, err
	}
	lines, err := tailLines(x.cfg.ReflectionLogPath(), recent)
	if err != nil {
		return nil, fmt.Errorf("reading reflection log: %w", err)
	}

	return &Status{
		ColdPathEnabled:  x.cfg.ColdPath.Enabled,
		PatternThreshold: x.cfg.ColdPath.PatternDetectionThreshold,
		EpisodeCount:     episodes,
		ProceduralRules:  total,
		ActiveRules:      active,
		SemanticFacts:    facts,
		RecentActivity:   lines,
	}, nil
}

// tailLines returns the last n non-empty lines of path, oldest first.
// A missing file has no lines.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}
