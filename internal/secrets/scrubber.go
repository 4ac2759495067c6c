package secrets

import (
	"sort"
	"strings"
)

// Scrubber detects and redacts secrets from text.
type Scrubber interface {
	// Scrub returns content with every detected secret replaced.
	Scrub(content string) *Result

	// ScrubAll scrubs each string in place and returns the number of findings.
	ScrubAll(values ...*string) int

	IsEnabled() bool
}

type regexScrubber struct {
	config *Config
}

type span struct {
	start, end int
}

// New creates a Scrubber. A nil config uses DefaultConfig.
// A disabled config yields a scrubber that returns input unchanged.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return &regexScrubber{config: cfg}, nil
}

// MustNew creates a Scrubber, panicking on an invalid config.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *regexScrubber) Scrub(content string) *Result {
	result := &Result{Scrubbed: content}
	if content == "" {
		return result
	}

	var spans []span
	for _, rule := range s.config.compiledRules {
		if !rule.gatePasses(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.isAllowed(content[m[0]:m[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:     rule.ID,
				Severity:   rule.Severity,
				StartIndex: m[0],
				EndIndex:   m[1],
			})
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	if len(spans) == 0 {
		return result
	}

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, sp := range mergeSpans(spans) {
		b.WriteString(content[last:sp.start])
		b.WriteString(s.config.RedactionString)
		last = sp.end
	}
	b.WriteString(content[last:])
	result.Scrubbed = b.String()
	return result
}

func (s *regexScrubber) ScrubAll(values ...*string) int {
	total := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		r := s.Scrub(*v)
		*v = r.Scrubbed
		total += len(r.Findings)
	}
	return total
}

func (s *regexScrubber) IsEnabled() bool {
	return true
}

func (s *regexScrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func (r *compiledRule) gatePasses(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// mergeSpans sorts spans and merges overlapping ones.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
			continue
		}
		merged = append(merged, curr)
	}
	return merged
}

// Noop returns text unchanged.
type Noop struct{}

func (Noop) Scrub(content string) *Result { return &Result{Scrubbed: content} }

func (Noop) ScrubAll(values ...*string) int { return 0 }

func (Noop) IsEnabled() bool { return false }

var (
	_ Scrubber = (*regexScrubber)(nil)
	_ Scrubber = Noop{}
)
