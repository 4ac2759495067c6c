package transcript

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxPhrases     = 10
	maxFiles       = 20
	maxTags        = 10
	taskScanWindow = 2000
	maxTaskLength  = 200
	unknownTask    = "Unknown task"
)

// Extraction is the candidate memory found in one transcript.
type Extraction struct {
	Task        string   `json:"task"`
	Decisions   []string `json:"decisions"`
	Errors      []string `json:"errors"`
	Successes   []string `json:"successes"`
	Preferences []string `json:"preferences"`
	Files       []string `json:"files"`
	Tags        []string `json:"tags"`
	Success     bool     `json:"success"`
}

// Learnings returns the error phrases followed by the success phrases.
func (e *Extraction) Learnings() []string {
	out := make([]string, 0, len(e.Errors)+len(e.Successes))
	out = append(out, e.Errors...)
	return append(out, e.Successes...)
}

// Extractor turns a transcript into candidate memory.
type Extractor interface {
	Extract(ctx context.Context, t *Transcript) (*Extraction, error)
}

// phrase captures run to the end of the sentence or line.
const phrase = `([^.!?\n]+)`

// DefaultTagVocabulary is matched case-insensitively by containment.
var DefaultTagVocabulary = []string{
	"python", "typescript", "javascript", "react", "node",
	"docker", "kubernetes", "aws", "git", "api", "database",
	"test", "security", "auth", "jwt", "oauth", "hooks",
	"memory", "cache", "performance", "async", "websocket",
}

var (
	decisionPatterns = compileAll(
		`\bdecided to `+phrase,
		`\bchose ([^.!?\n]+?) over\b`,
		`\bwill use `+phrase,
		`\bgoing with `+phrase,
		`\bselected `+phrase,
	)

	errorPatterns = compileAll(
		`\berror[:\s]+`+phrase,
		`\bfailed[:\s]+`+phrase,
		`\bbug[:\s]+`+phrase,
		`\bissue[:\s]+`+phrase,
		`\bproblem[:\s]+`+phrase,
	)

	successPatterns = compileAll(
		`\bsuccessfully `+phrase,
		`\bcompleted `+phrase,
		`\bfixed `+phrase,
		`\bimplemented `+phrase,
		`\bcreated `+phrase,
	)

	preferencePatterns = compileAll(
		`\bprefers? `+phrase,
		`\blikes? `+phrase,
		`\bwants? `+phrase,
		`\balways `+phrase,
		`\bnever `+phrase,
	)

	filePatterns = compileAll(
		"\\b(?:created|modified|edited|wrote)\\s+(?:to\\s+)?[`'\"]?([^\\s`'\"]+\\.[a-zA-Z]+)",
		"\\b(?:file|path)[:\\s]+[`'\"]?([^\\s`'\"]+\\.[a-zA-Z]+)",
	)

	taskPatterns = compileAll(
		`\btask[:\s]+([^\n]+)`,
		`\bimplement[:\s]+([^\n]+)`,
		`\bcreate[:\s]+([^\n]+)`,
		`\bfix[:\s]+([^\n]+)`,
	)
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + expr)
	}
	return out
}

// HeuristicExtractor implements Extractor with regular expressions and a
// keyword vocabulary.
type HeuristicExtractor struct {
	vocabulary []string
}

// NewHeuristicExtractor creates an extractor using DefaultTagVocabulary.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{vocabulary: DefaultTagVocabulary}
}

// NewHeuristicExtractorWithVocabulary creates an extractor with custom tag
// keywords. An empty vocabulary falls back to the default.
func NewHeuristicExtractorWithVocabulary(vocabulary []string) *HeuristicExtractor {
	if len(vocabulary) == 0 {
		vocabulary = DefaultTagVocabulary
	}
	return &HeuristicExtractor{vocabulary: vocabulary}
}

// Extract runs every heuristic over the transcript content.
func (h *HeuristicExtractor) Extract(ctx context.Context, t *Transcript) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := ""
	if t != nil {
		text = t.Content
	}

	ext := &Extraction{
		Task:        h.TaskSummary(text),
		Decisions:   h.Decisions(text),
		Errors:      h.Errors(text),
		Successes:   h.Successes(text),
		Preferences: h.Preferences(text),
		Files:       h.Files(text),
		Tags:        h.Tags(text),
	}
	ext.Success = len(ext.Successes) >= len(ext.Errors)
	return ext, nil
}

// Decisions returns up to 10 "decided to ..." style phrases.
func (h *HeuristicExtractor) Decisions(text string) []string {
	return capture(text, decisionPatterns)
}

// Errors returns up to 10 "error: ..." style phrases.
func (h *HeuristicExtractor) Errors(text string) []string {
	return capture(text, errorPatterns)
}

// Successes returns up to 10 "successfully ..." style phrases.
func (h *HeuristicExtractor) Successes(text string) []string {
	return capture(text, successPatterns)
}

// Preferences returns up to 10 "prefer ..." style phrases.
func (h *HeuristicExtractor) Preferences(text string) []string {
	return capture(text, preferencePatterns)
}

// EstimateSuccess reports whether success phrases are at least as frequent
// as error phrases.
func (h *HeuristicExtractor) EstimateSuccess(text string) bool {
	return len(h.Successes(text)) >= len(h.Errors(text))
}

// Files returns up to 20 distinct file paths mentioned as created, modified
// or named, in order of first mention.
func (h *HeuristicExtractor) Files(text string) []string {
	seen := make(map[string]bool)
	files := make([]string, 0)
	for _, re := range filePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			files = append(files, m[1])
		}
	}
	if len(files) > maxFiles {
		files = files[:maxFiles]
	}
	return files
}

// TaskSummary returns the first labeled task line within the first 2000
// bytes, falling back to the first non-blank line of text. The result is at most 200
// characters.
func (h *HeuristicExtractor) TaskSummary(text string) string {
	window := truncateBytes(text, taskScanWindow)
	for _, re := range taskPatterns {
		if m := re.FindStringSubmatch(window); m != nil {
			if task := strings.TrimSpace(m[1]); task != "" {
				return truncateRunes(task, maxTaskLength)
			}
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, maxTaskLength)
		}
	}
	return unknownTask
}

// Tags returns up to 10 vocabulary keywords contained in text, in
// vocabulary order.
func (h *HeuristicExtractor) Tags(text string) []string {
	lower := strings.ToLower(text)
	tags := make([]string, 0)
	for _, kw := range h.vocabulary {
		if strings.Contains(lower, strings.ToLower(kw)) {
			tags = append(tags, kw)
			if len(tags) == maxTags {
				break
			}
		}
	}
	return tags
}

// capture collects cleaned first-group matches of each pattern in turn,
// without deduplication, capped at maxPhrases.
func capture(text string, patterns []*regexp.Regexp) []string {
	out := make([]string, 0)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			cleaned, ok := CleanExtraction(m[1])
			if !ok {
				continue
			}
			out = append(out, cleaned)
			if len(out) == maxPhrases {
				return out
			}
		}
	}
	return out
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Extractor = (*HeuristicExtractor)(nil)
