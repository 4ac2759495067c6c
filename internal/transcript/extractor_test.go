package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicExtractor_DecisionAndError(t *testing.T) {
	h := NewHeuristicExtractor()
	text := "I decided to use Redis for caching. Error: connection timeout occurred."

	assert.Contains(t, h.Decisions(text), "use Redis for caching")
	assert.Contains(t, h.Errors(text), "connection timeout occurred")
	assert.Empty(t, h.Successes(text))
	assert.False(t, h.EstimateSuccess(text))
}

func TestHeuristicExtractor_Phrases(t *testing.T) {
	h := NewHeuristicExtractor()

	tests := []struct {
		name string
		fn   func(string) []string
		text string
		want []string
	}{
		{
			name: "chose over",
			fn:   h.Decisions,
			text: "We chose PostgreSQL with pgx over SQLite for concurrency.",
			want: []string{"PostgreSQL with pgx"},
		},
		{
			name: "going with stops at newline",
			fn:   h.Decisions,
			text: "Going with the token bucket limiter\nnext line here",
			want: []string{"the token bucket limiter"},
		},
		{
			name: "short capture dropped",
			fn:   h.Decisions,
			text: "I will use Go. I selected the streaming JSON decoder!",
			want: []string{"the streaming JSON decoder"},
		},
		{
			name: "failure phrases",
			fn:   h.Errors,
			text: "The build failed: missing checksum entry. Found a bug in the retry loop?",
			want: []string{"missing checksum entry", "in the retry loop"},
		},
		{
			name: "success phrases",
			fn:   h.Successes,
			text: "Successfully migrated the index. Fixed the flaky lock test.",
			want: []string{"migrated the index", "the flaky lock test"},
		},
		{
			name: "preferences",
			fn:   h.Preferences,
			text: "The user prefers table-driven tests. Never commit generated mocks.",
			want: []string{"table-driven tests", "commit generated mocks"},
		},
		{
			name: "json fragments dropped",
			fn:   h.Decisions,
			text: `decided to {"action": "test", "value": 123}`,
			want: []string{},
		},
		{
			name: "word boundary",
			fn:   h.Errors,
			text: "terror: this should not be an error",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.text))
		})
	}
}

func TestHeuristicExtractor_PhraseCap(t *testing.T) {
	h := NewHeuristicExtractor()
	text := strings.Repeat("Error: the same timeout again.\n", 25)

	errs := h.Errors(text)
	assert.Len(t, errs, 10)
	// Duplicates are kept.
	assert.Equal(t, "the same timeout again", errs[9])
}

func TestHeuristicExtractor_EstimateSuccessTie(t *testing.T) {
	h := NewHeuristicExtractor()
	assert.True(t, h.EstimateSuccess(""))
	assert.True(t, h.EstimateSuccess("Error: disk quota exceeded. Successfully retried the upload."))
}

func TestHeuristicExtractor_Files(t *testing.T) {
	h := NewHeuristicExtractor()
	text := "Created `internal/store/store.go` and modified internal/store/store.go again.\n" +
		"file: README.md\nwrote to 'cmd/main.go'"

	assert.Equal(t, []string{"internal/store/store.go", "cmd/main.go", "README.md"}, h.Files(text))

	var many strings.Builder
	for i := 0; i < 30; i++ {
		many.WriteString("created f")
		many.WriteString(strings.Repeat("x", i+1))
		many.WriteString(".go\n")
	}
	assert.Len(t, h.Files(many.String()), 20)
}

func TestHeuristicExtractor_TaskSummary(t *testing.T) {
	h := NewHeuristicExtractor()

	assert.Equal(t, "add retries to the uploader",
		h.TaskSummary("hello\nTask: add retries to the uploader\nmore"))
	assert.Equal(t, "first line of the session",
		h.TaskSummary("first line of the session\nnothing labeled"))
	assert.Equal(t, "Unknown task", h.TaskSummary(""))
	assert.Equal(t, "deployed the service",
		h.TaskSummary("\n  \n  deployed the service  \nnext"))
	assert.Equal(t, "Unknown task", h.TaskSummary("   \n\t\n"))

	long := "Task: " + strings.Repeat("a", 300)
	assert.Len(t, h.TaskSummary(long), 200)

	// Labels beyond the scan window are ignored.
	late := "intro\n" + strings.Repeat("x", 2100) + "\ntask: too late"
	assert.Equal(t, "intro", h.TaskSummary(late))
}

func TestHeuristicExtractor_Tags(t *testing.T) {
	h := NewHeuristicExtractor()

	tags := h.Tags("We implemented a Python API with Docker and Kubernetes")
	assert.Equal(t, []string{"python", "docker", "kubernetes", "api"}, tags)

	all := h.Tags(strings.Join(DefaultTagVocabulary, " "))
	assert.Len(t, all, 10)

	custom := NewHeuristicExtractorWithVocabulary([]string{"Terraform"})
	assert.Equal(t, []string{"Terraform"}, custom.Tags("terraform plan"))
}

func TestHeuristicExtractor_Extract(t *testing.T) {
	h := NewHeuristicExtractor()
	tr := FromText("Task: wire the docker cache\nI decided to use BuildKit cache mounts. Successfully reduced build time.")

	ext, err := h.Extract(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, "wire the docker cache", ext.Task)
	assert.Equal(t, []string{"use BuildKit cache mounts"}, ext.Decisions)
	assert.Equal(t, []string{"reduced build time"}, ext.Successes)
	assert.True(t, ext.Success)
	assert.Equal(t, []string{"docker", "cache"}, ext.Tags)
	assert.Equal(t, []string{"reduced build time"}, ext.Learnings())
}

func TestHeuristicExtractor_ExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristicExtractor().Extract(ctx, FromText("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanExtraction(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"short", "", false},
		{`{"key": "value", "nested": true}`, "", false},
		{"/Users/test/path/to/file.py", "", false},
		{"internal/store/file.go", "", false},
		{"  use TypeScript for better type safety  ", "use TypeScript for better type safety", true},
		{"`quoted phrase here`", "quoted phrase here", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CleanExtraction(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
