package logging

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ralph-memory/internal/secrets"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, Trace included, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a recording logger.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns the entries with exactly msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("no %v entry containing %q in %d entries", level, msg, t.observed.Len())
}

// AssertNoSecrets fails tb if a message or string field of any entry
// contains something the transcript secret rules detect. It checks what
// callers passed to the logger, before any encoder redaction.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	scrubber := secrets.MustNew(secrets.DefaultConfig())
	for _, e := range t.observed.All() {
		if r := scrubber.Scrub(e.Message); r.HasFindings() {
			tb.Errorf("secret (%s) in message %q", strings.Join(r.RuleIDs(), ","), r.Scrubbed)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if r := scrubber.Scrub(f.String); r.HasFindings() {
				tb.Errorf("secret (%s) in field %q of %q", strings.Join(r.RuleIDs(), ","), f.Key, e.Message)
			}
		}
	}
}
