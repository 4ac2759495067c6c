package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "episode written", zap.String("episode_id", "ep-1"))

	tl.AssertNoSecrets(t)
	tl.AssertLogged(t, zapcore.InfoLevel, "episode")

	leaky := NewTestLogger()
	leaky.Warn(context.Background(), "transcript line",
		zap.String("text", "DATABASE_URL=postgres://app:s3cretpw@db:5432/app"))

	rec := &recordingTB{TB: t}
	leaky.AssertNoSecrets(rec)
	assert.True(t, rec.failed)
}

// recordingTB captures failures instead of failing the test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...any) { r.failed = true }
