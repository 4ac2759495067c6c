package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.RootDir)
	assert.Equal(t, 3, cfg.ColdPath.PatternDetectionThreshold)
	assert.Equal(t, 50, cfg.Procedural.MaxRules)
}

func TestLoad_JSONDocument(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, "config", "memory-config.json"), `{
  "version": "2.49.0",
  "cold_path": {"enabled": false, "pattern_detection_threshold": 5},
  "procedural": {"confidence_decay_per_week": 0.1, "min_confidence": 0.6, "max_rules": 20},
  "episodic": {"ttl_days": 30, "min_importance_to_keep": 4}
}`)

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.False(t, cfg.ColdPath.Enabled)
	assert.Equal(t, 5, cfg.ColdPath.PatternDetectionThreshold)
	assert.InDelta(t, 0.1, cfg.Procedural.ConfidenceDecayPerWeek, 1e-9)
	assert.InDelta(t, 0.6, cfg.Procedural.MinConfidence, 1e-9)
	assert.Equal(t, 20, cfg.Procedural.MaxRules)
	assert.Equal(t, 30, cfg.Episodic.TTLDays)
	assert.Equal(t, 4, cfg.Episodic.MinImportanceToKeep)

	// Keys absent from the document keep their defaults.
	assert.InDelta(t, 0.3, cfg.Procedural.AgeDecayFloor, 1e-9)
	assert.Equal(t, 1000, cfg.Episodic.LegacyIndexCap)
	assert.Equal(t, 5*time.Second, cfg.Storage.LockTimeout.Duration())
}

func TestLoad_YAMLDocument(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "custom.yaml")
	writeConfig(t, path, "cold_path:\n  pattern_detection_threshold: 7\nstorage:\n  lock_timeout: 250ms\n")

	cfg, err := Load(root, path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.ColdPath.PatternDetectionThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Storage.LockTimeout.Duration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, "config", "memory-config.json"),
		`{"cold_path": {"pattern_detection_threshold": 5}}`)

	t.Setenv("RALPH_COLD_PATH_PATTERN_DETECTION_THRESHOLD", "9")
	t.Setenv("RALPH_EPISODIC_TTL_DAYS", "14")
	t.Setenv("RALPH_SECRETS_ENABLED", "false")

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.ColdPath.PatternDetectionThreshold)
	assert.Equal(t, 14, cfg.Episodic.TTLDays)
	assert.False(t, cfg.Secrets.Enabled)
}

func TestLoad_InvalidDocument(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, "config", "memory-config.json"), `{not json`)

	_, err := Load(root, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, "config", "memory-config.json"),
		`{"procedural": {"max_rules": 0}}`)

	_, err := Load(root, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_rules")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RALPH_COLD_PATH_ENABLED", "cold_path.enabled"},
		{"RALPH_PROCEDURAL_MAX_RULES", "procedural.max_rules"},
		{"RALPH_EPISODIC_MIN_IMPORTANCE_TO_KEEP", "episodic.min_importance_to_keep"},
		{"RALPH_STORAGE_LOCK_TIMEOUT", "storage.lock_timeout"},
		{"RALPH_HOOKS_INJECT_RULES", "hooks.inject_rules"},
		{"RALPH_DIR", ""},
		{"RALPH_UNKNOWN_KEY", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	cfg.RootDir = t.TempDir()

	require.NoError(t, EnsureDirs(cfg))

	for _, dir := range []string{
		filepath.Join(cfg.RootDir, "config"),
		filepath.Join(cfg.RootDir, "memory"),
		cfg.EpisodesDir(),
		filepath.Join(cfg.RootDir, "procedural"),
		cfg.LogsDir(),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}
