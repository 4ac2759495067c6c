// Package config provides configuration loading for the memory subsystem.
//
// A single Config is built once at process start (defaults, then the JSON
// config document, then environment overrides) and passed by pointer into
// every store and executor constructor. Nothing in this package reads
// configuration lazily or keeps process-global state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvRootDir overrides the storage root directory.
	EnvRootDir = "RALPH_DIR"

	// EnvPrefix is the prefix for environment overrides of config keys.
	// RALPH_COLD_PATH_ENABLED -> cold_path.enabled
	EnvPrefix = "RALPH_"

	defaultRootDirName = ".ralph"
)

// Config holds the complete memory subsystem configuration.
type Config struct {
	// RootDir is the storage root. Not read from the config document.
	RootDir string `koanf:"-"`

	ColdPath   ColdPathConfig   `koanf:"cold_path"`
	Procedural ProceduralConfig `koanf:"procedural"`
	Episodic   EpisodicConfig   `koanf:"episodic"`
	Storage    StorageConfig    `koanf:"storage"`
	Logging    LoggingConfig    `koanf:"logging"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Hooks      HooksConfig      `koanf:"hooks"`
}

// ColdPathConfig controls the background reflection pipeline.
type ColdPathConfig struct {
	Enabled                   bool     `koanf:"enabled"`
	PatternDetectionThreshold int      `koanf:"pattern_detection_threshold"`
	WatchSettle               Duration `koanf:"watch_settle"`
}

// ProceduralConfig controls rule retention and decay.
type ProceduralConfig struct {
	ConfidenceDecayPerWeek float64 `koanf:"confidence_decay_per_week"`
	MinConfidence          float64 `koanf:"min_confidence"`
	MaxRules               int     `koanf:"max_rules"`
	AgeDecayFloor          float64 `koanf:"age_decay_floor"`
	UnusedDecayRate        float64 `koanf:"unused_decay_rate"`
}

// EpisodicConfig controls episode retention.
type EpisodicConfig struct {
	TTLDays             int `koanf:"ttl_days"`
	MinImportanceToKeep int `koanf:"min_importance_to_keep"`
	LegacyIndexCap      int `koanf:"legacy_index_cap"`
}

// StorageConfig controls file locking.
type StorageConfig struct {
	LockTimeout Duration `koanf:"lock_timeout"`
}

// LoggingConfig is the subset of logging settings exposed in the config document.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SecretsConfig toggles secret scrubbing of transcript-derived text.
type SecretsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// HooksConfig controls what lifecycle hook events trigger.
type HooksConfig struct {
	// ExtractOnSessionEnd runs extraction and pattern mining when a session ends.
	ExtractOnSessionEnd bool `koanf:"extract_on_session_end"`

	// ExtractOnPreCompact does the same before the context is compacted.
	ExtractOnPreCompact bool `koanf:"extract_on_pre_compact"`

	// InjectRules adds procedural rule prompts to PreToolUse, SessionStart
	// and UserPromptSubmit events.
	InjectRules bool `koanf:"inject_rules"`

	// MaxInjections caps the prompts added to a single event.
	MaxInjections int `koanf:"max_injections"`
}

// Default returns a Config populated with documented defaults.
// RootDir is resolved from RALPH_DIR or ~/.ralph.
func Default() *Config {
	return &Config{
		RootDir: DefaultRootDir(),
		ColdPath: ColdPathConfig{
			Enabled:                   true,
			PatternDetectionThreshold: 3,
			WatchSettle:               Duration(2 * time.Second),
		},
		Procedural: ProceduralConfig{
			ConfidenceDecayPerWeek: 0.05,
			MinConfidence:          0.7,
			MaxRules:               50,
			AgeDecayFloor:          0.3,
			UnusedDecayRate:        0.05,
		},
		Episodic: EpisodicConfig{
			TTLDays:             90,
			MinImportanceToKeep: 3,
			LegacyIndexCap:      1000,
		},
		Storage: StorageConfig{
			LockTimeout: Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Hooks: HooksConfig{
			ExtractOnSessionEnd: true,
			ExtractOnPreCompact: true,
			InjectRules:         true,
			MaxInjections:       5,
		},
	}
}

// DefaultRootDir returns $RALPH_DIR, or ~/.ralph when unset.
func DefaultRootDir() string {
	if dir := os.Getenv(EnvRootDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultRootDirName
	}
	return filepath.Join(home, defaultRootDirName)
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return errors.New("root directory cannot be empty")
	}
	if c.ColdPath.PatternDetectionThreshold < 1 {
		return fmt.Errorf("cold_path.pattern_detection_threshold must be >= 1, got %d", c.ColdPath.PatternDetectionThreshold)
	}
	if c.Procedural.ConfidenceDecayPerWeek < 0 {
		return fmt.Errorf("procedural.confidence_decay_per_week cannot be negative, got %v", c.Procedural.ConfidenceDecayPerWeek)
	}
	if c.Procedural.MinConfidence < 0 || c.Procedural.MinConfidence > 1 {
		return fmt.Errorf("procedural.min_confidence must be between 0.0 and 1.0, got %v", c.Procedural.MinConfidence)
	}
	if c.Procedural.AgeDecayFloor < 0 || c.Procedural.AgeDecayFloor > 1 {
		return fmt.Errorf("procedural.age_decay_floor must be between 0.0 and 1.0, got %v", c.Procedural.AgeDecayFloor)
	}
	if c.Procedural.MaxRules < 1 {
		return fmt.Errorf("procedural.max_rules must be >= 1, got %d", c.Procedural.MaxRules)
	}
	if c.Episodic.TTLDays < 0 {
		return fmt.Errorf("episodic.ttl_days cannot be negative, got %d", c.Episodic.TTLDays)
	}
	if c.Episodic.LegacyIndexCap < 1 {
		return fmt.Errorf("episodic.legacy_index_cap must be >= 1, got %d", c.Episodic.LegacyIndexCap)
	}
	if c.Storage.LockTimeout.Duration() <= 0 {
		return errors.New("storage.lock_timeout must be positive")
	}
	if c.Hooks.MaxInjections < 0 {
		return fmt.Errorf("hooks.max_injections cannot be negative, got %d", c.Hooks.MaxInjections)
	}
	return nil
}

// Path helpers. Every store derives its location from RootDir.

// ConfigPath returns the default config document location.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.RootDir, "config", "memory-config.json")
}

// SemanticPath returns the semantic fact document.
func (c *Config) SemanticPath() string {
	return filepath.Join(c.RootDir, "memory", "semantic.json")
}

// EpisodesDir returns the month-partitioned episode directory.
func (c *Config) EpisodesDir() string {
	return filepath.Join(c.RootDir, "episodes")
}

// ProceduralPath returns the procedural rule document.
func (c *Config) ProceduralPath() string {
	return filepath.Join(c.RootDir, "procedural", "rules.json")
}

// LogsDir returns the log directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.RootDir, "logs")
}

// ReflectionLogPath returns the cold path activity log.
func (c *Config) ReflectionLogPath() string {
	return filepath.Join(c.LogsDir(), "reflection.log")
}

// AgentMemoryDir returns the per-agent reasoning log root.
func (c *Config) AgentMemoryDir() string {
	return filepath.Join(c.RootDir, "agent-memory")
}
