package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// sections lists the top-level config keys that env overrides may target.
// Section names contain underscores, so the env key cannot be split blindly.
var sections = []string{"cold_path", "procedural", "episodic", "storage", "logging", "secrets", "hooks"}

// Load builds the configuration for the given root directory.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RALPH_COLD_PATH_ENABLED, RALPH_EPISODIC_TTL_DAYS, ...)
//  2. Config document (<root>/config/memory-config.json, or configPath when set)
//  3. Defaults
//
// rootDir may be empty, in which case RALPH_DIR or ~/.ralph is used.
// A missing config document is not an error. A document with a .yaml or .yml
// extension is parsed as YAML, anything else as JSON.
//
// Example:
//
//	cfg, err := config.Load("", "")
//	if err != nil {
//	    cfg = config.Default() // configuration problems are never fatal
//	}
func Load(rootDir, configPath string) (*Config, error) {
	cfg := Default()
	if rootDir != "" {
		cfg.RootDir = rootDir
	}
	if configPath == "" {
		configPath = cfg.ConfigPath()
	}

	k := koanf.New(".")

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), parserFor(configPath)); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Decode over the defaults so absent keys keep their default values.
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return json.Parser()
	}
}

// envKey maps RALPH_COLD_PATH_ENABLED to cold_path.enabled.
// Variables that do not name a known section are ignored.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if strings.HasPrefix(lower, section+"_") {
			return section + "." + strings.TrimPrefix(lower, section+"_")
		}
	}
	return ""
}

// EnsureDirs creates the storage directory tree with owner-only permissions.
func EnsureDirs(cfg *Config) error {
	dirs := []string{
		filepath.Dir(cfg.ConfigPath()),
		filepath.Dir(cfg.SemanticPath()),
		cfg.EpisodesDir(),
		filepath.Dir(cfg.ProceduralPath()),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
