// Package cli holds the process setup shared by the ralph-memory and
// ralph-reflect commands: configuration, logging, telemetry and JSON output.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/logging"
	"github.com/fyrsmithlabs/ralph-memory/internal/telemetry"
	"go.uber.org/zap"
)

// Options are the global flags of both commands.
type Options struct {
	// Root overrides RALPH_DIR.
	Root string

	// ConfigPath overrides <root>/config/memory-config.json.
	ConfigPath string

	// Metrics enables the in-process meter provider and prints its
	// snapshot to stderr when the command finishes.
	Metrics bool

	// LogFile adds a file sink to the logger.
	LogFile func(cfg *config.Config) string

	// Quiet disables the stderr log sink. Ignored when there is no file
	// sink, since the logger needs an output.
	Quiet bool
}

// Env is the per-process state a command runs with.
type Env struct {
	Config    *config.Config
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry

	stderr io.Writer
}

// Setup loads configuration and builds the logger.
//
// A configuration document that cannot be loaded is not fatal: the defaults
// are used and a warning is logged.
func Setup(opts Options, stderr io.Writer) (*Env, error) {
	cfg, loadErr := config.Load(opts.Root, opts.ConfigPath)
	if loadErr != nil {
		cfg = config.Default()
		if opts.Root != "" {
			cfg.RootDir = opts.Root
		}
	}

	logFile := ""
	if opts.LogFile != nil {
		logFile = opts.LogFile(cfg)
	}
	logCfg, err := logging.FromSettings(cfg.Logging, logFile)
	if err != nil {
		logCfg = logging.NewDefaultConfig()
		logCfg.Output.File = logFile
	}
	if opts.Quiet && logFile != "" {
		logCfg.Output.Stderr = false
	}

	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if loadErr != nil {
		logger.Warn(context.Background(), "config unavailable, using defaults", zap.Error(loadErr))
	}

	return &Env{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry.New(opts.Metrics),
		stderr:    stderr,
	}, nil
}

// Zap returns the logger in the form stores and executors accept.
func (e *Env) Zap() *zap.Logger {
	return e.Logger.Underlying()
}

// Close prints the metrics snapshot, if enabled, and flushes the logger.
func (e *Env) Close(ctx context.Context) error {
	if e.Telemetry.IsEnabled() {
		if err := e.Telemetry.WriteSnapshot(ctx, e.stderr); err != nil {
			e.Logger.Warn(ctx, "failed to write metrics snapshot", zap.Error(err))
		}
		_ = e.Telemetry.Shutdown(ctx)
	}
	return e.Logger.Close()
}

// PrintJSON writes v to w with two-space indentation.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Stderr returns w, or os.Stderr when w is nil.
func Stderr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}
