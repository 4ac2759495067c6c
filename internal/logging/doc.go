// Package logging provides structured logging for the memory tools.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Stderr, append-only file and optional OpenTelemetry outputs
//   - Automatic context field injection (trace_id, project, session)
//   - Encoder-level secret redaction
//   - Level-aware sampling (errors never sampled)
//
// Stdout is never written: hook handlers use it for protocol output.
//
// # Usage
//
// Build a logger from the memory config document:
//
//	lcfg, err := logging.FromSettings(cfg.Logging, cfg.ReflectionLogPath())
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(lcfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// Log with context:
//
//	ctx = logging.WithProject(ctx, "ralph")
//	logger.Info(ctx, "episode stored", zap.String("episode_id", id))
//
// Stores and executors take a plain *zap.Logger; pass logger.Underlying().
//
// # Secret Redaction
//
// Values of the keys listed in RedactionConfig.Fields are replaced with
// "[REDACTED]". With RedactionConfig.Scrub, messages and string values go
// through the same secret rules as transcripts, so only the secret itself
// is replaced. Use Masked to log that a value was present:
//
//	logger.Info(ctx, "hook event", logging.Masked("authorization", header))
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertNoSecrets(t)
package logging
