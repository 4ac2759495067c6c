// Package telemetry owns the process meter provider.
//
// The CLIs are short-lived, so there is no collector to push to. When
// enabled, New installs a global MeterProvider backed by a ManualReader and
// Snapshot reads back what the run recorded:
//
//	tel := telemetry.New(true)
//	defer tel.Shutdown(ctx)
//	// ... run commands ...
//	_ = tel.WriteSnapshot(ctx, os.Stderr)
//
// When disabled the global no-op provider stays in place and Snapshot is
// empty. Telemetry failures never fail the command.
package telemetry
