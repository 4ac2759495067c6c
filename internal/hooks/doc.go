// Package hooks dispatches Claude Code lifecycle hook events to the memory
// subsystem.
//
// The hook runner writes one JSON event to stdin (session id, transcript
// path, working directory and event name). Handlers registered for the
// event's type run in registration order and may append context for the
// assistant, which is written back as hookSpecificOutput.additionalContext.
package hooks
