// Package memory is the hot path entry point to the memory stores.
//
// Manager composes the semantic, episodic and procedural stores and the
// per-agent reasoning log behind one API: writes that return a small result
// record, a search fanned out across store types, and GetContextForTask,
// which gathers everything relevant to a task in one call. The cold path
// (internal/reflection) uses the stores directly; the files on disk are the
// only state the two share.
package memory
