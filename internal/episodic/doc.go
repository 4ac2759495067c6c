// Package episodic stores one JSON document per episode and maintains the
// derived index used to list and search episodes without reading bodies.
//
// # Layout
//
//	<root>/episodes/index.json             structured index (authoritative)
//	<root>/episodes/legacy-index.json      flat id -> summary projection
//	<root>/episodes/<YYYY-MM>/<id>.json    episode bodies
//
// The month directory is derived from the episode timestamp in UTC, so an
// episode can always be located from its index summary alone.
//
// # Index
//
// The index holds an append log of summaries plus tag and project inverted
// indices. Every id referenced by an inverted index is present in the log,
// and every log entry is referenced by its project and each of its tags.
// The index is checked on every load; a violated invariant is repaired by
// regenerating the inverted indices from the log. Bodies left without a
// summary (for example after a crash between body write and index write)
// are recovered by Rebuild, which rescans the month directories.
//
// A flat map keyed by episode id (the legacy format) is upgraded in place
// the first time it is loaded. Flat entries that appear beside a structured
// index are folded into the log the same way.
package episodic
