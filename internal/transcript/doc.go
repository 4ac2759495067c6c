// Package transcript turns raw session transcripts into candidate memory.
//
// A Transcript is loaded from a plain-text file or a Claude Code JSONL log.
// For JSONL only user and assistant message text is kept; tool calls, tool
// results and JSON-looking text are dropped before any extraction runs.
//
// Extraction is a pluggable strategy. HeuristicExtractor is the default: it
// scans the text with a fixed set of phrase-introducing regular expressions
// ("decided to ...", "error: ...", "successfully ...") and a keyword
// vocabulary for tags. The heuristics are intentionally simple. In
// particular the success estimate only compares counts of success and error
// phrases, with ties counted as success.
//
// Usage:
//
//	t := transcript.Load(path)
//	ext, err := transcript.NewHeuristicExtractor().Extract(ctx, t)
package transcript
