// Package secrets redacts credentials from transcript-derived text before it
// is written into episodes or semantic facts.
//
// Extraction copies sentences verbatim out of session transcripts, and those
// sessions routinely echo tokens, connection strings and private keys. The
// scrubber runs keyword-gated regular expressions over each captured string
// and replaces matches with a redaction marker. Findings record rule IDs and
// offsets only, never the matched value.
package secrets
