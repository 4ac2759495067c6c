// Package reflection runs the cold path of the memory subsystem.
//
// The Executor turns finished session transcripts into episodes, mines the
// episode index for recurring tags to synthesize procedural rules, and
// enforces retention. Each operation is independent and safe to run from a
// detached process while the hot path writes to the same stores: every
// store mutation is a locked read-modify-write.
//
// Operations:
//
//	Extract            transcript -> episode (secrets scrubbed)
//	DetectPatterns     episode index -> candidate rules
//	SaveProceduralRules merge candidates, age decay, retention
//	CleanupOldEpisodes TTL sweep of episodes and facts, legacy index export
//	DecayUnusedRules   lower confidence of rules never applied
//	Status             counts and recent activity
//
// A Watcher runs Extract and pattern mining whenever a transcript in a
// watched directory settles, and RegisterHooks wires the same pipeline to
// SessionEnd and PreCompact hook events.
package reflection
