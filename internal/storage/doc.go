// Package storage exports refresh executions to an append-only audit trail.
//
// Supported drivers:
//   - "file": JSON Lines, one record per terminal execution
//   - "sqlite": an executions table in a SQLite database (modernc.org/sqlite)
//
// The trail is write-only. Nothing is read back at startup; the in-memory
// history stays the source of truth for the running process.
package storage
