// Package storage keeps the audit trail of planning actions.
//
// Drivers:
//   - "file": append-only JSON Lines next to the configured path
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
//
// Tasks and plans themselves are never persisted; sessions are in-memory.
package storage
