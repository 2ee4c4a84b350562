// Package storage persists the run log: one entry per successfully delivered
// message.
//
// Drivers:
//   - file: append-only text log, one "=== <timestamp> ===" block per entry
//   - sqlite: queryable runs table (modernc.org/sqlite, no cgo)
//   - none: disabled
package storage
