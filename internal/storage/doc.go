// Package storage persists liveness probe history and the operator audit log.
//
// Drivers:
//   - file: JSON Lines journals next to the configured path
//   - sqlite: a single SQLite database (modernc.org/sqlite, no cgo)
package storage
