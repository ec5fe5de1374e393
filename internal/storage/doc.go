// Package storage persists join statistics and a few daemon facts (first
// start, detected server version) across restarts.
//
// Drivers:
//   - sqlite: modernc.org/sqlite, single writer, WAL
//   - bolt:   go.etcd.io/bbolt, one bucket per table
package storage
