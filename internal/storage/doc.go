// Package storage persists reminders and the delivery dedup table.
//
// Drivers:
//   - memory: process-local maps (default, tests)
//   - sqlite: modernc.org/sqlite, single connection, WAL
//   - postgres: lib/pq
//
// All drivers store instants as Unix milliseconds and return them in UTC.
package storage
