// Package storage persists parsed scan results.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file": JSON Lines journal with in-memory index
//   - "redis": keys per sighting plus a sorted index by disappear time
//
// Simulated runs write under a separate namespace so they never mix with
// real sightings.
package storage
