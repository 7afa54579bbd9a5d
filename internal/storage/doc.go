// Package storage persists content records, recipients, watchlists, the
// audit log and small settings in a single SQLite database.
//
// The schema is embedded and created on first open. A database written by
// a different schema version is refused rather than migrated.
package storage
