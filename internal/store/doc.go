// Package store manages tagflow's persistent state in a single SQLite
// database: the track table that powers resume, the append-only move ledger
// that powers rollback, and the response cache for oracle replies.
package store
