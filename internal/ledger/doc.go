// Package ledger persists the synchronization ledger: which external tasks
// have already produced a central task, when completions and claims were
// propagated, and how far polling has progressed per external system.
//
// The ledger is what makes the overlapping poll window safe. Polls
// deliberately re-offer tasks near the watermark; the ledger is the record
// that collapses those re-offers back to at-most-once creation.
//
// Two backends are provided, selected by DSN scheme: SQLite (default, WAL
// mode, single file) and PostgreSQL. All mutations are single-row upserts,
// so concurrent jobs cannot corrupt the ledger; the engine requires no
// cross-row atomicity.
package ledger
