// Package database owns the SQLite connection used by every ClimaLink
// repository.
//
// Open configures the handle the way the rest of the system expects:
// WAL journalling so the reconciliation loop can read snapshots while
// the command path writes, foreign keys on so command history and
// refresh tokens cascade with their device or user, a busy timeout
// instead of immediate lock errors, and a single pooled connection to
// match SQLite's one-writer model. The file is kept owner-only since it
// stores password hashes and refresh token digests.
//
// Migrate applies the embedded schema steps in timestamp order, one
// transaction each, recording progress in schema_migrations. Steps are
// additive only; the .down.sql files next to each step document the
// manual rollback and are never executed.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
