// Package database owns the SQLite store backing Miras Core.
//
// Rundown projects with their event grids are the only durable state the
// core keeps. Device and playout state is live: it is rebuilt from the
// hardware after a restart, never persisted. SQLite in WAL mode fits
// that profile — a single writer, concurrent readers, and one file that
// gets backed up alongside the studio configuration.
//
// The package manages:
//   - Connection setup with the pragmas the repository relies on
//     (foreign keys on, busy timeout, WAL)
//   - Schema migrations embedded in the binary
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the migrations package at the repository root
// and are named <YYYYMMDD_HHMMSS>_<description>.up.sql with a matching
// .down.sql. The schema only moves forward in production; MigrateDown
// exists for development.
package database
