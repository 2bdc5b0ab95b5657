// Package sqlite opens and migrates the durable local store shared by the
// background and foreground execution contexts. The two contexts hold no
// in-memory state in common; every hand-off goes through these tables.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the local database at path and runs schema
// migrations. WAL mode keeps short background writes from blocking the
// foreground reconciler.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	statements := []string{
		// Single active-session slot: slot is constrained to 1.
		`CREATE TABLE IF NOT EXISTS alarm_session (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS decision_states (
			session_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			appended_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_events_session_type
			ON sync_events (session_id, event_type, appended_at)`,
		`CREATE TABLE IF NOT EXISTS pending_creates (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			surrogate_id TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL,
			requested_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS heartbeats (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			distance_m REAL NOT NULL,
			accuracy_m REAL,
			fired INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
