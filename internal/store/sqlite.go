// Package store provides SQLite-backed persistence for the fixflow engine.
//
// Only durable history lives here: archived fix tasks, cycle events, audit
// records, and assessment findings. Lock and admission state is deliberately
// memory-resident and dies with the process.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS fix_tasks (
	task_id        TEXT PRIMARY KEY,
	agent          TEXT NOT NULL,
	fil_level      TEXT NOT NULL,
	phase          TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	paths_json     TEXT NOT NULL DEFAULT '[]',
	created_at     INTEGER NOT NULL DEFAULT 0,
	finished_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_fix_tasks_agent ON fix_tasks(agent, phase);

CREATE TABLE IF NOT EXISTS cycle_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL,
	seq_no     INTEGER NOT NULL,
	from_phase TEXT NOT NULL,
	to_phase   TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(task_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_cycle_events_task ON cycle_events(task_id, seq_no);

CREATE TABLE IF NOT EXISTS audit_records (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	category      TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	request_json  TEXT NOT NULL DEFAULT '{}',
	decision_json TEXT NOT NULL DEFAULT '{}',
	severity      TEXT NOT NULL DEFAULT 'info',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_records(task_id);

CREATE TABLE IF NOT EXISTS findings (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	path       TEXT NOT NULL,
	type       TEXT NOT NULL,
	severity   TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(run_id, path, type)
);
CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
