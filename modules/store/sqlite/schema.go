package sqlite

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application. Timestamps are unix
// nanoseconds so window arithmetic stays integer comparisons.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS invocations (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		tool     TEXT    NOT NULL,
		user_id  TEXT    NOT NULL,
		agent_id TEXT    NOT NULL DEFAULT '',
		run_id   TEXT    NOT NULL DEFAULT '',
		at_ns    INTEGER NOT NULL,
		executed INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invocations_tool_at ON invocations(tool, at_ns)`,
	`CREATE INDEX IF NOT EXISTS idx_invocations_tool_user_at ON invocations(tool, user_id, at_ns)`,

	`CREATE TABLE IF NOT EXISTS pendings (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		tool       TEXT NOT NULL,
		args       TEXT NOT NULL DEFAULT '{}',
		agent_id   TEXT NOT NULL DEFAULT '',
		user_id    TEXT NOT NULL DEFAULT '',
		run_id     TEXT NOT NULL DEFAULT '',
		prompt     TEXT NOT NULL DEFAULT '',
		created_ns INTEGER NOT NULL,
		state      TEXT NOT NULL DEFAULT 'pending',
		decided_by TEXT NOT NULL DEFAULT '',
		decided_ns INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_pendings_state ON pendings(state, kind, created_ns)`,

	`CREATE TABLE IF NOT EXISTS runs (
		run_id     TEXT PRIMARY KEY,
		agent_id   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		started_ns INTEGER NOT NULL,
		payload    TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_agent_started ON runs(agent_id, started_ns DESC)`,

	`CREATE TABLE IF NOT EXISTS tool_overrides (
		name                 TEXT PRIMARY KEY,
		enabled              INTEGER,
		require_confirmation INTEGER,
		per_user_cooldown_ns INTEGER,
		global_cooldown_ns   INTEGER,
		max_per_hour         INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS module_overrides (
		id               TEXT PRIMARY KEY,
		enabled          INTEGER,
		priority         INTEGER,
		appended_text    TEXT NOT NULL DEFAULT '',
		trigger_keywords TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS shifts (
		id        TEXT PRIMARY KEY,
		user_id   TEXT NOT NULL,
		day       TEXT NOT NULL,
		start_min INTEGER NOT NULL,
		end_min   INTEGER NOT NULL,
		published INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_shifts_day ON shifts(day)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		assignee   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'open',
		due_day    TEXT NOT NULL DEFAULT '',
		updated_ns INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, due_day)`,

	`CREATE TABLE IF NOT EXISTS users (
		id   TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'staff'
	)`,

	`CREATE TABLE IF NOT EXISTS permission_overrides (
		user_id TEXT NOT NULL,
		route   TEXT NOT NULL,
		action  TEXT NOT NULL DEFAULT '',
		granted INTEGER NOT NULL,
		PRIMARY KEY (user_id, route, action)
	)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		channel   TEXT NOT NULL,
		body      TEXT NOT NULL,
		queued_by TEXT NOT NULL DEFAULT '',
		queued_ns INTEGER NOT NULL
	)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}
