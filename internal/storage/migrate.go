package storage

import "fmt"

// currentSchemaVersion is the latest schema version.
const currentSchemaVersion = 1

// Migrate runs forward migrations to bring the database schema up to date.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version := 0
	row := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means version 0 (fresh database).
		version = 0
	}

	if version < 1 {
		if err := db.migrateV1(); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates all initial tables and indexes.
func (db *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS callers (
			caller_id  TEXT PRIMARY KEY,
			key_hash   TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ai_call_logs (
			id             TEXT PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			caller_id      TEXT NOT NULL DEFAULT '',
			provider       TEXT NOT NULL,
			model          TEXT NOT NULL,
			purpose        TEXT NOT NULL,
			input_tokens   INTEGER NOT NULL,
			output_tokens  INTEGER NOT NULL,
			total_tokens   INTEGER NOT NULL,
			latency_ms     INTEGER NOT NULL,
			cost_usd       REAL NOT NULL,
			status         TEXT NOT NULL,
			error          TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_call_logs_created ON ai_call_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_call_logs_correlation ON ai_call_logs(correlation_id)`,
		`CREATE TABLE IF NOT EXISTS test_runs (
			id                 TEXT PRIMARY KEY,
			caller_id          TEXT NOT NULL DEFAULT '',
			target_function    TEXT NOT NULL,
			category           TEXT NOT NULL,
			complexity         TEXT NOT NULL,
			provider           TEXT NOT NULL DEFAULT '',
			model              TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			estimated_coverage INTEGER NOT NULL DEFAULT 0,
			recommendations    TEXT NOT NULL DEFAULT '[]',
			test_code          TEXT NOT NULL DEFAULT '',
			latency_ms         INTEGER NOT NULL,
			error              TEXT NOT NULL DEFAULT '',
			created_at         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_test_runs_created ON test_runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS rule_checks (
			id               TEXT PRIMARY KEY,
			caller_id        TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL,
			domain           TEXT NOT NULL,
			provider         TEXT NOT NULL DEFAULT '',
			model            TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			compliance_score INTEGER NOT NULL DEFAULT 0,
			success          INTEGER NOT NULL,
			outcome          TEXT NOT NULL DEFAULT '{}',
			latency_ms       INTEGER NOT NULL,
			error            TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rule_checks_created ON rule_checks(created_at)`,
		`CREATE TABLE IF NOT EXISTS metric_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			type       TEXT NOT NULL,
			value      REAL NOT NULL,
			category   TEXT NOT NULL DEFAULT '',
			domain     TEXT NOT NULL DEFAULT '',
			caller_id  TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			dimensions TEXT NOT NULL DEFAULT '{}',
			metadata   TEXT NOT NULL DEFAULT '{}',
			timestamp  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_events_type_ts ON metric_events(type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS progress_sessions (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			correlation_id TEXT NOT NULL,
			caller_id      TEXT NOT NULL DEFAULT '',
			kind           TEXT NOT NULL,
			opened_at      TEXT NOT NULL,
			closed_at      TEXT,
			terminal_state TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_sessions_correlation ON progress_sessions(correlation_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	if _, err := db.conn.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := db.conn.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}
	return nil
}
