package storage

import "strconv"

// schemaVersion tracks the current schema revision. Bump it and add a branch
// to runMigrations whenever the schema changes.
const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS obfuscation_runs (
	id                           TEXT PRIMARY KEY,
	project_root                 TEXT NOT NULL,
	started_at                   TEXT NOT NULL,
	finished_at                  TEXT,
	status                       TEXT NOT NULL DEFAULT 'running',
	python_files_discovered      INTEGER NOT NULL DEFAULT 0,
	python_files_processed       INTEGER NOT NULL DEFAULT 0,
	python_files_unchanged       INTEGER NOT NULL DEFAULT 0,
	symbols_discovered           INTEGER NOT NULL DEFAULT 0,
	symbols_renamed              INTEGER NOT NULL DEFAULT 0,
	symbols_skipped_external     INTEGER NOT NULL DEFAULT 0,
	symbols_renamed_likely_local INTEGER NOT NULL DEFAULT 0,
	dynamic_name_rewrites        INTEGER NOT NULL DEFAULT 0,
	error_message                TEXT
);

CREATE TABLE IF NOT EXISTS rename_map_entries (
	run_id          TEXT NOT NULL REFERENCES obfuscation_runs(id) ON DELETE CASCADE,
	original_name   TEXT NOT NULL,
	obfuscated_name TEXT NOT NULL,
	kind            TEXT NOT NULL,
	ownership       TEXT NOT NULL,
	provenance      TEXT NOT NULL,
	PRIMARY KEY (run_id, original_name, kind)
);

CREATE INDEX IF NOT EXISTS idx_rename_map_entries_run
	ON rename_map_entries(run_id);

CREATE TABLE IF NOT EXISTS duplicate_scan_runs (
	id                     TEXT PRIMARY KEY,
	project_root           TEXT NOT NULL,
	started_at             TEXT NOT NULL,
	finished_at            TEXT,
	status                 TEXT NOT NULL DEFAULT 'running',
	blocks_scanned         INTEGER NOT NULL DEFAULT 0,
	duplicate_groups_found INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS duplicate_blocks (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES duplicate_scan_runs(id) ON DELETE CASCADE,
	file_path       TEXT NOT NULL,
	qualified_name  TEXT NOT NULL,
	kind            TEXT NOT NULL,
	fingerprint_hash TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	start_line      INTEGER NOT NULL,
	end_line        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_duplicate_blocks_run
	ON duplicate_blocks(run_id);
CREATE INDEX IF NOT EXISTS idx_duplicate_blocks_fingerprint
	ON duplicate_blocks(fingerprint_hash);

CREATE TABLE IF NOT EXISTS duplicate_groups (
	id                    TEXT PRIMARY KEY,
	run_id                TEXT NOT NULL REFERENCES duplicate_scan_runs(id) ON DELETE CASCADE,
	representative_block_id TEXT NOT NULL REFERENCES duplicate_blocks(id),
	member_count          INTEGER NOT NULL DEFAULT 0,
	intent_summary        TEXT
);

CREATE TABLE IF NOT EXISTS duplicate_group_members (
	group_id         TEXT NOT NULL REFERENCES duplicate_groups(id) ON DELETE CASCADE,
	block_id         TEXT NOT NULL REFERENCES duplicate_blocks(id) ON DELETE CASCADE,
	similarity_score REAL NOT NULL,
	PRIMARY KEY (group_id, block_id)
);
`

func (db *DB) initializeSchema() error {
	if _, err := db.conn.Exec(schemaDDL); err != nil {
		return err
	}
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmtVersion(schemaVersion),
	)
	return err
}

// runMigrations brings an existing database up to schemaVersion. The DDL is
// written with CREATE TABLE/INDEX IF NOT EXISTS, so re-applying it against an
// older database is a no-op for tables already present and additive for new
// ones; version-specific branches go here as the schema evolves.
func (db *DB) runMigrations() error {
	if _, err := db.conn.Exec(schemaDDL); err != nil {
		return err
	}

	var current string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&current)
	if err != nil {
		_, err = db.conn.Exec(
			`INSERT INTO schema_meta (key, value) VALUES ('version', ?)`,
			fmtVersion(schemaVersion),
		)
		return err
	}

	if current != fmtVersion(schemaVersion) {
		_, err = db.conn.Exec(
			`UPDATE schema_meta SET value = ? WHERE key = 'version'`,
			fmtVersion(schemaVersion),
		)
		return err
	}

	return nil
}

func fmtVersion(v int) string {
	return strconv.Itoa(v)
}
