package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "neurons: file, tool, error and semantic memory units",
		SQL: `
CREATE TABLE neurons (
    id               INTEGER PRIMARY KEY,
    type             TEXT NOT NULL CHECK (type IN ('file', 'tool', 'error', 'semantic')),
    path             TEXT NOT NULL,
    access_count     INTEGER NOT NULL DEFAULT 1 CHECK (access_count >= 1),
    myelination      REAL NOT NULL CHECK (myelination >= 0 AND myelination <= 1),
    contexts         TEXT NOT NULL DEFAULT '[]',
    size_bytes       INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    decayed_at       INTEGER NOT NULL DEFAULT 0,

    UNIQUE (type, path)
);

CREATE INDEX idx_neurons_myelination ON neurons(myelination DESC);
CREATE INDEX idx_neurons_type        ON neurons(type, last_accessed_at);
`,
	},
	{
		Version:     2,
		Description: "synapses: weighted associations between neurons",
		SQL: `
CREATE TABLE synapses (
    source_id           INTEGER NOT NULL,
    target_id           INTEGER NOT NULL,
    weight              REAL NOT NULL CHECK (weight >= 0 AND weight <= 1),
    co_activation_count INTEGER NOT NULL DEFAULT 1,
    created_at          INTEGER NOT NULL,
    last_reinforced_at  INTEGER NOT NULL,
    decayed_at          INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (source_id, target_id),
    CHECK (source_id <> target_id),
    FOREIGN KEY (source_id) REFERENCES neurons(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES neurons(id) ON DELETE CASCADE
);

CREATE INDEX idx_synapses_target ON synapses(target_id);
CREATE INDEX idx_synapses_weight ON synapses(weight DESC);
`,
	},
	{
		Version:     3,
		Description: "session_window: recently recorded neurons per session",
		SQL: `
CREATE TABLE session_window (
    session_id  TEXT NOT NULL,
    neuron_id   INTEGER NOT NULL,
    seq         INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,

    PRIMARY KEY (session_id, neuron_id),
    FOREIGN KEY (neuron_id) REFERENCES neurons(id) ON DELETE CASCADE
);

CREATE INDEX idx_window_seq ON session_window(session_id, seq DESC);
`,
	},
	{
		Version:     4,
		Description: "open_errors: unresolved errors and the files touched since",
		SQL: `
CREATE TABLE open_errors (
    session_id TEXT NOT NULL,
    error_id   INTEGER NOT NULL,
    opened_at  INTEGER NOT NULL,

    PRIMARY KEY (session_id, error_id),
    FOREIGN KEY (error_id) REFERENCES neurons(id) ON DELETE CASCADE
);

CREATE TABLE error_trail (
    session_id TEXT NOT NULL,
    error_id   INTEGER NOT NULL,
    neuron_id  INTEGER NOT NULL,

    PRIMARY KEY (session_id, error_id, neuron_id),
    FOREIGN KEY (error_id)  REFERENCES neurons(id) ON DELETE CASCADE,
    FOREIGN KEY (neuron_id) REFERENCES neurons(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     5,
		Description: "recall_ledger: token accounting for recalls",
		SQL: `
CREATE TABLE recall_ledger (
    id              INTEGER PRIMARY KEY,
    session_id      TEXT NOT NULL,
    query           TEXT NOT NULL,
    result_count    INTEGER NOT NULL,
    baseline_tokens INTEGER NOT NULL,
    recall_tokens   INTEGER NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_ledger_created ON recall_ledger(created_at DESC);
`,
	},
	{
		Version:     6,
		Description: "neuron embeddings",
		SQL: `
ALTER TABLE neurons ADD COLUMN embedding BLOB;
ALTER TABLE neurons ADD COLUMN embedding_model TEXT NOT NULL DEFAULT '';
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		// BEGIN IMMEDIATE (see dsn) serializes concurrent openers, so the
		// version check happens under the write lock.
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			tx.Rollback()
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			tx.Rollback()
			continue
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
