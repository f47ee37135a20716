package store

// schema creates the tables shared by the SQL backends. It is valid for
// both SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS mapping_tables (
		from_tradition TEXT NOT NULL,
		to_tradition   TEXT NOT NULL,
		format_version INTEGER NOT NULL,
		fingerprint    TEXT NOT NULL,
		entry_count    INTEGER NOT NULL,
		saved_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (from_tradition, to_tradition)
	)`,
	`CREATE TABLE IF NOT EXISTS mapping_entries (
		from_tradition TEXT NOT NULL,
		to_tradition   TEXT NOT NULL,
		seq            INTEGER NOT NULL,
		book           TEXT NOT NULL,
		kind           TEXT NOT NULL,
		corpus_row     INTEGER NOT NULL,
		synthesized    BOOLEAN NOT NULL,
		entry          TEXT NOT NULL,
		PRIMARY KEY (from_tradition, to_tradition, seq),
		FOREIGN KEY (from_tradition, to_tradition)
			REFERENCES mapping_tables (from_tradition, to_tradition) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mapping_entries_book
		ON mapping_entries (from_tradition, to_tradition, book)`,
}
