package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	"github.com/FocuswithJustin/versemap/core/sqlite"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// SQLite stores tables in a SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates a database file and applies the schema. A
// path of ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	var (
		db  *sql.DB
		err error
	)
	if path == ":memory:" {
		db, err = sqlite.OpenMemory()
	} else {
		db, err = sqlite.OpenFile(path)
	}
	if err != nil {
		return nil, verrors.NewIO("open", path, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, verrors.NewIO("migrate", path, err)
		}
	}
	return &SQLite{db: db, path: path}, nil
}

// OpenSQLiteReadOnly opens an existing database for reading. The schema is
// not applied and SaveTable fails.
func OpenSQLiteReadOnly(path string) (*SQLite, error) {
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, verrors.NewIO("open", path, err)
	}
	return &SQLite{db: db, path: path}, nil
}

// SaveTable replaces the stored table for t's direction in one transaction.
func (s *SQLite) SaveTable(ctx context.Context, t *mapping.Table) error {
	fp, err := t.Fingerprint()
	if err != nil {
		return err
	}
	rows, err := entryRows(t)
	if err != nil {
		return err
	}
	p := t.Pair()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.NewIO("begin", s.path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mapping_tables WHERE from_tradition = ? AND to_tradition = ?`,
		string(p.From), string(p.To)); err != nil {
		return verrors.NewIO("delete", s.path, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO mapping_tables
			(from_tradition, to_tradition, format_version, fingerprint, entry_count, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.From), string(p.To), mapping.FormatVersion, fp, len(rows), time.Now().UTC()); err != nil {
		return verrors.NewIO("insert", s.path, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO mapping_entries
			(from_tradition, to_tradition, seq, book, kind, corpus_row, synthesized, entry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return verrors.NewIO("prepare", s.path, err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			string(p.From), string(p.To), r.Seq, string(r.Book), r.Kind, r.Row, r.Synthesized, string(r.Entry)); err != nil {
			return verrors.NewIO("insert", s.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return verrors.NewIO("commit", s.path, err)
	}
	return nil
}

// LoadTable reads the stored table for one direction.
func (s *SQLite) LoadTable(ctx context.Context, p mapping.Pair) (*mapping.Table, error) {
	var (
		fp      string
		version int
		count   int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, format_version, entry_count FROM mapping_tables
		WHERE from_tradition = ? AND to_tradition = ?`,
		string(p.From), string(p.To)).Scan(&fp, &version, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, verrors.NewIO("query", s.path, err)
	}
	if version != mapping.FormatVersion {
		return nil, verrors.NewUnsupported("table format version", fmt.Sprintf("%d", version))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM mapping_entries
		WHERE from_tradition = ? AND to_tradition = ?
		ORDER BY seq`,
		string(p.From), string(p.To))
	if err != nil {
		return nil, verrors.NewIO("query", s.path, err)
	}
	defer rows.Close()

	entries := make([][]byte, 0, count)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, verrors.NewIO("scan", s.path, err)
		}
		entries = append(entries, []byte(data))
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.NewIO("query", s.path, err)
	}
	return tableFromRows(p, entries, fp)
}

// Tables lists the stored tables.
func (s *SQLite) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_tradition, to_tradition, entry_count, fingerprint, saved_at
		FROM mapping_tables`)
	if err != nil {
		return nil, verrors.NewIO("query", s.path, err)
	}
	defer rows.Close()

	var infos []TableInfo
	for rows.Next() {
		var (
			info     TableInfo
			from, to string
		)
		if err := rows.Scan(&from, &to, &info.Entries, &info.Fingerprint, &info.Saved); err != nil {
			return nil, verrors.NewIO("scan", s.path, err)
		}
		info.Pair = mapping.Pair{From: v11n.Tradition(from), To: v11n.Tradition(to)}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.NewIO("query", s.path, err)
	}
	sortInfos(infos)
	return infos, nil
}

// DB returns the underlying database.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
