package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// Postgres stores tables in PostgreSQL through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	host string
}

// OpenPostgres connects to dsn, verifies the connection and applies the
// schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, verrors.NewValidation("store.dsn", err.Error())
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	host := poolConfig.ConnConfig.Host

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, verrors.NewIO("connect", host, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, verrors.NewIO("connect", host, err)
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, verrors.NewIO("migrate", host, err)
		}
	}
	return &Postgres{pool: pool, host: host}, nil
}

// SaveTable replaces the stored table for t's direction in one transaction,
// copying the entries in bulk.
func (s *Postgres) SaveTable(ctx context.Context, t *mapping.Table) error {
	fp, err := t.Fingerprint()
	if err != nil {
		return err
	}
	rows, err := entryRows(t)
	if err != nil {
		return err
	}
	from, to := string(t.Pair().From), string(t.Pair().To)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return verrors.NewIO("begin", s.host, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM mapping_tables WHERE from_tradition = $1 AND to_tradition = $2`,
		from, to); err != nil {
		return verrors.NewIO("delete", s.host, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO mapping_tables
			(from_tradition, to_tradition, format_version, fingerprint, entry_count, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		from, to, mapping.FormatVersion, fp, len(rows), time.Now().UTC()); err != nil {
		return verrors.NewIO("insert", s.host, err)
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{from, to, r.Seq, string(r.Book), r.Kind, r.Row, r.Synthesized, string(r.Entry)}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"mapping_entries"},
		[]string{"from_tradition", "to_tradition", "seq", "book", "kind", "corpus_row", "synthesized", "entry"},
		pgx.CopyFromRows(values)); err != nil {
		return verrors.NewIO("copy", s.host, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return verrors.NewIO("commit", s.host, err)
	}
	return nil
}

// LoadTable reads the stored table for one direction.
func (s *Postgres) LoadTable(ctx context.Context, p mapping.Pair) (*mapping.Table, error) {
	var (
		fp      string
		version int
		count   int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, format_version, entry_count FROM mapping_tables
		WHERE from_tradition = $1 AND to_tradition = $2`,
		string(p.From), string(p.To)).Scan(&fp, &version, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, verrors.NewIO("query", s.host, err)
	}
	if version != mapping.FormatVersion {
		return nil, verrors.NewUnsupported("table format version", fmt.Sprintf("%d", version))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT entry FROM mapping_entries
		WHERE from_tradition = $1 AND to_tradition = $2
		ORDER BY seq`,
		string(p.From), string(p.To))
	if err != nil {
		return nil, verrors.NewIO("query", s.host, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]byte, error) {
		var data string
		err := row.Scan(&data)
		return []byte(data), err
	})
	if err != nil {
		return nil, verrors.NewIO("scan", s.host, err)
	}
	return tableFromRows(p, entries, fp)
}

// Tables lists the stored tables.
func (s *Postgres) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_tradition, to_tradition, entry_count, fingerprint, saved_at
		FROM mapping_tables`)
	if err != nil {
		return nil, verrors.NewIO("query", s.host, err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TableInfo, error) {
		var (
			info     TableInfo
			from, to string
		)
		err := row.Scan(&from, &to, &info.Entries, &info.Fingerprint, &info.Saved)
		info.Pair = mapping.Pair{From: v11n.Tradition(from), To: v11n.Tradition(to)}
		return info, err
	})
	if err != nil {
		return nil, verrors.NewIO("scan", s.host, err)
	}
	sortInfos(infos)
	return infos, nil
}

// Close releases all database connections.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
