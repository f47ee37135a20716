package store

import (
	"context"
	"fmt"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/internal/config"
)

// Open creates the backend selected by cfg. Persistent backends are wrapped
// with a read cache bounded by cfg.CacheTables and cfg.CacheBytes.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(cfg.CacheTables, cfg.CacheBytes), nil
	case BackendSQLite:
		s, err = OpenSQLite(ctx, cfg.Path)
	case BackendPostgres:
		s, err = OpenPostgres(ctx, cfg.DSN, cfg.MaxConns)
	case BackendFile:
		s, err = OpenFile(cfg.Path)
	default:
		return nil, verrors.NewUnsupported("store backend", fmt.Sprintf("%q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}
	return WithCache(s, cfg.CacheTables, cfg.CacheBytes), nil
}

// OpenReader is Open for commands that only read tables: SQLite files are
// opened read-only. The other backends are opened as by Open.
func OpenReader(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if cfg.Backend != BackendSQLite || cfg.Path == ":memory:" {
		return Open(ctx, cfg)
	}
	s, err := OpenSQLiteReadOnly(cfg.Path)
	if err != nil {
		return nil, err
	}
	return WithCache(s, cfg.CacheTables, cfg.CacheBytes), nil
}
