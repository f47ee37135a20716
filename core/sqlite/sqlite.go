// Package sqlite provides a unified SQLite interface supporting both
// pure Go (modernc.org/sqlite) and CGO (mattn/go-sqlite3) implementations.
//
// Build modes:
//   - Default (CGO_ENABLED=0): Uses pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): Uses mattn/go-sqlite3
//
// The drivers spell connection pragmas differently; OpenFile hides that.
// Use the Open functions instead of sql.Open() to ensure the correct driver
// is used.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"
)

// BusyTimeout is how long a connection waits for a lock held by another
// writer.
const BusyTimeout = 5 * time.Second

// DriverName returns the SQL driver name to use.
func DriverName() string {
	return driverName
}

// DriverType returns a string identifying the underlying implementation.
// Returns "cgo" for mattn/go-sqlite3, "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database from a raw data source name.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenFile opens a database file for reading and writing, creating it if
// needed, with WAL journaling, foreign keys and a busy timeout.
func OpenFile(path string) (*sql.DB, error) {
	db, err := Open(fileURI(path, pragmas(BusyTimeout)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	q := url.Values{}
	q.Set("mode", "ro")
	return Open(fileURI(path, q))
}

// OpenMemory opens a private in-memory database. The pool is limited to
// one connection so every query sees the same database.
func OpenMemory() (*sql.DB, error) {
	db, err := Open(fileURI(":memory:", pragmas(0)))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func fileURI(path string, q url.Values) string {
	if len(q) == 0 {
		return "file:" + path
	}
	return "file:" + path + "?" + q.Encode()
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
