//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3.
// This is used when the cgo_sqlite build tag is set.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package sqlite

import (
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
)

// pragmas returns the connection settings in mattn/go-sqlite3 syntax.
func pragmas(busy time.Duration) url.Values {
	q := url.Values{}
	q.Set("_foreign_keys", "1")
	if busy > 0 {
		q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
		q.Set("_journal_mode", "WAL")
	}
	return q
}
