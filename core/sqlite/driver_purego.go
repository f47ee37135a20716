//go:build !cgo_sqlite

package sqlite

import (
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)

// pragmas returns the connection settings in modernc.org/sqlite syntax.
func pragmas(busy time.Duration) url.Values {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	if busy > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return q
}
