// Package store persists compiled mapping tables. Every backend stores the
// deterministic table encoding together with its BLAKE3 fingerprint and
// refuses to return a table whose bytes no longer match it.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// Store saves and loads compiled tables by direction.
type Store interface {
	SaveTable(ctx context.Context, t *mapping.Table) error
	LoadTable(ctx context.Context, pair mapping.Pair) (*mapping.Table, error)

	// Tables lists what has been saved, sorted by direction.
	Tables(ctx context.Context) ([]TableInfo, error)

	Close() error
}

// TableInfo describes one saved table.
type TableInfo struct {
	Pair        mapping.Pair
	Entries     int
	Fingerprint string
	Saved       time.Time
}

// Pairs returns the directions of infos.
func Pairs(infos []TableInfo) []mapping.Pair {
	out := make([]mapping.Pair, len(infos))
	for i, info := range infos {
		out[i] = info.Pair
	}
	return out
}

func sortInfos(infos []TableInfo) {
	slices.SortFunc(infos, func(a, b TableInfo) int {
		if c := cmp.Compare(a.Pair.From, b.Pair.From); c != 0 {
			return c
		}
		return cmp.Compare(a.Pair.To, b.Pair.To)
	})
}

func notFound(p mapping.Pair) error {
	return verrors.NewNotFound("mapping table", p.String())
}

// checkFingerprint decodes table bytes after comparing their digest with
// the one recorded when they were saved.
func checkFingerprint(p mapping.Pair, data []byte, want string) (*mapping.Table, error) {
	if got := mapping.Fingerprint(data); got != want {
		return nil, &verrors.IntegrityError{
			Pair:      p.String(),
			Conflicts: []string{fmt.Sprintf("fingerprint %s does not match recorded %s", got, want)},
		}
	}
	t, err := mapping.Decode(data)
	if err != nil {
		return nil, verrors.Wrap(err, "stored table "+p.String())
	}
	if t.Pair() != p {
		return nil, verrors.NewValidation("pair", fmt.Sprintf("stored table is %s, not %s", t.Pair(), p))
	}
	return t, nil
}

// entryRow is one entry as the SQL backends store it.
type entryRow struct {
	Seq         int
	Book        v11n.BookID
	Kind        string
	Row         int
	Synthesized bool
	Entry       []byte
}

// entryRows flattens a table into rows in table order.
func entryRows(t *mapping.Table) ([]entryRow, error) {
	var rows []entryRow
	for e := range t.Entries() {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entry %s: %w", e, err)
		}
		book := v11n.BookID("")
		if e.Source != nil {
			book = e.Source.Book()
		} else if e.Target != nil {
			book = e.Target.Book()
		}
		rows = append(rows, entryRow{
			Seq:         len(rows),
			Book:        book,
			Kind:        e.Kind.String(),
			Row:         e.Row,
			Synthesized: e.Synthesized,
			Entry:       data,
		})
	}
	return rows, nil
}

// tableFromRows rebuilds a table from stored entries and checks it against
// the recorded fingerprint.
func tableFromRows(p mapping.Pair, entries [][]byte, want string) (*mapping.Table, error) {
	list := make([]mapping.Entry, 0, len(entries))
	for i, data := range entries {
		var e mapping.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, verrors.NewParse("table entry", p.String(), fmt.Sprintf("entry %d: %v", i, err))
		}
		list = append(list, e)
	}
	t, err := mapping.FromEntries(p, slices.Values(list))
	if err != nil {
		return nil, verrors.Wrap(err, "stored table "+p.String())
	}
	data, err := t.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return checkFingerprint(p, data, want)
}

func parsePair(from, to string) (mapping.Pair, bool) {
	f, ok1 := v11n.ParseTradition(from)
	t, ok2 := v11n.ParseTradition(to)
	return mapping.Pair{From: f, To: t}, ok1 && ok2
}
