// Package mapping compiles normalized rules into immutable lookup tables.
//
// A Table holds one direction of a tradition pair. Entries are indexed per
// source book and sorted by source position, so lookups are a binary
// search. Insert entries have no source and are kept in a separate per-book
// list keyed by target book.
//
// Tables are never edited after Build; a corpus change rebuilds them.
package mapping

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sort"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// Pair is one direction of a tradition pair.
type Pair = v11n.Pair

// Entry is one compiled rule.
type Entry struct {
	// Source is nil for Insert entries.
	Source *v11n.VerseRange `json:"source,omitempty"`

	// Target is nil for Omit entries.
	Target *v11n.VerseRange `json:"target,omitempty"`

	Kind v11n.RuleKind `json:"kind"`

	// Row is the corpus row the entry came from, 0 for generated entries.
	Row int `json:"row,omitempty"`

	Synthesized bool `json:"synthesized,omitempty"`
}

// EntryFromRule compiles a normalized rule.
func EntryFromRule(r v11n.MappingRule) Entry {
	return Entry{
		Source:      r.SourceRange,
		Target:      r.TargetRange,
		Kind:        r.Kind,
		Row:         r.Origin(),
		Synthesized: r.Synthesized,
	}
}

// Rule returns the entry as a rule of the given pair.
func (e Entry) Rule(p Pair) v11n.MappingRule {
	return v11n.MappingRule{
		Row:         e.Row,
		Source:      p.From,
		Target:      p.To,
		SourceRange: e.Source,
		TargetRange: e.Target,
		Kind:        e.Kind,
		Synthesized: e.Synthesized,
	}
}

// Inverse returns the entry seen from the other direction.
func (e Entry) Inverse() Entry {
	out := e
	out.Source, out.Target = e.Target, e.Source
	out.Kind = e.Kind.Inverse()
	return out
}

// Project maps part of an arithmetic entry's source onto its target.
func (e Entry) Project(src v11n.VerseRange) v11n.VerseRange {
	r := v11n.MappingRule{SourceRange: e.Source, TargetRange: e.Target, Kind: e.Kind}
	if e.Target != nil {
		r.Target = e.Target.Tradition()
	}
	return r.Project(src)
}

func (e Entry) String() string {
	src, tgt := "-", "-"
	if e.Source != nil {
		src = e.Source.String()
	}
	if e.Target != nil {
		tgt = e.Target.String()
	}
	if e.Row != 0 {
		return fmt.Sprintf("%s %s => %s (row %d)", e.Kind, src, tgt, e.Row)
	}
	return fmt.Sprintf("%s %s => %s", e.Kind, src, tgt)
}

// Table is a compiled, immutable mapping for one direction of a pair.
// It is safe for concurrent readers.
type Table struct {
	pair    Pair
	books   map[v11n.BookID][]Entry
	inserts map[v11n.BookID][]Entry
	order   []v11n.BookID
	size    int
}

// Build compiles normalized rules. All rules must belong to pair. It fails
// with an *IntegrityError listing every conflict when entries overlap.
func Build(pair Pair, rules []v11n.MappingRule) (*Table, error) {
	entries := make([]Entry, 0, len(rules))
	for _, r := range rules {
		if r.Pair() != pair {
			return nil, fmt.Errorf("rule %s belongs to %s, not %s: %w", r, r.Pair(), pair, verrors.ErrInvalidInput)
		}
		entries = append(entries, EntryFromRule(r))
	}
	return FromEntries(pair, slices.Values(entries))
}

// FromEntries builds a table from previously exported entries and
// validates it.
func FromEntries(pair Pair, entries iter.Seq[Entry]) (*Table, error) {
	t := &Table{
		pair:    pair,
		books:   make(map[v11n.BookID][]Entry),
		inserts: make(map[v11n.BookID][]Entry),
	}
	var conflicts []string
	for e := range entries {
		if err := t.checkEntry(e); err != nil {
			conflicts = append(conflicts, fmt.Sprintf("%s: %v", e, err))
			continue
		}
		if e.Source == nil {
			book := e.Target.Book()
			t.inserts[book] = append(t.inserts[book], e)
			continue
		}
		book := e.Source.Book()
		t.books[book] = append(t.books[book], e)
	}

	for book, list := range t.books {
		sortEntries(list, func(e Entry) *v11n.VerseRange { return e.Source })
		t.books[book] = list
		t.size += len(list)
	}
	for book, list := range t.inserts {
		sortEntries(list, func(e Entry) *v11n.VerseRange { return e.Target })
		t.inserts[book] = list
		t.size += len(list)
	}
	t.order = sortedBooks(t.books, t.inserts)

	if err := t.validate(conflicts); err != nil {
		return nil, err
	}
	return t, nil
}

// Reverse derives the opposite direction mechanically: Merge and Split swap,
// Omit and Insert swap, the arithmetic kinds keep their kind with the
// ranges swapped.
func Reverse(t *Table) (*Table, error) {
	inv := func(yield func(Entry) bool) {
		for e := range t.Entries() {
			if !yield(e.Inverse()) {
				return
			}
		}
	}
	return FromEntries(t.pair.Reverse(), inv)
}

// BuildPair builds both directions of a pair from its normalized rules.
func BuildPair(pair Pair, rules []v11n.MappingRule) (forward, reverse *Table, err error) {
	forward, err = Build(pair, rules)
	if err != nil {
		return nil, nil, err
	}
	reverse, err = Reverse(forward)
	if err != nil {
		return nil, nil, err
	}
	return forward, reverse, nil
}

// Pair returns the direction the table maps.
func (t *Table) Pair() Pair { return t.pair }

// Len returns the number of entries.
func (t *Table) Len() int { return t.size }

// Books returns the books with entries, sorted by id.
func (t *Table) Books() []v11n.BookID { return slices.Clone(t.order) }

// Entries yields every entry: per book in id order, source entries by
// position followed by Insert entries by target position.
func (t *Table) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, book := range t.order {
			for _, e := range t.books[book] {
				if !yield(e) {
					return
				}
			}
			for _, e := range t.inserts[book] {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// BookEntries returns the source-indexed entries of a book. The slice must
// not be modified.
func (t *Table) BookEntries(book v11n.BookID) []Entry { return t.books[book] }

// Inserts returns the Insert entries whose target is in book.
func (t *Table) Inserts(book v11n.BookID) []Entry { return t.inserts[book] }

// Lookup returns the entries of book whose source overlaps [lo, hi], in
// source order.
func (t *Table) Lookup(book v11n.BookID, lo, hi v11n.Position) []Entry {
	list := t.books[book]
	i := sort.Search(len(list), func(i int) bool { return list[i].Source.Hi() >= lo })
	j := i
	for j < len(list) && list[j].Source.Lo() <= hi {
		j++
	}
	return list[i:j]
}

// Validate re-checks the table invariants: entries are well formed, belong
// to the table's pair, are sorted and do not overlap.
func (t *Table) Validate() error {
	var conflicts []string
	for e := range t.Entries() {
		if err := t.checkEntry(e); err != nil {
			conflicts = append(conflicts, fmt.Sprintf("%s: %v", e, err))
		}
	}
	return t.validate(conflicts)
}

func (t *Table) validate(conflicts []string) error {
	for _, book := range t.order {
		conflicts = append(conflicts, overlaps(t.books[book], func(e Entry) *v11n.VerseRange { return e.Source })...)
		conflicts = append(conflicts, overlaps(t.inserts[book], func(e Entry) *v11n.VerseRange { return e.Target })...)
	}
	if len(conflicts) > 0 {
		return &verrors.IntegrityError{Pair: t.pair.String(), Conflicts: conflicts}
	}
	return nil
}

func (t *Table) checkEntry(e Entry) error {
	if e.Kind.HasSource() != (e.Source != nil) || e.Kind.HasTarget() != (e.Target != nil) {
		return fmt.Errorf("%s entry has the wrong ranges: %w", e.Kind, verrors.ErrCardinality)
	}
	if e.Source != nil {
		if err := e.Source.Validate(); err != nil {
			return err
		}
		if e.Source.Tradition() != t.pair.From {
			return fmt.Errorf("source is in %s: %w", e.Source.Tradition(), verrors.ErrInvalidInput)
		}
	}
	if e.Target != nil {
		if err := e.Target.Validate(); err != nil {
			return err
		}
		if e.Target.Tradition() != t.pair.To {
			return fmt.Errorf("target is in %s: %w", e.Target.Tradition(), verrors.ErrInvalidInput)
		}
	}
	return nil
}

// overlaps lists every overlapping pair in a list sorted by low bound.
func overlaps(list []Entry, side func(Entry) *v11n.VerseRange) []string {
	var out []string
	for i := range list {
		a := side(list[i])
		for j := i + 1; j < len(list); j++ {
			b := side(list[j])
			if b.Lo() > a.Hi() {
				break
			}
			out = append(out, fmt.Sprintf("%s overlaps %s", list[i], list[j]))
		}
	}
	return out
}

func sortEntries(list []Entry, side func(Entry) *v11n.VerseRange) {
	slices.SortStableFunc(list, func(a, b Entry) int {
		ra, rb := side(a), side(b)
		if c := cmp.Compare(ra.Lo(), rb.Lo()); c != 0 {
			return c
		}
		if c := cmp.Compare(ra.Hi(), rb.Hi()); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})
}

func sortedBooks(maps ...map[v11n.BookID][]Entry) []v11n.BookID {
	var out []v11n.BookID
	for _, m := range maps {
		for book := range m {
			if !slices.Contains(out, book) {
				out = append(out, book)
			}
		}
	}
	slices.Sort(out)
	return out
}
