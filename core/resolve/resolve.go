// Package resolve maps references from one tradition to another using
// compiled mapping tables.
//
// Resolution never fails for a well-formed reference: an unmapped reference
// is a Result, not an error. Errors are reserved for references that are
// malformed or for tradition pairs with no compiled table.
package resolve

import (
	"fmt"
	"strings"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// Outcome classifies a resolution.
type Outcome int

// Resolution outcomes.
const (
	// Unique means the reference maps to one contiguous target range.
	Unique Outcome = iota + 1

	// Ambiguous means the reference maps to several target ranges, either
	// because a verse was split or because part of a range is unmapped.
	Ambiguous

	// Unmapped means nothing in the target corresponds to the reference.
	Unmapped
)

var outcomeNames = map[Outcome]string{
	Unique:    "Unique",
	Ambiguous: "Ambiguous",
	Unmapped:  "Unmapped",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	if _, ok := outcomeNames[o]; !ok {
		return nil, fmt.Errorf("outcome %d: %w", int(o), verrors.ErrInvalidInput)
	}
	return []byte(o.String()), nil
}

// Result is the answer to one resolution.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// Range is the target for Unique results.
	Range v11n.VerseRange `json:"range"`

	// Candidates are the target ranges of Ambiguous results, in source
	// order.
	Candidates []v11n.VerseRange `json:"candidates,omitempty"`

	// Gaps are the parts of the source reference with no target.
	Gaps []v11n.VerseRange `json:"gaps,omitempty"`
}

// Targets returns every target range of the result.
func (r Result) Targets() []v11n.VerseRange {
	switch r.Outcome {
	case Unique:
		return []v11n.VerseRange{r.Range}
	case Ambiguous:
		return r.Candidates
	}
	return nil
}

func (r Result) String() string {
	switch r.Outcome {
	case Unique:
		return fmt.Sprintf("Unique(%s %s)", r.Range.Tradition(), r.Range)
	case Ambiguous:
		parts := make([]string, len(r.Candidates))
		for i, c := range r.Candidates {
			parts[i] = string(c.Tradition()) + " " + c.String()
		}
		return "Ambiguous(" + strings.Join(parts, ", ") + ")"
	}
	return r.Outcome.String()
}

func unique(r v11n.VerseRange) Result {
	return Result{Outcome: Unique, Range: r}
}

func unmapped(gaps []v11n.VerseRange) Result {
	return Result{Outcome: Unmapped, Gaps: gaps}
}

// piece is the target of one entry clipped to the query.
type piece struct {
	target v11n.VerseRange
	kind   v11n.RuleKind
}

// Resolve maps ref through t. ref must be in the table's source tradition.
func Resolve(t *mapping.Table, ref v11n.VerseRange) Result {
	pieces, gaps := walk(t, ref)
	if len(pieces) == 0 {
		if len(gaps) == 0 {
			gaps = []v11n.VerseRange{ref}
		}
		return unmapped(gaps)
	}
	if singleVerse(ref) {
		return resolveVerse(pieces, gaps)
	}

	ranges := make([]v11n.VerseRange, len(pieces))
	for i, p := range pieces {
		ranges[i] = p.target
	}
	ranges = coalesce(ranges)
	if len(ranges) == 1 && len(gaps) == 0 {
		return unique(ranges[0])
	}
	return Result{Outcome: Ambiguous, Candidates: ranges, Gaps: gaps}
}

// resolveVerse handles a query of one verse or part of one verse. Several
// entries under one verse are reported separately rather than joined.
func resolveVerse(pieces []piece, gaps []v11n.VerseRange) Result {
	if len(pieces) == 1 && len(gaps) == 0 && pieces[0].kind != v11n.Split {
		return unique(pieces[0].target)
	}
	var candidates []v11n.VerseRange
	for _, p := range pieces {
		if p.kind == v11n.Split {
			if refs, ok := p.target.Enumerate(); ok {
				for _, r := range refs {
					candidates = appendUnique(candidates, v11n.Single(r))
				}
				continue
			}
		}
		candidates = appendUnique(candidates, p.target)
	}
	return Result{Outcome: Ambiguous, Candidates: candidates, Gaps: gaps}
}

// walk clips every entry overlapping ref and collects the mapped pieces
// and the unmapped gaps between them.
func walk(t *mapping.Table, ref v11n.VerseRange) ([]piece, []v11n.VerseRange) {
	var (
		pieces []piece
		gaps   []v11n.VerseRange
		cursor = ref.Start
		open   = true
	)
	addGap := func(start, end v11n.VerseRef) {
		if g, ok := gap(start, end); ok {
			gaps = append(gaps, g)
		}
	}

	for _, e := range t.Lookup(ref.Book(), ref.Lo(), ref.Hi()) {
		part, _ := e.Source.Intersect(ref)
		if part.Lo() > cursor.Low() {
			if end, ok := part.Start.Before(); ok {
				addGap(cursor, end)
			}
		}

		switch e.Kind {
		case v11n.Identity, v11n.Shift, v11n.Renumber:
			pieces = append(pieces, piece{target: e.Project(part), kind: e.Kind})
		case v11n.Merge, v11n.Split:
			pieces = append(pieces, piece{target: *e.Target, kind: e.Kind})
		case v11n.Omit:
			gaps = append(gaps, part)
		case v11n.Insert:
		}

		if part.Hi() >= ref.Hi() {
			open = false
			break
		}
		cursor = part.End.After()
	}
	if open {
		addGap(cursor, ref.End)
	}
	return pieces, gaps
}

// gap returns [start, end] unless it is empty or only covers positions that
// do not name text: the letters left over after a verse's last lettered
// part, or the verse 0 slot between chapters.
func gap(start, end v11n.VerseRef) (v11n.VerseRange, bool) {
	if end.High() < start.Low() {
		return v11n.VerseRange{}, false
	}
	sameVerse := start.Chapter == end.Chapter && start.Verse == end.Verse
	if sameVerse && start.Sub != "" && end.Sub == "" {
		return v11n.VerseRange{}, false
	}
	if sameVerse && start.Verse == 0 && start.Sub == "" {
		return v11n.VerseRange{}, false
	}
	return v11n.VerseRange{Start: start, End: end}, true
}

func singleVerse(r v11n.VerseRange) bool {
	return r.Start.Chapter == r.End.Chapter && r.Start.Verse == r.End.Verse
}

// coalesce joins ordered, contiguous ranges.
func coalesce(ranges []v11n.VerseRange) []v11n.VerseRange {
	var out []v11n.VerseRange
	for _, r := range ranges {
		if n := len(out); n > 0 && joins(out[n-1], r) {
			if r.Hi() > out[n-1].Hi() {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// joins reports whether next continues prev without a hole. Across a
// chapter boundary next must start the following chapter, or prev must run
// to the end of its chapter.
func joins(prev, next v11n.VerseRange) bool {
	if prev.Tradition() != next.Tradition() || prev.Book() != next.Book() || next.Lo() < prev.Lo() {
		return false
	}
	if next.Lo() <= prev.End.After().Low() {
		return true
	}
	first := next.Start.Sub == "" || next.Start.Sub == "a"
	last, start := prev.End, next.Start
	switch {
	case start.Chapter == last.Chapter:
		return start.Verse == last.Verse+1 && first
	case start.Chapter == last.Chapter+1:
		return last.Verse == v11n.EndOfChapter || (start.Verse <= 1 && first)
	}
	return false
}

func appendUnique(list []v11n.VerseRange, r v11n.VerseRange) []v11n.VerseRange {
	for _, x := range list {
		if x == r {
			return list
		}
	}
	return append(list, r)
}
