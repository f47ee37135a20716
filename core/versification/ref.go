package versification

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
)

// EndOfChapter is a verse sentinel meaning "through the last verse of the
// chapter". It only appears in synthesized and carved ranges.
const EndOfChapter = 999

// MaxChapter is the largest chapter number a reference can hold.
const MaxChapter = 1<<16 - 1

const maxSub = 0xFF

// Position is an encoded (chapter, verse, sub-verse) ordering key.
type Position uint64

func makePosition(chapter, verse int, sub uint64) Position {
	return Position(uint64(chapter)<<24 | uint64(verse)<<8 | sub)
}

// Chapter returns the chapter component.
func (p Position) Chapter() int { return int(p >> 24) }

// Verse returns the verse component.
func (p Position) Verse() int { return int((p >> 8) & 0xFFFF) }

func subIndex(sub string) uint64 {
	if sub == "" {
		return 0
	}
	return uint64(sub[0]-'a') + 1
}

// VerseRef is a single verse (or sub-verse part) in a tradition.
type VerseRef struct {
	Tradition Tradition `json:"tradition,omitempty"`
	Book      BookID    `json:"book"`
	Chapter   int       `json:"chapter"`
	Verse     int       `json:"verse"`

	// Sub is the sub-verse letter ("a", "b") for split verses.
	Sub string `json:"sub,omitempty"`
}

// Low returns the lowest position covered by the reference.
func (r VerseRef) Low() Position {
	return makePosition(r.Chapter, r.Verse, subIndex(r.Sub))
}

// High returns the highest position covered by the reference. A reference
// without a sub-verse letter covers all of its parts.
func (r VerseRef) High() Position {
	if r.Sub != "" {
		return r.Low()
	}
	return makePosition(r.Chapter, r.Verse, maxSub)
}

// Compare orders references by their low bound.
func (r VerseRef) Compare(o VerseRef) int {
	return cmp.Compare(r.Low(), o.Low())
}

// Validate checks the structural invariants of a reference.
func (r VerseRef) Validate() error {
	if r.Book == "" {
		return verrors.NewValidation("book", "must not be empty")
	}
	if r.Chapter < 1 || r.Chapter > MaxChapter {
		return verrors.NewValidation("chapter", fmt.Sprintf("%d out of range", r.Chapter))
	}
	if r.Verse < 0 || r.Verse > EndOfChapter {
		return verrors.NewValidation("verse", fmt.Sprintf("%d out of range", r.Verse))
	}
	if r.Sub != "" && (len(r.Sub) != 1 || r.Sub[0] < 'a' || r.Sub[0] > 'z') {
		return verrors.NewValidation("sub", fmt.Sprintf("%q is not a letter a-z", r.Sub))
	}
	return nil
}

// Offset shifts the reference by a chapter and verse delta. The
// EndOfChapter sentinel is preserved.
func (r VerseRef) Offset(dc, dv int) VerseRef {
	out := r
	out.Chapter += dc
	if r.Verse != EndOfChapter {
		out.Verse += dv
	}
	return out
}

// In returns a copy of the reference in another tradition and book.
func (r VerseRef) In(t Tradition, book BookID) VerseRef {
	r.Tradition = t
	r.Book = book
	return r
}

// Before returns the nearest reference that ends strictly before r begins.
// Verse 0 sits between the end of the previous chapter and verse 1. The
// second result is false when r is at the start of the book or at the
// EndOfChapter sentinel.
func (r VerseRef) Before() (VerseRef, bool) {
	out := r
	out.Sub = ""
	switch {
	case r.Sub > "a":
		out.Sub = string(r.Sub[0] - 1)
	case r.Verse == EndOfChapter:
		return VerseRef{}, false
	case r.Verse > 0:
		out.Verse = r.Verse - 1
	case r.Chapter > 1:
		out.Chapter = r.Chapter - 1
		out.Verse = EndOfChapter
	default:
		return VerseRef{}, false
	}
	return out, true
}

// After returns the nearest reference that starts strictly after r ends.
func (r VerseRef) After() VerseRef {
	out := r
	out.Sub = ""
	switch {
	case r.Sub != "" && r.Sub < "z":
		out.Sub = string(r.Sub[0] + 1)
	case r.Verse == EndOfChapter:
		out.Chapter = r.Chapter + 1
		out.Verse = 0
	default:
		out.Verse = r.Verse + 1
	}
	return out
}

// String returns the OSIS-style form, e.g. "Gen.31.55" or "Ps.3.1a".
func (r VerseRef) String() string {
	var sb strings.Builder
	sb.WriteString(string(r.Book))
	sb.WriteString(".")
	sb.WriteString(strconv.Itoa(r.Chapter))
	sb.WriteString(".")
	sb.WriteString(verseString(r.Verse))
	sb.WriteString(r.Sub)
	return sb.String()
}

func verseString(v int) string {
	if v == EndOfChapter {
		return "end"
	}
	return strconv.Itoa(v)
}

// VerseRange is an inclusive range of references in one tradition and book.
type VerseRange struct {
	Start VerseRef `json:"start"`
	End   VerseRef `json:"end"`
}

// Single returns the range holding only r.
func Single(r VerseRef) VerseRange {
	return VerseRange{Start: r, End: r}
}

// NewRange builds a range and checks its invariants.
func NewRange(start, end VerseRef) (VerseRange, error) {
	rng := VerseRange{Start: start, End: end}
	return rng, rng.Validate()
}

// Validate checks that both ends are valid, share a tradition and book, and
// are correctly ordered.
func (r VerseRange) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return err
	}
	if err := r.End.Validate(); err != nil {
		return err
	}
	if r.Start.Tradition != r.End.Tradition || r.Start.Book != r.End.Book {
		return verrors.NewValidation("range", fmt.Sprintf("%s and %s are in different books", r.Start, r.End))
	}
	if r.End.High() < r.Start.Low() {
		return fmt.Errorf("%s-%s: %w", r.Start, r.End, verrors.ErrRangeOrder)
	}
	return nil
}

// Book returns the canonical book of the range.
func (r VerseRange) Book() BookID { return r.Start.Book }

// Tradition returns the tradition of the range.
func (r VerseRange) Tradition() Tradition { return r.Start.Tradition }

// Lo returns the low bound of the range.
func (r VerseRange) Lo() Position { return r.Start.Low() }

// Hi returns the high bound of the range.
func (r VerseRange) Hi() Position { return r.End.High() }

// IsSingle reports whether the range holds exactly one reference.
func (r VerseRange) IsSingle() bool { return r.Start == r.End }

// SingleChapter reports whether the range stays within one chapter.
func (r VerseRange) SingleChapter() bool { return r.Start.Chapter == r.End.Chapter }

// Width is a precedence measure: narrower ranges have smaller widths.
func (r VerseRange) Width() uint64 { return uint64(r.Hi() - r.Lo()) }

// Overlaps reports whether the two ranges share any position.
func (r VerseRange) Overlaps(o VerseRange) bool {
	return r.Lo() <= o.Hi() && o.Lo() <= r.Hi()
}

// Contains reports whether o lies entirely within r.
func (r VerseRange) Contains(o VerseRange) bool {
	return r.Lo() <= o.Lo() && o.Hi() <= r.Hi()
}

// ContainsRef reports whether the reference lies entirely within r.
func (r VerseRange) ContainsRef(ref VerseRef) bool {
	return r.Lo() <= ref.Low() && ref.High() <= r.Hi()
}

// Intersect returns the overlapping part of r and o.
func (r VerseRange) Intersect(o VerseRange) (VerseRange, bool) {
	if !r.Overlaps(o) {
		return VerseRange{}, false
	}
	out := r
	if o.Lo() > r.Lo() {
		out.Start = o.Start
	}
	if o.Hi() < r.Hi() {
		out.End = o.End
	}
	return out, true
}

// Shape returns the chapter and verse spans of the range.
func (r VerseRange) Shape() (chapters, verses int) {
	return r.End.Chapter - r.Start.Chapter, r.End.Verse - r.Start.Verse
}

// Offset shifts both ends by a chapter and verse delta.
func (r VerseRange) Offset(dc, dv int) VerseRange {
	return VerseRange{Start: r.Start.Offset(dc, dv), End: r.End.Offset(dc, dv)}
}

// In returns the range moved into another tradition and book.
func (r VerseRange) In(t Tradition, book BookID) VerseRange {
	return VerseRange{Start: r.Start.In(t, book), End: r.End.In(t, book)}
}

// Enumerate lists the references in a single-chapter range. Sub-verse
// letters are enumerated when both ends are parts of the same verse.
func (r VerseRange) Enumerate() ([]VerseRef, bool) {
	if !r.SingleChapter() || r.End.Verse == EndOfChapter {
		return nil, false
	}
	if r.IsSingle() {
		return []VerseRef{r.Start}, true
	}
	var out []VerseRef
	if r.Start.Verse == r.End.Verse && r.Start.Sub != "" && r.End.Sub != "" {
		for c := r.Start.Sub[0]; c <= r.End.Sub[0]; c++ {
			ref := r.Start
			ref.Sub = string(c)
			out = append(out, ref)
		}
		return out, true
	}
	for v := r.Start.Verse; v <= r.End.Verse; v++ {
		ref := r.Start
		ref.Verse = v
		ref.Sub = ""
		if v == r.Start.Verse {
			ref.Sub = r.Start.Sub
		}
		if v == r.End.Verse {
			ref.Sub = r.End.Sub
		}
		out = append(out, ref)
	}
	return out, true
}

// String returns "Gen.31.55", "3John.1.14-15" or "Gen.31.55-32.1".
func (r VerseRange) String() string {
	if r.IsSingle() {
		return r.Start.String()
	}
	if r.SingleChapter() {
		return r.Start.String() + "-" + verseString(r.End.Verse) + r.End.Sub
	}
	return r.Start.String() + "-" + strconv.Itoa(r.End.Chapter) + "." + verseString(r.End.Verse) + r.End.Sub
}
