package versification

import (
	"strings"
)

// Tradition identifies a versification scheme.
type Tradition string

// Supported traditions.
const (
	Masoretic Tradition = "Masoretic" // Hebrew Masoretic Text
	Greek     Tradition = "Greek"     // Septuagint and Greek New Testament
	English   Tradition = "English"   // KJV-derived numbering
	Vulgate   Tradition = "Vulgate"   // Latin Vulgate numbering
	Arabic    Tradition = "Arabic"    // Smith-Van Dyke numbering
)

// traditionAliases maps lowercase names and abbreviations to traditions.
var traditionAliases = map[string]Tradition{
	"masoretic":  Masoretic,
	"hebrew":     Masoretic,
	"mt":         Masoretic,
	"greek":      Greek,
	"septuagint": Greek,
	"lxx":        Greek,
	"english":    English,
	"kjv":        English,
	"vulgate":    Vulgate,
	"latin":      Vulgate,
	"arabic":     Arabic,
	"svd":        Arabic,
}

// Traditions returns every supported tradition in a fixed order.
func Traditions() []Tradition {
	return []Tradition{Masoretic, Greek, English, Vulgate, Arabic}
}

// ParseTradition resolves a tradition name or alias, case-insensitively.
func ParseTradition(s string) (Tradition, bool) {
	t, ok := traditionAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// IsValid returns true if the tradition is one of the supported set.
func (t Tradition) IsValid() bool {
	switch t {
	case Masoretic, Greek, English, Vulgate, Arabic:
		return true
	}
	return false
}

// BookID is a canonical OSIS-style book identifier (e.g. "Gen", "3John").
type BookID string

// BookResolver resolves per-tradition book names to canonical books.
// It is supplied by the book-metadata subsystem (see package canon).
type BookResolver interface {
	// ResolveBook maps a tradition-specific book name or abbreviation to
	// its canonical id.
	ResolveBook(t Tradition, name string) (BookID, bool)

	// UsesVerseZero reports whether the tradition numbers superscriptions
	// as verse 0.
	UsesVerseZero(t Tradition) bool
}

// Pair is an ordered pair of traditions: one direction of a mapping.
type Pair struct {
	From Tradition `json:"from"`
	To   Tradition `json:"to"`
}

// Reverse returns the opposite direction.
func (p Pair) Reverse() Pair {
	return Pair{From: p.To, To: p.From}
}

// String returns "From->To".
func (p Pair) String() string {
	return string(p.From) + "->" + string(p.To)
}

// Unordered returns a key shared by both directions of the pair.
func (p Pair) Unordered() Pair {
	if p.From > p.To {
		return p.Reverse()
	}
	return p
}
