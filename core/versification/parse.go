package versification

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
)

// refTextGrammar is the participle grammar for references typed by people
// or taken from OSIS ids.
// Examples: "Gen 31:55", "Genesis 31:55-32:1", "3John 1:14", "1 John 3:16",
// "Ps.116.1", "Ps 3:1a-1b", "Song of Solomon 2:1"
//
//nolint:govet // participle grammar tags are not standard struct tags
type refTextGrammar struct {
	BookPrefix string      `@Int?`
	BookWords  []string    `@Ident+`
	Dot        string      `@"."?`
	Chapter    int         `@Int`
	Sep        string      `@(":" | ".")`
	Verse      int         `@Int`
	Sub        *string     `@Sub?`
	End        *refTextEnd `( "-" @@ )?`
}

// refTextEnd is either "W", "Wb", "C:W" or "C.W".
//
//nolint:govet // participle grammar tags are not standard struct tags
type refTextEnd struct {
	First  int     `@Int`
	Second *int    `( (":" | ".") @Int )?`
	Sub    *string `@Sub?`
}

// refTextLexer separates book words from single-letter sub-verse markers:
// book words have at least two letters.
var refTextLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z]+`},
	{Name: "Sub", Pattern: `[a-z]`},
	{Name: "Punct", Pattern: `[.:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var refTextParser = participle.MustBuild[refTextGrammar](
	participle.Lexer(refTextLexer),
	participle.Elide("Whitespace"),
)

// ParseReference parses a human-readable or OSIS-style reference in the
// given tradition. Book names are resolved through books.
func ParseReference(t Tradition, s string, books BookResolver) (VerseRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return VerseRange{}, verrors.NewValidation("reference", "empty reference string")
	}

	parsed, err := refTextParser.ParseString("", s)
	if err != nil {
		return VerseRange{}, fmt.Errorf("invalid reference format: %q: %w", s, verrors.ErrInvalidInput)
	}

	name := strings.TrimSpace(parsed.BookPrefix + " " + strings.Join(parsed.BookWords, " "))
	book, ok := books.ResolveBook(t, name)
	if !ok {
		return VerseRange{}, fmt.Errorf("%q in %s: %w", name, t, verrors.ErrUnknownBook)
	}

	start := VerseRef{
		Tradition: t,
		Book:      book,
		Chapter:   parsed.Chapter,
		Verse:     parsed.Verse,
	}
	if parsed.Sub != nil {
		start.Sub = *parsed.Sub
	}

	end := start
	if parsed.End != nil {
		end.Sub = ""
		if parsed.End.Second != nil {
			end.Chapter = parsed.End.First
			end.Verse = *parsed.End.Second
		} else {
			end.Verse = parsed.End.First
		}
		if parsed.End.Sub != nil {
			end.Sub = *parsed.End.Sub
		}
	}

	if start.Verse == 0 && !books.UsesVerseZero(t) {
		return VerseRange{}, fmt.Errorf("%s: %w", s, verrors.ErrVerseZero)
	}
	return NewRange(start, end)
}
