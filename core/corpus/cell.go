package corpus

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// verseCell is the grammar of a SourceVerse or TargetVerse cell.
// Examples: "14", "16a", "14-15", "16a-16b", "31-32:2"
//
//nolint:govet // participle grammar tags are not standard struct tags
type verseCell struct {
	Verse int      `@Int`
	Sub   *string  `@Sub?`
	End   *cellEnd `( "-" @@ )?`
}

// cellEnd is a range end: "W", "Wb" or "C:W". It is also the grammar of the
// SourceEnd column.
//
//nolint:govet // participle grammar tags are not standard struct tags
type cellEnd struct {
	First  int     `@Int`
	Second *int    `( ":" @Int )?`
	Sub    *string `@Sub?`
}

// chapterVerse splits an end into chapter and verse; the chapter defaults
// to the start chapter.
func (e *cellEnd) chapterVerse(startChapter int) (chapter, verse int) {
	if e.Second != nil {
		return e.First, *e.Second
	}
	return startChapter, e.First
}

func (e *cellEnd) sub() string {
	if e.Sub == nil {
		return ""
	}
	return strings.ToLower(*e.Sub)
}

var cellLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Sub", Pattern: `[a-zA-Z]`},
	{Name: "Punct", Pattern: `[:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	verseCellParser = participle.MustBuild[verseCell](
		participle.Lexer(cellLexer),
		participle.Elide("Whitespace"),
	)
	cellEndParser = participle.MustBuild[cellEnd](
		participle.Lexer(cellLexer),
		participle.Elide("Whitespace"),
	)
)

func parseVerseCell(s string) (*verseCell, error) {
	return verseCellParser.ParseString("", s)
}

func parseCellEnd(s string) (*cellEnd, error) {
	return cellEndParser.ParseString("", s)
}
