package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// Column names, in corpus order.
const (
	ColSourceType    = "SourceType"
	ColSourceBook    = "SourceBook"
	ColSourceChapter = "SourceChapter"
	ColSourceVerse   = "SourceVerse"
	ColSourceEnd     = "SourceEnd"
	ColTargetType    = "TargetType"
	ColTargetBook    = "TargetBook"
	ColTargetChapter = "TargetChapter"
	ColTargetVerse   = "TargetVerse"
	ColRuleKind      = "RuleKind"
	ColNote          = "Note"
)

// Columns lists the fixed columns of a row.
var Columns = []string{
	ColSourceType, ColSourceBook, ColSourceChapter, ColSourceVerse, ColSourceEnd,
	ColTargetType, ColTargetBook, ColTargetChapter, ColTargetVerse, ColRuleKind,
}

const (
	fieldSeparator = "|"
	continuation   = `\`
	maxLineSize    = 1 << 20
)

// Row is one logical corpus row.
type Row struct {
	// Line is the physical line the row starts on (1-based).
	Line int

	// Raw is the logical row text after continuation lines are joined.
	Raw string

	// Fields are the trimmed cells. The note, if any, is the last field
	// and keeps its embedded separators.
	Fields []string
}

// Result is the outcome of parsing a corpus.
type Result struct {
	// Rules are the parsed rules in corpus order.
	Rules []v11n.MappingRule

	// Errors are the rejected rows in corpus order.
	Errors []*verrors.RowError

	// Rows counts the data rows seen, parsed or not.
	Rows int
}

// OK reports whether every row parsed.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Parse reads a corpus from r. The returned error is only for read
// failures; row failures are collected in Result.Errors.
func Parse(r io.Reader, books v11n.BookResolver) (*Result, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	return ParseRows(rows, books), nil
}

// ReadRows splits a corpus into logical rows, skipping blank lines,
// comments and the header row.
func ReadRows(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		rows      []Row
		pending   strings.Builder
		continued bool
		start     int
		line      int
	)
	flush := func() {
		if strings.TrimSpace(pending.String()) != "" {
			if row, ok := newRow(start, pending.String()); ok {
				rows = append(rows, row)
			}
		}
		pending.Reset()
	}
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), " \t\r")

		if !continued {
			trimmed := strings.TrimSpace(text)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
				continue
			}
			start = line
		}

		if strings.HasSuffix(text, continuation) {
			pending.WriteString(strings.TrimSuffix(text, continuation))
			continued = true
			continue
		}
		pending.WriteString(text)
		continued = false
		flush()
	}
	if err := scanner.Err(); err != nil {
		return nil, verrors.NewIO("read", "corpus", err)
	}
	if continued {
		flush()
	}
	return rows, nil
}

func newRow(line int, raw string) (Row, bool) {
	raw = strings.TrimSpace(raw)
	fields := strings.SplitN(raw, fieldSeparator, len(Columns)+1)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if strings.EqualFold(fields[0], ColSourceType) {
		return Row{}, false
	}
	return Row{Line: line, Raw: raw, Fields: fields}, true
}

// ParseRows turns logical rows into rules. It never fails as a whole.
func ParseRows(rows []Row, books v11n.BookResolver) *Result {
	res := &Result{Rules: make([]v11n.MappingRule, 0, len(rows))}
	for _, row := range rows {
		res.Rows++
		rule, err := ParseRow(row, books)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Rules = append(res.Rules, rule)
	}
	return res
}

// ParseRow parses one logical row.
func ParseRow(row Row, books v11n.BookResolver) (v11n.MappingRule, *verrors.RowError) {
	p := rowParser{row: row, books: books}
	rule, err := p.parse()
	if err != nil {
		var re *verrors.RowError
		if errors.As(err, &re) {
			return v11n.MappingRule{}, re
		}
		return v11n.MappingRule{}, &verrors.RowError{Row: row.Line, Raw: row.Raw, Err: err}
	}
	return rule, nil
}

type rowParser struct {
	row   Row
	books v11n.BookResolver
}

func (p *rowParser) fail(column string, err error) error {
	return &verrors.RowError{Row: p.row.Line, Column: column, Raw: p.row.Raw, Err: err}
}

func (p *rowParser) field(i int) string {
	return p.row.Fields[i]
}

func (p *rowParser) parse() (v11n.MappingRule, error) {
	if len(p.row.Fields) < len(Columns) {
		return v11n.MappingRule{}, p.fail("", fmt.Errorf("%d fields, want at least %d: %w",
			len(p.row.Fields), len(Columns), verrors.ErrMalformedRow))
	}

	source, err := p.tradition(ColSourceType, 0)
	if err != nil {
		return v11n.MappingRule{}, err
	}
	target, err := p.tradition(ColTargetType, 5)
	if err != nil {
		return v11n.MappingRule{}, err
	}
	if source == target {
		return v11n.MappingRule{}, p.fail(ColTargetType,
			fmt.Errorf("source and target are both %s: %w", source, verrors.ErrMalformedRow))
	}

	kind, err := v11n.ParseRuleKind(p.field(9))
	if err != nil {
		return v11n.MappingRule{}, p.fail(ColRuleKind, err)
	}

	srcRange, err := p.side(source, ColSourceBook, ColSourceChapter, ColSourceVerse, 1, p.field(4))
	if err != nil {
		return v11n.MappingRule{}, err
	}
	tgtRange, err := p.side(target, ColTargetBook, ColTargetChapter, ColTargetVerse, 6, "")
	if err != nil {
		return v11n.MappingRule{}, err
	}
	if srcRange == nil && tgtRange == nil {
		return v11n.MappingRule{}, p.fail(ColSourceBook,
			fmt.Errorf("row has neither a source nor a target reference: %w", verrors.ErrMalformedRow))
	}

	return v11n.MappingRule{
		Row:         p.row.Line,
		Source:      source,
		Target:      target,
		SourceRange: srcRange,
		TargetRange: tgtRange,
		Kind:        kind,
		Note:        p.note(),
	}, nil
}

func (p *rowParser) note() string {
	if len(p.row.Fields) <= len(Columns) {
		return ""
	}
	return strings.TrimSpace(strings.Join(p.row.Fields[len(Columns):], fieldSeparator))
}

func (p *rowParser) tradition(column string, i int) (v11n.Tradition, error) {
	t, ok := v11n.ParseTradition(p.field(i))
	if !ok {
		return "", p.fail(column, fmt.Errorf("%q: %w", p.field(i), verrors.ErrUnknownTradition))
	}
	return t, nil
}

// side parses the book, chapter and verse cells starting at field i. An
// empty book means the side is absent; the other cells must then be empty.
func (p *rowParser) side(t v11n.Tradition, bookCol, chapterCol, verseCol string, i int, endCell string) (*v11n.VerseRange, error) {
	bookCell, chapterCell, verseText := p.field(i), p.field(i+1), p.field(i+2)
	if bookCell == "" {
		if chapterCell != "" || verseText != "" || endCell != "" {
			return nil, p.fail(bookCol, fmt.Errorf("chapter or verse given without a book: %w", verrors.ErrMalformedRow))
		}
		return nil, nil
	}

	book, ok := p.books.ResolveBook(t, bookCell)
	if !ok {
		return nil, p.fail(bookCol, fmt.Errorf("%q in %s: %w", bookCell, t, verrors.ErrUnknownBook))
	}

	chapter, err := strconv.Atoi(chapterCell)
	if err != nil {
		return nil, p.fail(chapterCol, fmt.Errorf("%q: %w", chapterCell, verrors.ErrInvalidNumber))
	}
	if chapter < 1 {
		return nil, p.fail(chapterCol, fmt.Errorf("chapter %d: %w", chapter, verrors.ErrInvalidNumber))
	}

	cell, err := parseVerseCell(verseText)
	if err != nil {
		return nil, p.fail(verseCol, fmt.Errorf("%q: %w", verseText, verrors.ErrInvalidNumber))
	}

	start := v11n.VerseRef{Tradition: t, Book: book, Chapter: chapter, Verse: cell.Verse}
	if cell.Sub != nil {
		start.Sub = strings.ToLower(*cell.Sub)
	}
	if start.Verse == 0 && !p.books.UsesVerseZero(t) {
		return nil, p.fail(verseCol, fmt.Errorf("%s does not number superscriptions: %w", t, verrors.ErrVerseZero))
	}

	end := start
	endColumn := verseCol
	switch {
	case cell.End != nil && endCell != "":
		return nil, p.fail(ColSourceEnd, fmt.Errorf("range given in both %s and %s: %w", verseCol, ColSourceEnd, verrors.ErrMalformedRow))
	case cell.End != nil:
		end = applyEnd(start, cell.End)
	case endCell != "":
		e, err := parseCellEnd(endCell)
		if err != nil {
			return nil, p.fail(ColSourceEnd, fmt.Errorf("%q: %w", endCell, verrors.ErrInvalidNumber))
		}
		end = applyEnd(start, e)
		endColumn = ColSourceEnd
	}

	rng, err := v11n.NewRange(start, end)
	if err != nil {
		return nil, p.fail(endColumn, err)
	}
	return &rng, nil
}

func applyEnd(start v11n.VerseRef, e *cellEnd) v11n.VerseRef {
	end := start
	end.Chapter, end.Verse = e.chapterVerse(start.Chapter)
	end.Sub = e.sub()
	return end
}
