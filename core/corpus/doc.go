// Package corpus parses the versification rule corpus.
//
// The corpus is pipe-delimited text, one rule per logical row:
//
//	SourceType|SourceBook|SourceChapter|SourceVerse|SourceEnd|TargetType|TargetBook|TargetChapter|TargetVerse|RuleKind|Note
//
// Verse cells take the forms "14", "16a", "14-15", "16a-16b" and "31-32:2".
// SourceEnd optionally gives the end of the source range as "W" or "C:W".
// Omit rows leave the target book, chapter and verse empty; Insert rows
// leave the source ones empty. Everything after RuleKind is the note.
//
// Blank lines, lines starting with "#" or "//" and a header row starting
// with "SourceType" are skipped. A line ending in a backslash continues on
// the next line.
//
// Parsing never stops at a bad row: each failing row becomes a RowError
// carrying its line number and column, and the remaining rows are parsed.
package corpus
