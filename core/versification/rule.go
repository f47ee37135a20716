package versification

import (
	"fmt"
	"strings"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
)

// RuleKind is the closed set of cross-tradition relationships.
type RuleKind int

// Rule kinds.
const (
	Identity RuleKind = iota + 1
	Shift
	Merge
	Split
	Renumber
	Omit
	Insert
)

var ruleKindNames = map[RuleKind]string{
	Identity: "Identity",
	Shift:    "Shift",
	Merge:    "Merge",
	Split:    "Split",
	Renumber: "Renumber",
	Omit:     "Omit",
	Insert:   "Insert",
}

// RuleKinds returns every kind in declaration order.
func RuleKinds() []RuleKind {
	return []RuleKind{Identity, Shift, Merge, Split, Renumber, Omit, Insert}
}

// ParseRuleKind parses a corpus rule-kind token, case-insensitively.
func ParseRuleKind(token string) (RuleKind, error) {
	token = strings.TrimSpace(token)
	for _, k := range RuleKinds() {
		if strings.EqualFold(token, ruleKindNames[k]) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", token, verrors.ErrUnknownRuleKind)
}

// String returns the corpus token for the kind.
func (k RuleKind) String() string {
	if name, ok := ruleKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RuleKind(%d)", int(k))
}

// MarshalText encodes the kind as its corpus token.
func (k RuleKind) MarshalText() ([]byte, error) {
	if _, ok := ruleKindNames[k]; !ok {
		return nil, fmt.Errorf("%d: %w", int(k), verrors.ErrUnknownRuleKind)
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a corpus token.
func (k *RuleKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRuleKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Inverse returns the kind seen from the other direction of a pair.
func (k RuleKind) Inverse() RuleKind {
	switch k {
	case Merge:
		return Split
	case Split:
		return Merge
	case Omit:
		return Insert
	case Insert:
		return Omit
	case Identity, Shift, Renumber:
		return k
	}
	return k
}

// Arithmetic reports whether verses map by a constant offset.
func (k RuleKind) Arithmetic() bool {
	switch k {
	case Identity, Shift, Renumber:
		return true
	case Merge, Split, Omit, Insert:
		return false
	}
	return false
}

// Carvable reports whether a rule of this kind can be trimmed to a
// sub-range without changing its meaning.
func (k RuleKind) Carvable() bool {
	switch k {
	case Identity, Shift, Renumber, Omit, Insert:
		return true
	case Merge, Split:
		return false
	}
	return false
}

// HasSource reports whether rules of this kind carry a source range.
func (k RuleKind) HasSource() bool { return k != Insert }

// HasTarget reports whether rules of this kind carry a target range.
func (k RuleKind) HasTarget() bool { return k != Omit }

// MappingRule is one cross-tradition relationship. It is immutable once
// created; normalization records supersession separately.
type MappingRule struct {
	// Row is the corpus line the rule came from (0 for synthesized rules).
	Row int `json:"row"`

	Source Tradition `json:"source"`
	Target Tradition `json:"target"`

	// SourceRange is nil for Insert rules.
	SourceRange *VerseRange `json:"source_range,omitempty"`

	// TargetRange is nil for Omit rules.
	TargetRange *VerseRange `json:"target_range,omitempty"`

	Kind RuleKind `json:"kind"`

	// Note is free-text provenance; it never affects resolution.
	Note string `json:"note,omitempty"`

	// Synthesized marks rules generated by the normalizer to fill gaps.
	Synthesized bool `json:"synthesized,omitempty"`

	// DerivedFrom is the row of the rule this fragment was carved from.
	DerivedFrom int `json:"derived_from,omitempty"`
}

// Pair returns the direction of the rule.
func (r MappingRule) Pair() Pair {
	return Pair{From: r.Source, To: r.Target}
}

// Book returns the canonical source book, or the target book for Insert.
func (r MappingRule) Book() BookID {
	if r.SourceRange != nil {
		return r.SourceRange.Book()
	}
	if r.TargetRange != nil {
		return r.TargetRange.Book()
	}
	return ""
}

// Origin is the row that accounts for the rule: the carved-from row for
// fragments, the rule's own row otherwise.
func (r MappingRule) Origin() int {
	if r.DerivedFrom != 0 {
		return r.DerivedFrom
	}
	return r.Row
}

// Offset returns the chapter and verse delta of an arithmetic rule.
func (r MappingRule) Offset() (dc, dv int) {
	if r.SourceRange == nil || r.TargetRange == nil {
		return 0, 0
	}
	return r.TargetRange.Start.Chapter - r.SourceRange.Start.Chapter,
		r.TargetRange.Start.Verse - r.SourceRange.Start.Verse
}

// Relettered reports whether the rule maps a single verse onto a single
// verse with a different sub-verse letter, such as 1:2b to 1:4. Such a rule
// has no part-by-part correspondence and can only be used whole.
func (r MappingRule) Relettered() bool {
	if r.SourceRange == nil || r.TargetRange == nil {
		return false
	}
	return r.SourceRange.IsSingle() && r.TargetRange.IsSingle() &&
		r.SourceRange.Start.Sub != r.TargetRange.Start.Sub
}

// Project maps part of an arithmetic rule's source range onto its target.
// A relettered rule always projects to the whole target.
func (r MappingRule) Project(src VerseRange) VerseRange {
	if r.SourceRange == nil || r.TargetRange == nil {
		return src
	}
	if r.Relettered() {
		return *r.TargetRange
	}
	dc, dv := r.Offset()
	return src.Offset(dc, dv).In(r.Target, r.TargetRange.Book())
}

// Inverse returns the same relationship written from the target side.
func (r MappingRule) Inverse() MappingRule {
	out := r
	out.Source, out.Target = r.Target, r.Source
	out.SourceRange, out.TargetRange = r.TargetRange, r.SourceRange
	out.Kind = r.Kind.Inverse()
	return out
}

// String describes the rule for logs and reports.
func (r MappingRule) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	sb.WriteString(" ")
	sb.WriteString(string(r.Source))
	sb.WriteString(":")
	if r.SourceRange != nil {
		sb.WriteString(r.SourceRange.String())
	} else {
		sb.WriteString("-")
	}
	sb.WriteString(" => ")
	sb.WriteString(string(r.Target))
	sb.WriteString(":")
	if r.TargetRange != nil {
		sb.WriteString(r.TargetRange.String())
	} else {
		sb.WriteString("-")
	}
	return sb.String()
}
