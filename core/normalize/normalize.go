// Package normalize turns the parsed rules of one tradition pair into a
// conflict-free rule set.
//
// Normalization runs in a fixed order and never reorders rules of the same
// precedence, so the outcome depends on corpus order:
//
//  1. Rules written in the opposite direction are inverted; rules whose kind
//     does not fit their ranges are rejected.
//  2. Source ranges are de-overlapped. Narrower ranges win, then later rows.
//     Identity, Shift, Renumber and Omit rules lose only the overlapped part
//     and keep the rest as derived fragments. Merge and Split rules cannot
//     be cut, nor can relettered rules (1:2b to 1:4) or rules whose
//     fragments would no longer fit their kind: a partial overlap rejects
//     them.
//  3. Target ranges are de-overlapped with the same policy.
//  4. Books and chapters no rule covers get Identity rules, or Omit rules
//     when the target tradition lacks the book or chapter. Generated rules
//     have the lowest precedence.
//
// Rules are never modified. Losing rules are recorded in the report as
// superseded, trimmed or rejected.
package normalize

import (
	"cmp"
	"fmt"
	"slices"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// Canon is the book metadata used to synthesize missing rules.
type Canon interface {
	Books(t v11n.Tradition) []v11n.BookID
	Includes(t v11n.Tradition, book v11n.BookID) bool
	ChapterCount(t v11n.Tradition, book v11n.BookID) (int, bool)
	UsesVerseZero(t v11n.Tradition) bool
}

// State is what normalization did with an input rule.
type State int

// Rule states.
const (
	Accepted State = iota + 1
	Trimmed
	Superseded
	Rejected
)

func (s State) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Trimmed:
		return "trimmed"
	case Superseded:
		return "superseded"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status records the fate of one input rule.
type Status struct {
	Rule  v11n.MappingRule
	State State

	// SupersededBy is the row of the first rule that took part of this
	// rule's range (0 when generated or untouched).
	SupersededBy int

	// Err is set for rejected rules.
	Err *verrors.ConsistencyError
}

// Report is the output of Normalize.
type Report struct {
	Pair v11n.Pair

	// Rules is the conflict-free set, sorted by book, source position and
	// row. It includes derived fragments and generated rules.
	Rules []v11n.MappingRule

	// Statuses has one entry per input rule, in input order.
	Statuses []Status

	// Errors lists the rejected rules.
	Errors []*verrors.ConsistencyError
}

// Count returns the number of input rules in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, st := range r.Statuses {
		if st.State == s {
			n++
		}
	}
	return n
}

// Synthesized returns the number of generated rules in the output.
func (r *Report) Synthesized() int {
	n := 0
	for _, rule := range r.Rules {
		if rule.Synthesized {
			n++
		}
	}
	return n
}

// item is a rule being normalized.
type item struct {
	rule   v11n.MappingRule
	origin int // index into the input, -1 for generated rules
	seq    int // corpus position; later rows have larger seq
}

type normalizer struct {
	pair  v11n.Pair
	canon Canon
	input []v11n.MappingRule

	rejected map[int]*verrors.ConsistencyError
	touched  map[int]bool
	winners  map[int]int
}

// Normalize normalizes the rules of one tradition pair. Rules must be in
// corpus order. Rules in the reverse direction are inverted; rules of other
// pairs are rejected. canon may be nil, in which case nothing is
// synthesized.
func Normalize(pair v11n.Pair, rules []v11n.MappingRule, canon Canon) *Report {
	n := &normalizer{
		pair:     pair,
		canon:    canon,
		input:    rules,
		rejected: make(map[int]*verrors.ConsistencyError),
		touched:  make(map[int]bool),
		winners:  make(map[int]int),
	}

	items := n.orient()
	items = append(items, n.synthesize(len(rules))...)

	items = n.resolve(items)
	items = invertAll(n.resolve(invertAll(items)))

	return n.report(items)
}

// orient inverts reverse-direction rules and drops inconsistent ones.
func (n *normalizer) orient() []item {
	items := make([]item, 0, len(n.input))
	for i, rule := range n.input {
		switch rule.Pair() {
		case n.pair:
		case n.pair.Reverse():
			rule = rule.Inverse()
		default:
			n.reject(i, fmt.Sprintf("rule belongs to %s, not %s", rule.Pair(), n.pair), verrors.ErrInvalidInput)
			continue
		}
		if reason, err := CheckShape(rule); err != nil {
			n.reject(i, reason, err)
			continue
		}
		items = append(items, item{rule: rule, origin: i, seq: i})
	}
	return items
}

// CheckShape validates a rule's kind against its ranges. It returns a
// human-readable reason and ErrCardinality on mismatch.
func CheckShape(r v11n.MappingRule) (string, error) {
	src, tgt := r.SourceRange, r.TargetRange
	if r.Kind.HasSource() != (src != nil) {
		return fmt.Sprintf("%s rule source presence is wrong", r.Kind), verrors.ErrCardinality
	}
	if r.Kind.HasTarget() != (tgt != nil) {
		return fmt.Sprintf("%s rule target presence is wrong", r.Kind), verrors.ErrCardinality
	}

	switch r.Kind {
	case v11n.Identity, v11n.Shift, v11n.Renumber:
		sc, sv := src.Shape()
		tc, tv := tgt.Shape()
		if sc != tc || sv != tv {
			return "source and target ranges differ in size", verrors.ErrCardinality
		}
		if !src.SingleChapter() && src.Start.Verse != tgt.Start.Verse {
			return "a range spanning chapters must keep verse numbers", verrors.ErrCardinality
		}
		sameSubs := src.Start.Sub == tgt.Start.Sub && src.End.Sub == tgt.End.Sub
		if !sameSubs && !(src.IsSingle() && tgt.IsSingle()) {
			return "sub-verse letters differ between source and target", verrors.ErrCardinality
		}
	case v11n.Merge:
		if !multiVerse(*src) {
			return "merge source must span several verses of one chapter", verrors.ErrCardinality
		}
		if !tgt.IsSingle() {
			return "merge target must be a single verse", verrors.ErrCardinality
		}
	case v11n.Split:
		if !src.IsSingle() {
			return "split source must be a single verse", verrors.ErrCardinality
		}
		if !multiVerse(*tgt) {
			return "split target must span several verses of one chapter", verrors.ErrCardinality
		}
	case v11n.Omit, v11n.Insert:
	default:
		return fmt.Sprintf("unknown kind %s", r.Kind), verrors.ErrUnknownRuleKind
	}
	return "", nil
}

func multiVerse(r v11n.VerseRange) bool {
	refs, ok := r.Enumerate()
	return ok && len(refs) > 1
}

// synthesize generates identity and omit rules for whole chapters. They
// are carved against explicit rules by resolve.
func (n *normalizer) synthesize(seqBase int) []item {
	if n.canon == nil {
		return nil
	}
	from, to := n.pair.From, n.pair.To
	first := 1
	if n.canon.UsesVerseZero(from) {
		first = 0
	}

	var out []item
	add := func(kind v11n.RuleKind, book v11n.BookID, c1, c2 int) {
		src := v11n.VerseRange{
			Start: v11n.VerseRef{Tradition: from, Book: book, Chapter: c1, Verse: first},
			End:   v11n.VerseRef{Tradition: from, Book: book, Chapter: c2, Verse: v11n.EndOfChapter},
		}
		rule := v11n.MappingRule{Source: from, Target: to, SourceRange: &src, Kind: kind, Synthesized: true}
		if kind == v11n.Identity {
			tgt := src.In(to, book)
			rule.TargetRange = &tgt
		}
		out = append(out, item{rule: rule, origin: -1, seq: seqBase + len(out)})
	}

	for _, book := range n.canon.Books(from) {
		count, known := n.canon.ChapterCount(from, book)
		if !known {
			count = v11n.MaxChapter
		}
		if !n.canon.Includes(to, book) {
			add(v11n.Omit, book, 1, count)
			continue
		}
		if !known {
			add(v11n.Identity, book, 1, count)
			continue
		}
		targetCount, targetKnown := n.canon.ChapterCount(to, book)
		for c := 1; c <= count; c++ {
			if targetKnown && c > targetCount {
				add(v11n.Omit, book, c, count)
				break
			}
			add(v11n.Identity, book, c, c)
		}
	}
	return out
}

// precedes orders items by precedence: explicit before generated, narrow
// before wide, later rows before earlier ones.
func precedes(a, b item) int {
	if a.rule.Synthesized != b.rule.Synthesized {
		if b.rule.Synthesized {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.rule.SourceRange.Width(), b.rule.SourceRange.Width()); c != 0 {
		return c
	}
	return cmp.Compare(b.seq, a.seq)
}

// resolve removes source-side overlaps.
func (n *normalizer) resolve(items []item) []item {
	var (
		out      []item
		ranked   []item
		accepted = make(map[v11n.BookID][]item)
		books    []v11n.BookID
	)
	for _, it := range items {
		if it.rule.SourceRange == nil {
			out = append(out, it)
			continue
		}
		ranked = append(ranked, it)
	}
	slices.SortStableFunc(ranked, precedes)

	for _, it := range ranked {
		rng := *it.rule.SourceRange
		book := rng.Book()
		if _, seen := accepted[book]; !seen {
			books = append(books, book)
		}

		var hits []item
		for _, a := range accepted[book] {
			if a.rule.SourceRange.Overlaps(rng) {
				hits = append(hits, a)
			}
		}
		if len(hits) == 0 {
			accepted[book] = append(accepted[book], it)
			continue
		}

		slices.SortFunc(hits, func(a, b item) int {
			return cmp.Compare(a.rule.SourceRange.Lo(), b.rule.SourceRange.Lo())
		})
		winner := hits[0]
		for _, h := range hits {
			if h.rule.SourceRange.Lo() == rng.Lo() && h.rule.SourceRange.Hi() == rng.Hi() {
				winner = h
				break
			}
		}

		n.lose(it, winner)
		pieces := subtract(rng, hits)
		if len(pieces) == 0 {
			continue
		}
		frags, ok := fragments(it.rule, pieces)
		if !ok {
			if it.origin >= 0 {
				n.reject(it.origin, fmt.Sprintf("%s partially overlaps the rule at row %d", rng, winner.rule.Row), verrors.ErrUnresolvedOverlap)
			}
			continue
		}
		for _, f := range frags {
			frag := it
			frag.rule = f
			accepted[book] = append(accepted[book], frag)
		}
	}

	for _, book := range books {
		out = append(out, accepted[book]...)
	}
	return out
}

// subtract returns the parts of r not covered by hits, which must be
// sorted by low bound.
func subtract(r v11n.VerseRange, hits []item) []v11n.VerseRange {
	var pieces []v11n.VerseRange
	cursor := r.Start
	for _, h := range hits {
		hr := *h.rule.SourceRange
		if hr.Lo() > cursor.Low() {
			if end, ok := hr.Start.Before(); ok {
				if piece, ok := clip(cursor, end, r); ok {
					pieces = append(pieces, piece)
				}
			}
		}
		if hr.Hi() >= r.Hi() {
			return pieces
		}
		if next := hr.End.After(); next.Low() > cursor.Low() {
			cursor = next
		}
	}
	if piece, ok := clip(cursor, r.End, r); ok {
		pieces = append(pieces, piece)
	}
	return pieces
}

// clip returns [start, end] if it is non-empty and inside r.
func clip(start, end v11n.VerseRef, r v11n.VerseRange) (v11n.VerseRange, bool) {
	if start.Low() < r.Lo() || end.High() > r.Hi() || end.High() < start.Low() {
		return v11n.VerseRange{}, false
	}
	return v11n.VerseRange{Start: start, End: end}, true
}

// fragments carves r into one rule per piece. It fails when r cannot be
// cut or when a fragment's ranges no longer fit its kind.
func fragments(r v11n.MappingRule, pieces []v11n.VerseRange) ([]v11n.MappingRule, bool) {
	if !r.Kind.Carvable() || r.Relettered() {
		return nil, false
	}
	out := make([]v11n.MappingRule, 0, len(pieces))
	for _, p := range pieces {
		f := carve(r, p)
		if _, err := CheckShape(f); err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// carve narrows a carvable rule to part of its source range.
func carve(r v11n.MappingRule, src v11n.VerseRange) v11n.MappingRule {
	out := r
	if r.TargetRange != nil {
		tgt := r.Project(src)
		out.TargetRange = &tgt
	}
	out.SourceRange = &src
	out.DerivedFrom = r.Origin()
	return out
}

func invertAll(items []item) []item {
	out := make([]item, len(items))
	for i, it := range items {
		it.rule = it.rule.Inverse()
		out[i] = it
	}
	return out
}

func (n *normalizer) lose(it item, winner item) {
	if it.origin < 0 {
		return
	}
	n.touched[it.origin] = true
	if _, ok := n.winners[it.origin]; !ok && winner.rule.Row != 0 {
		n.winners[it.origin] = winner.rule.Row
	}
}

func (n *normalizer) reject(i int, reason string, err error) {
	rule := n.input[i]
	n.rejected[i] = &verrors.ConsistencyError{
		Row:    rule.Row,
		Rule:   rule.String(),
		Reason: reason,
		Err:    err,
	}
}

func (n *normalizer) report(items []item) *Report {
	rep := &Report{Pair: n.pair, Rules: make([]v11n.MappingRule, 0, len(items))}

	survivors := make(map[int][]v11n.MappingRule)
	for _, it := range items {
		if it.origin >= 0 {
			if _, bad := n.rejected[it.origin]; bad {
				continue
			}
			survivors[it.origin] = append(survivors[it.origin], it.rule)
		}
		rep.Rules = append(rep.Rules, it.rule)
	}
	SortRules(rep.Rules)

	rep.Statuses = make([]Status, len(n.input))
	for i, rule := range n.input {
		st := Status{Rule: rule, SupersededBy: n.winners[i]}
		switch {
		case n.rejected[i] != nil:
			st.State = Rejected
			st.Err = n.rejected[i]
			rep.Errors = append(rep.Errors, n.rejected[i])
		case len(survivors[i]) == 0:
			st.State = Superseded
		case n.touched[i]:
			st.State = Trimmed
		default:
			st.State = Accepted
		}
		rep.Statuses[i] = st
	}
	return rep
}

// SortRules orders rules by book, source low bound (target low bound for
// Insert rules) and row.
func SortRules(rules []v11n.MappingRule) {
	slices.SortStableFunc(rules, func(a, b v11n.MappingRule) int {
		if c := cmp.Compare(a.Book(), b.Book()); c != 0 {
			return c
		}
		if c := cmp.Compare(anchor(a), anchor(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})
}

func anchor(r v11n.MappingRule) v11n.Position {
	if r.SourceRange != nil {
		return r.SourceRange.Lo()
	}
	if r.TargetRange != nil {
		return r.TargetRange.Lo()
	}
	return 0
}
