package normalize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/versemap/core/canon"
	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

var engToHeb = v11n.Pair{From: v11n.English, To: v11n.Masoretic}

func vr(t v11n.Tradition, book v11n.BookID, c1, v1, c2, v2 int) *v11n.VerseRange {
	return &v11n.VerseRange{
		Start: v11n.VerseRef{Tradition: t, Book: book, Chapter: c1, Verse: v1},
		End:   v11n.VerseRef{Tradition: t, Book: book, Chapter: c2, Verse: v2},
	}
}

// lettered returns a single-verse range with a sub-verse letter ("" for
// the whole verse).
func lettered(t v11n.Tradition, book v11n.BookID, c, v int, sub string) *v11n.VerseRange {
	ref := v11n.VerseRef{Tradition: t, Book: book, Chapter: c, Verse: v, Sub: sub}
	return &v11n.VerseRange{Start: ref, End: ref}
}

func rule(row int, kind v11n.RuleKind, src, tgt *v11n.VerseRange) v11n.MappingRule {
	r := v11n.MappingRule{Row: row, Kind: kind, SourceRange: src, TargetRange: tgt}
	switch {
	case src != nil:
		r.Source = src.Tradition()
	case tgt != nil:
		r.Source = engToHeb.Reverse().To
	}
	if tgt != nil {
		r.Target = tgt.Tradition()
	} else {
		r.Target = engToHeb.To
	}
	return r
}

func ranges(rules []v11n.MappingRule) []string {
	var out []string
	for _, r := range rules {
		s := r.Kind.String() + " "
		if r.SourceRange != nil {
			s += r.SourceRange.String()
		}
		s += " > "
		if r.TargetRange != nil {
			s += r.TargetRange.String()
		}
		out = append(out, s)
	}
	return out
}

// fakeCanon has a couple of books and no verse-zero traditions.
type fakeCanon struct {
	chapters map[v11n.Tradition]map[v11n.BookID]int
}

func (f fakeCanon) Books(t v11n.Tradition) []v11n.BookID {
	var out []v11n.BookID
	for _, b := range []v11n.BookID{"Mal", "Tob"} {
		if f.Includes(t, b) {
			out = append(out, b)
		}
	}
	return out
}

func (f fakeCanon) Includes(t v11n.Tradition, book v11n.BookID) bool {
	_, ok := f.chapters[t][book]
	return ok
}

func (f fakeCanon) ChapterCount(t v11n.Tradition, book v11n.BookID) (int, bool) {
	n, ok := f.chapters[t][book]
	return n, ok
}

func (fakeCanon) UsesVerseZero(v11n.Tradition) bool { return false }

func newFakeCanon() fakeCanon {
	return fakeCanon{chapters: map[v11n.Tradition]map[v11n.BookID]int{
		v11n.English:   {"Mal": 4},
		v11n.Masoretic: {"Mal": 3},
		v11n.Greek:     {"Mal": 3, "Tob": 14},
	}}
}

func TestCheckShape(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	tests := []struct {
		name string
		rule v11n.MappingRule
		ok   bool
	}{
		{"identity", rule(1, v11n.Identity, vr(e, "Gen", 1, 1, 1, 3), vr(h, "Gen", 1, 1, 1, 3)), true},
		{"shift", rule(1, v11n.Shift, vr(e, "Mal", 4, 1, 4, 6), vr(h, "Mal", 3, 19, 3, 24)), true},
		{"shift size", rule(1, v11n.Shift, vr(e, "Mal", 4, 1, 4, 6), vr(h, "Mal", 3, 19, 3, 23)), false},
		{"cross chapter keeps verses", rule(1, v11n.Renumber, vr(e, "Ps", 10, 1, 11, 5), vr(h, "Ps", 9, 1, 10, 5)), true},
		{"cross chapter moves verses", rule(1, v11n.Renumber, vr(e, "Ps", 10, 1, 11, 5), vr(h, "Ps", 9, 2, 10, 6)), false},
		{"merge", rule(1, v11n.Merge, vr(e, "Gen", 1, 1, 1, 2), vr(h, "Gen", 1, 1, 1, 1)), true},
		{"merge single source", rule(1, v11n.Merge, vr(e, "Gen", 1, 1, 1, 1), vr(h, "Gen", 1, 1, 1, 1)), false},
		{"merge wide target", rule(1, v11n.Merge, vr(e, "Gen", 1, 1, 1, 2), vr(h, "Gen", 1, 1, 1, 2)), false},
		{"merge across chapters", rule(1, v11n.Merge, vr(e, "Gen", 1, 31, 2, 1), vr(h, "Gen", 1, 31, 1, 31)), false},
		{"split", rule(1, v11n.Split, vr(e, "3John", 1, 14, 1, 14), vr(h, "3John", 1, 14, 1, 15)), true},
		{"split wide source", rule(1, v11n.Split, vr(e, "3John", 1, 14, 1, 15), vr(h, "3John", 1, 14, 1, 15)), false},
		{"omit", rule(1, v11n.Omit, vr(e, "Gen", 1, 1, 1, 1), nil), true},
		{"omit with target", rule(1, v11n.Omit, vr(e, "Gen", 1, 1, 1, 1), vr(h, "Gen", 1, 1, 1, 1)), false},
		{"insert", rule(1, v11n.Insert, nil, vr(h, "Gen", 1, 1, 1, 1)), true},
		{"insert with source", rule(1, v11n.Insert, vr(e, "Gen", 1, 1, 1, 1), vr(h, "Gen", 1, 1, 1, 1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, err := CheckShape(tt.rule)
			if tt.ok {
				assert.NoError(t, err)
				assert.Empty(t, reason)
				return
			}
			assert.ErrorIs(t, err, verrors.ErrCardinality)
			assert.NotEmpty(t, reason)
		})
	}

	sub := rule(1, v11n.Renumber, vr(e, "Ps", 3, 1, 3, 1), vr(h, "Ps", 3, 0, 3, 0))
	sub.SourceRange.Start.Sub, sub.SourceRange.End.Sub = "a", "a"
	_, err := CheckShape(sub)
	assert.NoError(t, err, "single verses may differ in sub-verse letters")
}

// Two rows for the same source verse: the later row wins and the earlier
// one is kept as superseded.
func TestLastRowWins(t *testing.T) {
	h, e := v11n.Masoretic, v11n.English
	rules := []v11n.MappingRule{
		rule(1, v11n.Identity, vr(h, "Gen", 31, 55, 31, 55), vr(e, "Gen", 31, 55, 31, 55)),
		rule(2, v11n.Renumber, vr(h, "Gen", 31, 55, 31, 55), vr(e, "Gen", 32, 1, 32, 1)),
	}
	rep := Normalize(v11n.Pair{From: h, To: e}, rules, nil)

	require.Len(t, rep.Statuses, 2)
	assert.Equal(t, Superseded, rep.Statuses[0].State)
	assert.Equal(t, 2, rep.Statuses[0].SupersededBy)
	assert.Equal(t, rules[0], rep.Statuses[0].Rule)
	assert.Equal(t, Accepted, rep.Statuses[1].State)
	assert.Empty(t, rep.Errors)
	assert.Equal(t, []string{"Renumber Gen.31.55 > Gen.32.1"}, ranges(rep.Rules))
}

func TestNarrowerRuleCarvesWider(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Shift, vr(e, "Gen", 1, 1, 1, 10), vr(h, "Gen", 1, 2, 1, 11)),
		rule(2, v11n.Renumber, vr(e, "Gen", 1, 5, 1, 5), vr(h, "Gen", 1, 20, 1, 20)),
	}
	rep := Normalize(engToHeb, rules, nil)

	assert.Equal(t, []string{
		"Shift Gen.1.1-4 > Gen.1.2-5",
		"Renumber Gen.1.5 > Gen.1.20",
		"Shift Gen.1.6-10 > Gen.1.7-11",
	}, ranges(rep.Rules))
	assert.Equal(t, Trimmed, rep.Statuses[0].State)
	assert.Equal(t, 2, rep.Statuses[0].SupersededBy)
	assert.Equal(t, Accepted, rep.Statuses[1].State)
	assert.Equal(t, 1, rep.Rules[0].DerivedFrom)
	assert.Equal(t, 1, rep.Rules[2].Origin())
}

func TestNarrowerRuleWinsRegardlessOfOrder(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Renumber, vr(e, "Gen", 1, 5, 1, 5), vr(h, "Gen", 1, 20, 1, 20)),
		rule(2, v11n.Shift, vr(e, "Gen", 1, 1, 1, 10), vr(h, "Gen", 1, 2, 1, 11)),
	}
	rep := Normalize(engToHeb, rules, nil)
	assert.Equal(t, Accepted, rep.Statuses[0].State)
	assert.Equal(t, Trimmed, rep.Statuses[1].State)
	assert.Len(t, rep.Rules, 3)
}

func TestMergePartialOverlapRejected(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Merge, vr(e, "Gen", 2, 1, 2, 3), vr(h, "Gen", 2, 1, 2, 1)),
		rule(2, v11n.Identity, vr(e, "Gen", 2, 3, 2, 3), vr(h, "Gen", 2, 3, 2, 3)),
	}
	rep := Normalize(engToHeb, rules, nil)

	assert.Equal(t, Rejected, rep.Statuses[0].State)
	require.Len(t, rep.Errors, 1)
	assert.ErrorIs(t, rep.Errors[0], verrors.ErrUnresolvedOverlap)
	assert.Equal(t, 1, rep.Errors[0].Row)
	assert.Equal(t, rep.Errors[0], rep.Statuses[0].Err)
	assert.Equal(t, []string{"Identity Gen.2.3 > Gen.2.3"}, ranges(rep.Rules))
}

func TestMergeFullyCoveredSuperseded(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Merge, vr(e, "Gen", 2, 1, 2, 2), vr(h, "Gen", 2, 1, 2, 1)),
		rule(2, v11n.Identity, vr(e, "Gen", 2, 1, 2, 1), vr(h, "Gen", 2, 1, 2, 1)),
		rule(3, v11n.Shift, vr(e, "Gen", 2, 2, 2, 2), vr(h, "Gen", 2, 3, 2, 3)),
	}
	rep := Normalize(engToHeb, rules, nil)
	assert.Equal(t, Superseded, rep.Statuses[0].State)
	assert.Empty(t, rep.Errors)
	assert.Len(t, rep.Rules, 2)
}

func TestInconsistentRulesRejected(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Split, vr(e, "3John", 1, 14, 1, 15), vr(h, "3John", 1, 14, 1, 15)),
		rule(2, v11n.Identity, vr(e, "3John", 1, 1, 1, 1), vr(h, "3John", 1, 1, 1, 1)),
	}
	rep := Normalize(engToHeb, rules, nil)
	assert.Equal(t, Rejected, rep.Statuses[0].State)
	assert.Equal(t, Accepted, rep.Statuses[1].State)
	require.Len(t, rep.Errors, 1)
	assert.ErrorIs(t, rep.Errors[0], verrors.ErrCardinality)
	assert.Contains(t, rep.Errors[0].Error(), "rule at row 1")
	assert.Equal(t, 1, rep.Count(Rejected))
	assert.Equal(t, 1, rep.Count(Accepted))
}

func TestReverseOrientationInverted(t *testing.T) {
	e, g := v11n.English, v11n.Greek
	rules := []v11n.MappingRule{
		rule(1, v11n.Merge, vr(g, "3John", 1, 14, 1, 15), vr(e, "3John", 1, 14, 1, 14)),
		rule(2, v11n.Identity, vr(v11n.Vulgate, "Gen", 1, 1, 1, 1), vr(e, "Gen", 1, 1, 1, 1)),
	}
	rep := Normalize(v11n.Pair{From: e, To: g}, rules, nil)

	require.Len(t, rep.Rules, 1)
	got := rep.Rules[0]
	assert.Equal(t, v11n.Split, got.Kind)
	assert.Equal(t, e, got.Source)
	assert.Equal(t, "3John.1.14", got.SourceRange.String())
	assert.Equal(t, "3John.1.14-15", got.TargetRange.String())
	assert.Equal(t, Accepted, rep.Statuses[0].State)
	assert.Equal(t, Rejected, rep.Statuses[1].State)
	assert.ErrorIs(t, rep.Statuses[1].Err, verrors.ErrInvalidInput)
}

func TestTargetOverlapResolved(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Identity, vr(e, "Gen", 5, 1, 5, 1), vr(h, "Gen", 5, 1, 5, 1)),
		rule(2, v11n.Renumber, vr(e, "Gen", 6, 1, 6, 1), vr(h, "Gen", 5, 1, 5, 1)),
	}
	rep := Normalize(engToHeb, rules, nil)
	assert.Equal(t, Superseded, rep.Statuses[0].State)
	assert.Equal(t, 2, rep.Statuses[0].SupersededBy)
	assert.Equal(t, []string{"Renumber Gen.6.1 > Gen.5.1"}, ranges(rep.Rules))
}

func TestSynthesis(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(7, v11n.Shift, vr(e, "Mal", 4, 1, 4, 6), vr(h, "Mal", 3, 19, 3, 24)),
	}
	rep := Normalize(engToHeb, rules, newFakeCanon())

	assert.Equal(t, []string{
		"Identity Mal.1.1-end > Mal.1.1-end",
		"Identity Mal.2.1-end > Mal.2.1-end",
		"Identity Mal.3.1-18 > Mal.3.1-18",
		"Identity Mal.3.25-end > Mal.3.25-end",
		"Shift Mal.4.1-6 > Mal.3.19-24",
		"Omit Mal.4.7-end > ",
	}, ranges(rep.Rules))
	assert.Equal(t, 5, rep.Synthesized())
	assert.Equal(t, Accepted, rep.Statuses[0].State)
	for _, r := range rep.Rules {
		assert.Equal(t, r.Kind != v11n.Shift, r.Synthesized)
	}
}

// Books missing from the target tradition are omitted entirely.
func TestSynthesisMissingBook(t *testing.T) {
	rep := Normalize(v11n.Pair{From: v11n.Greek, To: v11n.English}, nil, newFakeCanon())

	var tob []v11n.MappingRule
	for _, r := range rep.Rules {
		if r.Book() == "Tob" {
			tob = append(tob, r)
		}
	}
	require.Len(t, tob, 1)
	assert.Equal(t, v11n.Omit, tob[0].Kind)
	assert.Equal(t, "Tob.1.1-14.end", tob[0].SourceRange.String())
	assert.True(t, tob[0].Synthesized)
}

func TestSynthesisDefaultCanon(t *testing.T) {
	rep := Normalize(v11n.Pair{From: v11n.Greek, To: v11n.English}, nil, canon.Default())
	kinds := make(map[v11n.BookID]v11n.RuleKind)
	for _, r := range rep.Rules {
		kinds[r.Book()] = r.Kind
	}
	assert.Equal(t, v11n.Omit, kinds["Tob"])
	assert.Equal(t, v11n.Identity, kinds["Gen"])
	assert.Equal(t, v11n.Identity, kinds["Matt"])
}

func TestNormalizeDeterministic(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Shift, vr(e, "Mal", 4, 1, 4, 6), vr(h, "Mal", 3, 19, 3, 24)),
		rule(2, v11n.Identity, vr(e, "Mal", 3, 1, 3, 1), vr(h, "Mal", 3, 1, 3, 1)),
	}
	a := Normalize(engToHeb, rules, newFakeCanon())
	b := Normalize(engToHeb, rules, newFakeCanon())
	assert.Equal(t, a, b)
}

func TestReletteredRuleIsNotCut(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	tests := []struct {
		name  string
		rules []v11n.MappingRule
	}{
		{
			name: "target verse holds a lettered part",
			rules: []v11n.MappingRule{
				rule(1, v11n.Identity, lettered(e, "Gen", 1, 4, "b"), lettered(h, "Gen", 1, 4, "b")),
				rule(2, v11n.Identity, lettered(e, "Gen", 1, 2, "b"), lettered(h, "Gen", 1, 4, "")),
			},
		},
		{
			name: "whole verse onto a part",
			rules: []v11n.MappingRule{
				rule(1, v11n.Identity, lettered(e, "Gen", 1, 4, ""), lettered(h, "Gen", 1, 4, "a")),
				rule(2, v11n.Identity, lettered(e, "Gen", 1, 3, "a"), lettered(h, "Gen", 1, 4, "")),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Normalize(engToHeb, tt.rules, canon.Default())

			assert.Equal(t, Accepted, rep.Statuses[0].State)
			assert.Equal(t, Rejected, rep.Statuses[1].State)
			require.Len(t, rep.Errors, 1)
			assert.Equal(t, 2, rep.Errors[0].Row)
			assert.ErrorIs(t, rep.Errors[0], verrors.ErrUnresolvedOverlap)

			for _, r := range rep.Rules {
				assert.NotEqual(t, 2, r.Origin(), "no fragment of row 2 survives: %s", r)
			}
			_, _, err := mapping.BuildPair(engToHeb, rep.Rules)
			require.NoError(t, err)
		})
	}
}

func TestReletteredRuleSupersededWhole(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rules := []v11n.MappingRule{
		rule(1, v11n.Identity, lettered(e, "Gen", 1, 2, "b"), lettered(h, "Gen", 1, 4, "")),
		rule(2, v11n.Shift, vr(e, "Gen", 1, 2, 1, 2), vr(h, "Gen", 1, 3, 1, 3)),
		rule(3, v11n.Identity, lettered(e, "Gen", 1, 2, "b"), lettered(h, "Gen", 1, 5, "")),
	}
	rep := Normalize(engToHeb, rules, nil)
	assert.Equal(t, Superseded, rep.Statuses[0].State)
	assert.Equal(t, 3, rep.Statuses[0].SupersededBy)
	assert.Equal(t, Trimmed, rep.Statuses[1].State)
	assert.Equal(t, Accepted, rep.Statuses[2].State)
	assert.Empty(t, rep.Errors)
}

// A fragment whose ranges no longer fit its kind rejects the whole rule.
func TestMisshapenFragmentRejectsRule(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	shift := rule(1, v11n.Shift, vr(e, "Gen", 3, 20, 4, 5), vr(h, "Gen", 4, 20, 5, 5))
	frags, ok := fragments(shift.Inverse(), []v11n.VerseRange{*vr(h, "Gen", 4, 22, 5, 5)})
	require.True(t, ok)
	require.Len(t, frags, 1)
	assert.Equal(t, "Gen.3.22-4.5", frags[0].TargetRange.String())

	bad := shift
	bad.SourceRange = vr(e, "Gen", 3, 20, 3, 25)
	bad.TargetRange = vr(h, "Gen", 3, 21, 3, 26)
	_, ok = fragments(bad, []v11n.VerseRange{*vr(e, "Gen", 3, 23, 3, v11n.EndOfChapter)})
	assert.False(t, ok)
}

// Random rule sets always normalize to rules that overlap neither on the
// source side nor on the target side, keep the shape of their kind and
// build into both directions of a table.
func TestNoOverlapProperty(t *testing.T) {
	e, h := v11n.English, v11n.Masoretic
	rng := rand.New(rand.NewSource(42))
	letters := []string{"", "a", "b", "c"}

	randRange := func(tr v11n.Tradition, maxLen int) *v11n.VerseRange {
		c := 1 + rng.Intn(3)
		v := 1 + rng.Intn(20)
		return vr(tr, "Gen", c, v, c, v+rng.Intn(maxLen))
	}

	for trial := 0; trial < 200; trial++ {
		var rules []v11n.MappingRule
		for i := 0; i < 2+rng.Intn(12); i++ {
			row := i + 1
			switch rng.Intn(7) {
			case 5:
				c, v := 1+rng.Intn(3), 1+rng.Intn(20)
				first := 1 + rng.Intn(2)
				src := vr(e, "Gen", c, v, c, v)
				src.Start.Sub, src.End.Sub = letters[first], letters[first+rng.Intn(2)]
				tgt := src.Offset(0, rng.Intn(3)).In(h, "Gen")
				rules = append(rules, rule(row, v11n.Shift, src, &tgt))
			case 6:
				src := lettered(e, "Gen", 1+rng.Intn(3), 1+rng.Intn(20), letters[rng.Intn(len(letters))])
				sub := letters[rng.Intn(len(letters))]
				if sub == src.Start.Sub {
					continue
				}
				rules = append(rules, rule(row, v11n.Identity, src, lettered(h, "Gen", src.Start.Chapter, 1+rng.Intn(20), sub)))
			case 0, 1:
				src := randRange(e, 6)
				dc, dv := rng.Intn(3)-1, rng.Intn(7)-3
				tgt := src.Offset(dc, dv).In(h, "Gen")
				if tgt.Start.Chapter < 1 || tgt.Start.Verse < 1 {
					continue
				}
				rules = append(rules, rule(row, v11n.Shift, src, &tgt))
			case 2:
				src := randRange(e, 3)
				if src.IsSingle() {
					src.End.Verse++
				}
				rules = append(rules, rule(row, v11n.Merge, src, randRange(h, 1)))
			case 3:
				tgt := randRange(h, 3)
				if tgt.IsSingle() {
					tgt.End.Verse++
				}
				rules = append(rules, rule(row, v11n.Split, randRange(e, 1), tgt))
			case 4:
				rules = append(rules, rule(row, v11n.Omit, randRange(e, 4), nil))
			}
		}

		var books Canon
		if trial%2 == 1 {
			books = canon.Default()
		}
		rep := Normalize(engToHeb, rules, books)
		require.Len(t, rep.Statuses, len(rules))
		assertNoOverlap(t, rep.Rules, func(r v11n.MappingRule) *v11n.VerseRange { return r.SourceRange })
		assertNoOverlap(t, rep.Rules, func(r v11n.MappingRule) *v11n.VerseRange { return r.TargetRange })

		for _, r := range rep.Rules {
			_, err := CheckShape(r)
			assert.NoError(t, err, "trial %d: %s", trial, r)
			if r.Kind.Arithmetic() && !r.Relettered() {
				back := r.Inverse().Project(r.Project(*r.SourceRange))
				assert.Equal(t, *r.SourceRange, back, "trial %d: %s", trial, r)
			}
		}
		_, _, err := mapping.BuildPair(engToHeb, rep.Rules)
		require.NoError(t, err, "trial %d: %v", trial, rules)
	}
}

func assertNoOverlap(t *testing.T, rules []v11n.MappingRule, side func(v11n.MappingRule) *v11n.VerseRange) {
	t.Helper()
	for i := range rules {
		a := side(rules[i])
		if a == nil {
			continue
		}
		for j := i + 1; j < len(rules); j++ {
			b := side(rules[j])
			if b == nil || a.Book() != b.Book() {
				continue
			}
			assert.False(t, a.Overlaps(*b), "%s overlaps %s", rules[i], rules[j])
		}
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "superseded", Superseded.String())
	assert.Equal(t, "State(9)", State(9).String())
}
