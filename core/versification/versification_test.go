package versification

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
)

// stubBooks resolves a handful of names for every tradition.
type stubBooks struct{ zero bool }

func (s stubBooks) ResolveBook(_ Tradition, name string) (BookID, bool) {
	key := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	switch key {
	case "gen", "genesis":
		return "Gen", true
	case "ps", "psalms", "psalm":
		return "Ps", true
	case "3john":
		return "3John", true
	case "1john":
		return "1John", true
	case "songofsolomon", "song":
		return "Song", true
	}
	return "", false
}

func (s stubBooks) UsesVerseZero(Tradition) bool { return s.zero }

func ref(book BookID, c, v int, sub string) VerseRef {
	return VerseRef{Tradition: English, Book: book, Chapter: c, Verse: v, Sub: sub}
}

func TestParseTradition(t *testing.T) {
	tests := []struct {
		in   string
		want Tradition
		ok   bool
	}{
		{"Masoretic", Masoretic, true},
		{"hebrew", Masoretic, true},
		{"LXX", Greek, true},
		{"Septuagint", Greek, true},
		{"kjv", English, true},
		{" Vulgate ", Vulgate, true},
		{"SVD", Arabic, true},
		{"Klingon", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseTradition(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	for _, tr := range Traditions() {
		assert.True(t, tr.IsValid(), tr)
	}
	assert.False(t, Tradition("hebrew").IsValid())
}

func TestPairHelpers(t *testing.T) {
	p := Pair{From: Masoretic, To: English}
	assert.Equal(t, "Masoretic->English", p.String())
	assert.Equal(t, Pair{From: English, To: Masoretic}, p.Reverse())
	assert.Equal(t, p.Unordered(), p.Reverse().Unordered())
}

func TestPositionOrdering(t *testing.T) {
	v13 := ref("Ps", 3, 13, "")
	v14 := ref("Ps", 3, 14, "")
	v14a := ref("Ps", 3, 14, "a")
	v14b := ref("Ps", 3, 14, "b")
	v4 := ref("Ps", 4, 1, "")

	assert.Less(t, v13.High(), v14.Low())
	assert.Less(t, v14.Low(), v14a.Low())
	assert.Less(t, v14a.High(), v14b.Low())
	assert.Less(t, v14b.High(), v14.High())
	assert.Less(t, ref("Ps", 3, EndOfChapter, "").High(), v4.Low())

	p := v14b.Low()
	assert.Equal(t, 3, p.Chapter())
	assert.Equal(t, 14, p.Verse())

	// A whole verse covers its parts.
	assert.True(t, Single(v14).ContainsRef(v14a))
	assert.False(t, Single(v14a).ContainsRef(v14))
	assert.True(t, Single(v14).Overlaps(Single(v14b)))
}

func TestVerseRefValidate(t *testing.T) {
	tests := []struct {
		name string
		ref  VerseRef
		ok   bool
	}{
		{"valid", ref("Gen", 1, 1, ""), true},
		{"verse zero", ref("Ps", 3, 0, ""), true},
		{"sub", ref("Ps", 3, 1, "a"), true},
		{"no book", VerseRef{Chapter: 1, Verse: 1}, false},
		{"chapter zero", ref("Gen", 0, 1, ""), false},
		{"negative verse", ref("Gen", 1, -1, ""), false},
		{"bad sub", ref("Gen", 1, 1, "A"), false},
		{"long sub", ref("Gen", 1, 1, "ab"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, verrors.ErrInvalidInput)
			}
		})
	}
}

func TestBeforeAfter(t *testing.T) {
	tests := []struct {
		name   string
		in     VerseRef
		before VerseRef
		ok     bool
		after  VerseRef
	}{
		{"mid chapter", ref("Gen", 2, 5, ""), ref("Gen", 2, 4, ""), true, ref("Gen", 2, 6, "")},
		{"sub b", ref("Gen", 2, 5, "b"), ref("Gen", 2, 5, "a"), true, ref("Gen", 2, 5, "c")},
		{"sub a", ref("Gen", 2, 5, "a"), ref("Gen", 2, 4, ""), true, ref("Gen", 2, 5, "b")},
		{"verse one", ref("Gen", 2, 1, ""), ref("Gen", 2, 0, ""), true, ref("Gen", 2, 2, "")},
		{"verse zero", ref("Gen", 2, 0, ""), ref("Gen", 1, EndOfChapter, ""), true, ref("Gen", 2, 1, "")},
		{"book start", ref("Gen", 1, 0, ""), VerseRef{}, false, ref("Gen", 1, 1, "")},
		{"end sentinel", ref("Gen", 1, EndOfChapter, ""), VerseRef{}, false, ref("Gen", 2, 0, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Before()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.before, got)
				assert.Less(t, got.High(), tt.in.Low())
			}
			after := tt.in.After()
			assert.Equal(t, tt.after, after)
			assert.Greater(t, after.Low(), tt.in.High())
		})
	}
}

func TestRangeValidate(t *testing.T) {
	_, err := NewRange(ref("Gen", 1, 3, ""), ref("Gen", 1, 1, ""))
	assert.ErrorIs(t, err, verrors.ErrRangeOrder)

	_, err = NewRange(ref("Gen", 2, 1, ""), ref("Gen", 1, 30, ""))
	assert.ErrorIs(t, err, verrors.ErrRangeOrder)

	_, err = NewRange(ref("Ps", 3, 1, "b"), ref("Ps", 3, 1, "a"))
	assert.ErrorIs(t, err, verrors.ErrRangeOrder)

	_, err = NewRange(ref("Gen", 1, 1, ""), ref("Ps", 1, 2, ""))
	assert.ErrorIs(t, err, verrors.ErrInvalidInput)

	rng, err := NewRange(ref("Gen", 31, 55, ""), ref("Gen", 32, 1, ""))
	require.NoError(t, err)
	assert.False(t, rng.SingleChapter())
	assert.Equal(t, "Gen.31.55-32.1", rng.String())
}

func TestRangeOperations(t *testing.T) {
	a := VerseRange{Start: ref("Gen", 1, 1, ""), End: ref("Gen", 1, 10, "")}
	b := VerseRange{Start: ref("Gen", 1, 5, ""), End: ref("Gen", 1, 20, "")}
	c := VerseRange{Start: ref("Gen", 1, 11, ""), End: ref("Gen", 1, 12, "")}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
	assert.True(t, b.Contains(c))
	assert.Less(t, c.Width(), a.Width())

	got, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, "Gen.1.5-10", got.String())
	_, ok = a.Intersect(c)
	assert.False(t, ok)

	dc, dv := a.Shape()
	assert.Equal(t, 0, dc)
	assert.Equal(t, 9, dv)
	assert.Equal(t, "Gen.2.3-12", a.Offset(1, 2).String())
}

func TestEnumerate(t *testing.T) {
	tests := []struct {
		name string
		rng  VerseRange
		want []string
		ok   bool
	}{
		{"single", Single(ref("3John", 1, 14, "")), []string{"3John.1.14"}, true},
		{"verses", VerseRange{Start: ref("3John", 1, 14, ""), End: ref("3John", 1, 15, "")}, []string{"3John.1.14", "3John.1.15"}, true},
		{"subs", VerseRange{Start: ref("Ps", 3, 1, "a"), End: ref("Ps", 3, 1, "c")}, []string{"Ps.3.1a", "Ps.3.1b", "Ps.3.1c"}, true},
		{"mixed", VerseRange{Start: ref("Ps", 3, 1, "b"), End: ref("Ps", 3, 3, "")}, []string{"Ps.3.1b", "Ps.3.2", "Ps.3.3"}, true},
		{"cross chapter", VerseRange{Start: ref("Gen", 31, 55, ""), End: ref("Gen", 32, 1, "")}, nil, false},
		{"open end", VerseRange{Start: ref("Gen", 31, 1, ""), End: ref("Gen", 31, EndOfChapter, "")}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, ok := tt.rng.Enumerate()
			assert.Equal(t, tt.ok, ok)
			var got []string
			for _, r := range refs {
				got = append(got, r.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "Ps.3.1a-1b", VerseRange{Start: ref("Ps", 3, 1, "a"), End: ref("Ps", 3, 1, "b")}.String())
	assert.Equal(t, "Mal.3.19-end", VerseRange{Start: ref("Mal", 3, 19, ""), End: ref("Mal", 3, EndOfChapter, "")}.String())
}

func TestRuleKindParsing(t *testing.T) {
	for _, k := range RuleKinds() {
		got, err := ParseRuleKind(strings.ToLower(k.String()))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseRuleKind("Swap")
	assert.ErrorIs(t, err, verrors.ErrUnknownRuleKind)
	assert.Equal(t, "RuleKind(42)", RuleKind(42).String())
}

func TestRuleKindJSON(t *testing.T) {
	data, err := json.Marshal(map[string]RuleKind{"kind": Merge})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Merge"}`, string(data))

	var decoded struct{ Kind RuleKind }
	require.NoError(t, json.Unmarshal([]byte(`{"Kind":"split"}`), &decoded))
	assert.Equal(t, Split, decoded.Kind)

	err = json.Unmarshal([]byte(`{"Kind":"bogus"}`), &decoded)
	assert.True(t, errors.Is(err, verrors.ErrUnknownRuleKind))

	_, err = json.Marshal(RuleKind(0))
	assert.Error(t, err)
}

func TestRuleKindInverse(t *testing.T) {
	want := map[RuleKind]RuleKind{
		Identity: Identity,
		Shift:    Shift,
		Renumber: Renumber,
		Merge:    Split,
		Split:    Merge,
		Omit:     Insert,
		Insert:   Omit,
	}
	for k, inv := range want {
		assert.Equal(t, inv, k.Inverse(), k.String())
		assert.Equal(t, k, k.Inverse().Inverse(), k.String())
	}
	assert.True(t, Shift.Arithmetic())
	assert.False(t, Merge.Arithmetic())
	assert.True(t, Omit.Carvable())
	assert.False(t, Split.Carvable())
	assert.False(t, Insert.HasSource())
	assert.False(t, Omit.HasTarget())
}

func TestMappingRuleInverse(t *testing.T) {
	src := VerseRange{Start: ref("Gen", 1, 1, ""), End: ref("Gen", 1, 2, "")}
	tgt := Single(VerseRef{Tradition: Greek, Book: "Gen", Chapter: 1, Verse: 1})
	rule := MappingRule{Row: 4, Source: English, Target: Greek, SourceRange: &src, TargetRange: &tgt, Kind: Merge}

	inv := rule.Inverse()
	assert.Equal(t, Split, inv.Kind)
	assert.Equal(t, Greek, inv.Source)
	assert.Equal(t, &tgt, inv.SourceRange)
	assert.Equal(t, Pair{From: Greek, To: English}, inv.Pair())
	assert.Equal(t, rule, inv.Inverse())
	assert.Equal(t, "Merge English:Gen.1.1-2 => Greek:Gen.1.1", rule.String())

	omit := MappingRule{Row: 9, Source: English, Target: Greek, SourceRange: &src, Kind: Omit}
	assert.Equal(t, BookID("Gen"), omit.Inverse().Book())
	assert.Equal(t, "Insert Greek:- => English:Gen.1.1-2", omit.Inverse().String())
}

func TestMappingRuleOffset(t *testing.T) {
	src := VerseRange{Start: ref("Mal", 4, 1, ""), End: ref("Mal", 4, 6, "")}
	tgt := VerseRange{Start: VerseRef{Tradition: Masoretic, Book: "Mal", Chapter: 3, Verse: 19}, End: VerseRef{Tradition: Masoretic, Book: "Mal", Chapter: 3, Verse: 24}}
	rule := MappingRule{Source: English, Target: Masoretic, SourceRange: &src, TargetRange: &tgt, Kind: Shift}
	dc, dv := rule.Offset()
	assert.Equal(t, -1, dc)
	assert.Equal(t, 18, dv)
	assert.Equal(t, 0, rule.Origin())

	frag := rule
	frag.Row, frag.DerivedFrom = 10, 3
	assert.Equal(t, 3, frag.Origin())

	part := VerseRange{Start: ref("Mal", 4, 2, ""), End: ref("Mal", 4, 3, "")}
	got := rule.Project(part)
	assert.Equal(t, "Mal.3.20-21", got.String())
	assert.Equal(t, Masoretic, got.Tradition())
}

func TestProjectSingleWithSubs(t *testing.T) {
	src := Single(ref("Ps", 3, 1, "a"))
	tgt := Single(VerseRef{Tradition: Masoretic, Book: "Ps", Chapter: 3, Verse: 0})
	rule := MappingRule{Source: English, Target: Masoretic, SourceRange: &src, TargetRange: &tgt, Kind: Renumber}
	assert.Equal(t, tgt, rule.Project(src))
}

func TestParseReference(t *testing.T) {
	books := stubBooks{}
	tests := []struct {
		in   string
		want string
	}{
		{"Gen 31:55", "Gen.31.55"},
		{"Genesis 31:55-32:1", "Gen.31.55-32.1"},
		{"3John 1:14", "3John.1.14"},
		{"3 John 1:14-15", "3John.1.14-15"},
		{"1 John 3:16", "1John.3.16"},
		{"Ps.116.1", "Ps.116.1"},
		{"Ps 3:1a-1b", "Ps.3.1a-1b"},
		{"Song of Solomon 2:1", "Song.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReference(English, tt.in, books)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, English, got.Tradition())
		})
	}
}

func TestParseReferenceErrors(t *testing.T) {
	books := stubBooks{}
	tests := []struct {
		in   string
		want error
	}{
		{"", verrors.ErrInvalidInput},
		{"Gen", verrors.ErrInvalidInput},
		{"Nowhere 1:1", verrors.ErrUnknownBook},
		{"Gen 1:5-3", verrors.ErrRangeOrder},
		{"Ps 3:0", verrors.ErrVerseZero},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseReference(English, tt.in, books)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got, err := ParseReference(Masoretic, "Ps 3:0", stubBooks{zero: true})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Start.Verse)
}
