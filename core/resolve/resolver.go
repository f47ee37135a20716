package resolve

import (
	"fmt"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// TableSource supplies compiled tables by direction.
type TableSource interface {
	Table(p mapping.Pair) (*mapping.Table, bool)
}

// Tables is a fixed set of tables keyed by direction.
type Tables map[mapping.Pair]*mapping.Table

// Table implements TableSource.
func (ts Tables) Table(p mapping.Pair) (*mapping.Table, bool) {
	t, ok := ts[p]
	return t, ok
}

// Add stores t under its own direction.
func (ts Tables) Add(t *mapping.Table) {
	ts[t.Pair()] = t
}

// Resolver resolves references against a table source. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	tables TableSource
	via    []v11n.Tradition
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithChaining lets the resolver go through one intermediate tradition when
// no direct table exists. Intermediates are tried in order.
func WithChaining(via ...v11n.Tradition) Option {
	return func(r *Resolver) {
		r.via = append(r.via, via...)
	}
}

// New creates a resolver over tables.
func New(tables TableSource, opts ...Option) *Resolver {
	r := &Resolver{tables: tables}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps ref from one tradition to another. Resolving within one
// tradition returns ref unchanged. A pair with no compiled table fails with
// a *NoMappingPathError.
func (r *Resolver) Resolve(from, to v11n.Tradition, ref v11n.VerseRange) (Result, error) {
	if err := ref.Validate(); err != nil {
		return Result{}, err
	}
	if ref.Tradition() != from {
		return Result{}, verrors.NewValidation("reference",
			fmt.Sprintf("%s is in %s, not %s", ref, ref.Tradition(), from))
	}
	if from == to {
		return unique(ref), nil
	}

	if t, ok := r.tables.Table(mapping.Pair{From: from, To: to}); ok {
		return Resolve(t, ref), nil
	}
	for _, mid := range r.via {
		if mid == from || mid == to {
			continue
		}
		first, ok := r.tables.Table(mapping.Pair{From: from, To: mid})
		if !ok {
			continue
		}
		second, ok := r.tables.Table(mapping.Pair{From: mid, To: to})
		if !ok {
			continue
		}
		return chain(first, second, ref), nil
	}
	return Result{}, &verrors.NoMappingPathError{From: string(from), To: string(to)}
}

// chain resolves ref through two tables. Every target of the first hop is
// resolved again; the hop results are combined.
func chain(first, second *mapping.Table, ref v11n.VerseRange) Result {
	hop := Resolve(first, ref)
	if hop.Outcome == Unmapped {
		return hop
	}

	var (
		candidates []v11n.VerseRange
		gaps       []v11n.VerseRange
		ambiguous  = hop.Outcome == Ambiguous
	)
	for _, mid := range hop.Targets() {
		res := Resolve(second, mid)
		gaps = append(gaps, res.Gaps...)
		switch res.Outcome {
		case Unique:
			candidates = appendUnique(candidates, res.Range)
		case Ambiguous:
			ambiguous = true
			for _, c := range res.Candidates {
				candidates = appendUnique(candidates, c)
			}
		}
	}

	switch {
	case len(candidates) == 0:
		return unmapped([]v11n.VerseRange{ref})
	case !ambiguous && len(candidates) == 1 && len(gaps) == 0:
		return unique(candidates[0])
	}
	// Gaps of the second hop are in the intermediate tradition; only the
	// first hop's gaps name source verses.
	return Result{Outcome: Ambiguous, Candidates: candidates, Gaps: hop.Gaps}
}
