// Package engine compiles rule corpora into mapping tables and serves
// resolutions from the most recently published set.
//
// A rebuild normalizes and compiles every affected tradition pair off to
// the side, then publishes a new Snapshot with a single atomic store.
// Readers always see either the previous snapshot or the new one. A pair
// that fails to compile keeps its previous tables; a cancelled rebuild
// publishes nothing.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
	"github.com/FocuswithJustin/versemap/core/normalize"
	"github.com/FocuswithJustin/versemap/core/resolve"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
	"github.com/FocuswithJustin/versemap/internal/logging"
)

// Rebuild results, used as metric labels.
const (
	resultPublished = "published"
	resultPartial   = "partial"
	resultCanceled  = "canceled"
)

// buildPair is a variable to allow testing of builder failures.
var buildPair = mapping.BuildPair

// Store persists compiled tables.
type Store interface {
	SaveTable(ctx context.Context, t *mapping.Table) error
	LoadTable(ctx context.Context, pair mapping.Pair) (*mapping.Table, error)
}

// Snapshot is an immutable set of tables published by one rebuild or load.
type Snapshot struct {
	// ID identifies the generation that published the snapshot.
	ID uuid.UUID

	// Built is when the snapshot was published.
	Built time.Time

	tables resolve.Tables
}

// Table returns the table for one direction.
func (s *Snapshot) Table(p mapping.Pair) (*mapping.Table, bool) {
	return s.tables.Table(p)
}

// Pairs returns the directions with tables, sorted.
func (s *Snapshot) Pairs() []mapping.Pair {
	pairs := slices.Collect(maps.Keys(s.tables))
	slices.SortFunc(pairs, comparePairs)
	return pairs
}

// Len returns the number of tables.
func (s *Snapshot) Len() int { return len(s.tables) }

func comparePairs(a, b mapping.Pair) int {
	if c := cmp.Compare(a.From, b.From); c != 0 {
		return c
	}
	return cmp.Compare(a.To, b.To)
}

// PairReport is the outcome of rebuilding one tradition pair.
type PairReport struct {
	// Pair is the direction the pair was normalized in: the direction of
	// its first corpus row.
	Pair mapping.Pair

	// Normalize is the normalization report, nil if the pair was not
	// reached.
	Normalize *normalize.Report

	// Entries is the size of the forward table.
	Entries int

	// Err is set when the pair kept its previous tables.
	Err error
}

// RebuildReport is the outcome of a rebuild.
type RebuildReport struct {
	Generation uuid.UUID
	Pairs      []PairReport
	Duration   time.Duration
}

// Failed returns the pairs that kept their previous tables.
func (r *RebuildReport) Failed() []PairReport {
	var out []PairReport
	for _, p := range r.Pairs {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// Engine owns the published snapshot. It is safe for concurrent use;
// rebuilds and loads are serialized, resolutions never block.
type Engine struct {
	canon   normalize.Canon
	store   Store
	metrics *Metrics
	jobs    int
	logger  *slog.Logger
	via     []v11n.Tradition

	mu      sync.Mutex // serializes publishers
	current atomic.Pointer[Snapshot]
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence adapter.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithJobs limits how many pairs are compiled at once.
func WithJobs(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.jobs = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithChaining lets resolutions go through an intermediate tradition when a
// pair has no table of its own.
func WithChaining(via ...v11n.Tradition) Option {
	return func(e *Engine) { e.via = append(e.via, via...) }
}

// New creates an engine with an empty snapshot. canon supplies the book
// metadata used to fill uncovered chapters; it may be nil.
func New(canon normalize.Canon, opts ...Option) *Engine {
	e := &Engine{
		canon:  canon,
		jobs:   4,
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.current.Store(&Snapshot{ID: uuid.New(), Built: time.Now(), tables: resolve.Tables{}})
	return e
}

// Snapshot returns the published snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// group is the rules of one unordered pair, in corpus order.
type group struct {
	pair  mapping.Pair
	rules []v11n.MappingRule
}

// groupRules splits rules by unordered pair. Each group is oriented like
// its first rule; groups are ordered by first appearance. Extra pairs with
// no rules get empty groups so that they are compiled from the canon alone.
func groupRules(rules []v11n.MappingRule, extra []mapping.Pair) []*group {
	var (
		groups []*group
		index  = make(map[mapping.Pair]*group)
	)
	add := func(p mapping.Pair) *group {
		key := p.Unordered()
		if g, ok := index[key]; ok {
			return g
		}
		g := &group{pair: p}
		index[key] = g
		groups = append(groups, g)
		return g
	}
	for _, r := range rules {
		g := add(r.Pair())
		g.rules = append(g.rules, r)
	}
	for _, p := range extra {
		add(p)
	}
	return groups
}

type compiled struct {
	report           PairReport
	forward, reverse *mapping.Table
}

// Rebuild compiles every tradition pair that has rules, plus any extra
// pairs, and publishes the result. Pairs not mentioned keep their current
// tables. Cancellation is checked between pairs; a cancelled rebuild
// returns the context error and publishes nothing.
func (e *Engine) Rebuild(ctx context.Context, rules []v11n.MappingRule, extra ...mapping.Pair) (*RebuildReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	generation := uuid.New()
	ctx = logging.WithRunID(ctx, generation.String())

	groups := groupRules(rules, extra)
	results := make([]compiled, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.jobs)
	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.compile(grp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.recordRebuild(resultCanceled, time.Since(start), 0)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		e.metrics.recordRebuild(resultCanceled, time.Since(start), 0)
		return nil, err
	}

	prev := e.current.Load()
	tables := maps.Clone(prev.tables)
	report := &RebuildReport{Generation: generation}
	for _, res := range results {
		report.Pairs = append(report.Pairs, res.report)
		if res.report.Err != nil {
			logging.PairFailed(ctx, res.report.Pair.String(), res.report.Err)
			continue
		}
		tables.Add(res.forward)
		tables.Add(res.reverse)
		logging.TablePublished(ctx, res.report.Pair.String(), res.report.Entries, generation.String())
	}

	e.current.Store(&Snapshot{ID: generation, Built: time.Now(), tables: tables})
	report.Duration = time.Since(start)

	result := resultPublished
	if len(report.Failed()) > 0 {
		result = resultPartial
	}
	e.metrics.recordRebuild(result, report.Duration, len(tables))
	e.logger.Info("rebuild_complete",
		"generation", generation.String(),
		"pairs", len(groups),
		"failed", len(report.Failed()),
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// compile runs one pair through normalization and the builder.
func (e *Engine) compile(g *group) compiled {
	rep := normalize.Normalize(g.pair, g.rules, e.canon)
	e.metrics.recordNormalize(rep)
	for _, ce := range rep.Errors {
		logging.RowRejected(ce.Row, "", ce, "pair", g.pair.String())
	}

	out := compiled{report: PairReport{Pair: g.pair, Normalize: rep}}
	fwd, rev, err := buildPair(g.pair, rep.Rules)
	if err != nil {
		out.report.Err = err
		return out
	}
	out.forward, out.reverse = fwd, rev
	out.report.Entries = fwd.Len()
	return out
}

// Resolve maps ref between two traditions using the published snapshot.
func (e *Engine) Resolve(ctx context.Context, from, to v11n.Tradition, ref v11n.VerseRange) (resolve.Result, error) {
	if err := ctx.Err(); err != nil {
		return resolve.Result{}, err
	}
	snap := e.current.Load()
	res, err := resolve.New(snap, resolve.WithChaining(e.via...)).Resolve(from, to, ref)
	e.metrics.recordResolution(res, err)
	return res, err
}

// Table returns the published table for one direction.
func (e *Engine) Table(from, to v11n.Tradition) (*mapping.Table, error) {
	t, ok := e.current.Load().Table(mapping.Pair{From: from, To: to})
	if !ok {
		return nil, &verrors.NoMappingPathError{From: string(from), To: string(to)}
	}
	return t, nil
}

// Export yields every entry of the published table for one direction.
func (e *Engine) Export(from, to v11n.Tradition) (iter.Seq[mapping.Entry], error) {
	t, err := e.Table(from, to)
	if err != nil {
		return nil, err
	}
	return t.Entries(), nil
}

// Persist saves every published table through the store.
func (e *Engine) Persist(ctx context.Context) error {
	if e.store == nil {
		return verrors.NewUnsupported("persist", "no store configured")
	}
	snap := e.current.Load()
	for _, p := range snap.Pairs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, _ := snap.Table(p)
		if err := e.store.SaveTable(ctx, t); err != nil {
			return fmt.Errorf("failed to save table %s: %w", p, err)
		}
	}
	e.logger.Info("tables_persisted", "tables", snap.Len(), "generation", snap.ID.String())
	return nil
}

// Load reads tables from the store, re-validates them and publishes them
// alongside the current snapshot. A direction whose reverse is not loaded
// gets it derived. Nothing is published if any table fails.
func (e *Engine) Load(ctx context.Context, pairs ...mapping.Pair) error {
	if e.store == nil {
		return verrors.NewUnsupported("load", "no store configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := resolve.Tables{}
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := e.store.LoadTable(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to load table %s: %w", p, err)
		}
		if t.Pair() != p {
			return verrors.NewValidation("pair", fmt.Sprintf("store returned %s for %s", t.Pair(), p))
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("refusing table %s: %w", p, err)
		}
		loaded.Add(t)
	}
	for _, p := range pairs {
		if _, ok := loaded[p.Reverse()]; ok {
			continue
		}
		rev, err := mapping.Reverse(loaded[p])
		if err != nil {
			return fmt.Errorf("refusing table %s: %w", p, err)
		}
		loaded.Add(rev)
	}

	tables := maps.Clone(e.current.Load().tables)
	maps.Copy(tables, loaded)
	snap := &Snapshot{ID: uuid.New(), Built: time.Now(), tables: tables}
	e.current.Store(snap)
	e.metrics.setTables(len(tables))
	e.logger.Info("tables_loaded", "tables", len(loaded), "generation", snap.ID.String())
	return nil
}
