// Command versemap compiles versification rule corpora into mapping tables
// and resolves references between traditions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FocuswithJustin/versemap/core/canon"
	"github.com/FocuswithJustin/versemap/core/corpus"
	"github.com/FocuswithJustin/versemap/core/engine"
	"github.com/FocuswithJustin/versemap/core/normalize"
	"github.com/FocuswithJustin/versemap/core/resolve"
	"github.com/FocuswithJustin/versemap/core/sqlite"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
	"github.com/FocuswithJustin/versemap/internal/config"
	"github.com/FocuswithJustin/versemap/internal/logging"
	"github.com/FocuswithJustin/versemap/internal/store"
)

const version = "0.1.0"

// Globals are the flags shared by every command. Flags override the config
// file and environment.
type Globals struct {
	ConfigFile string `name:"config" short:"c" help:"Config file path" type:"path"`
	LogLevel   string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat  string `name:"log-format" help:"Log format (json, text)"`
	Store      string `name:"store" help:"Store backend (memory, sqlite, postgres, file)"`
	StorePath  string `name:"store-path" help:"SQLite database or file store directory" type:"path"`
	DSN        string `name:"dsn" help:"PostgreSQL connection string"`

	ctx context.Context `kong:"-"`
	out io.Writer       `kong:"-"`
	log io.Writer       `kong:"-"`
}

// CLI defines the command-line interface for versemap.
type CLI struct {
	Globals

	Check   CheckCmd    `cmd:"" help:"Parse and normalize a rule corpus without saving tables"`
	Compile CompileCmd  `cmd:"" help:"Compile a rule corpus and save the tables"`
	Resolve ResolveCmd  `cmd:"" help:"Map a reference from one tradition to another"`
	Export  ExportCmd   `cmd:"" help:"Print the entries of a compiled table"`
	Tables  TablesCmd   `cmd:"" help:"List saved tables"`
	Config  ConfigGroup `cmd:"" help:"Configuration file operations"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// ConfigGroup contains configuration file operations.
type ConfigGroup struct {
	Init  ConfigInitCmd  `cmd:"" help:"Write a documented default config file"`
	Canon ConfigCanonCmd `cmd:"" help:"Print the built-in canon as YAML"`
}

// app is the state shared by one command run.
type app struct {
	cfg     *config.Config
	canon   *canon.Canon
	reg     *prometheus.Registry
	metrics *engine.Metrics
	out     io.Writer
}

// setup loads configuration, applies flag overrides and initializes
// logging and metrics.
func (g *Globals) setup() (*app, error) {
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if g.Store != "" {
		cfg.Store.Backend = g.Store
	}
	if g.StorePath != "" {
		cfg.Store.Path = g.StorePath
	}
	if g.DSN != "" {
		cfg.Store.DSN = g.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after flag binding: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	logging.InitLoggerTo(g.log, level, format)

	a := &app{cfg: cfg, canon: canon.Default(), out: g.out}
	if cfg.Corpus.Canon != "" {
		if a.canon, err = canon.LoadFile(cfg.Corpus.Canon); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		a.reg = prometheus.NewRegistry()
		if a.metrics, err = engine.NewMetrics(a.reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return a, nil
}

// finish writes the metrics textfile, if configured.
func (a *app) finish() error {
	if a.reg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// corpusPath picks the corpus from the flag or the config file.
func (a *app) corpusPath(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Corpus.Path
}

// parseCorpus reads and parses a corpus file, logging every rejected row.
func (a *app) parseCorpus(path string) (*corpus.Result, error) {
	if path == "" {
		return nil, errors.New("no corpus given; pass one or set corpus.path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	start := time.Now()
	res, err := corpus.Parse(f, a.canon)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	for _, re := range res.Errors {
		logging.RowRejected(re.Row, re.Column, re, "source", path)
	}
	logging.CorpusParsed(path, res.Rows, len(res.Rules), len(res.Errors), time.Since(start))
	a.metrics.ObserveCorpus(res)
	return res, nil
}

func (a *app) newEngine(st store.Store) (*engine.Engine, error) {
	via, err := a.cfg.ChainingTraditions()
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithMetrics(a.metrics),
		engine.WithJobs(a.cfg.Engine.Jobs),
		engine.WithChaining(via...),
	}
	if st != nil {
		opts = append(opts, engine.WithStore(st))
	}
	return engine.New(a.canon, opts...), nil
}

// rebuild compiles res and the configured extra pairs.
func (a *app) rebuild(ctx context.Context, eng *engine.Engine, res *corpus.Result) (*engine.RebuildReport, error) {
	extra, err := a.cfg.ExtraPairs()
	if err != nil {
		return nil, err
	}
	return eng.Rebuild(ctx, res.Rules, extra...)
}

// tablesEngine returns an engine holding tables compiled from a corpus when
// one is given, or loaded from the store otherwise.
func (a *app) tablesEngine(ctx context.Context, corpusFlag string) (*engine.Engine, func() error, error) {
	if path := a.corpusPath(corpusFlag); path != "" {
		res, err := a.parseCorpus(path)
		if err != nil {
			return nil, nil, err
		}
		eng, err := a.newEngine(nil)
		if err != nil {
			return nil, nil, err
		}
		if _, err := a.rebuild(ctx, eng, res); err != nil {
			return nil, nil, err
		}
		return eng, func() error { return nil }, nil
	}

	st, err := store.OpenReader(ctx, a.cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	infos, err := st.Tables(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if len(infos) == 0 {
		st.Close()
		return nil, nil, fmt.Errorf("no tables in the %s store; run compile or pass --corpus", a.cfg.Store.Backend)
	}
	eng, err := a.newEngine(st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if err := eng.Load(ctx, store.Pairs(infos)...); err != nil {
		st.Close()
		return nil, nil, err
	}
	return eng, st.Close, nil
}

// CheckCmd parses and normalizes a corpus and reports what would be built.
type CheckCmd struct {
	Corpus string `arg:"" optional:"" help:"Rule corpus file (default corpus.path)" type:"existingfile"`
	Strict bool   `help:"Fail if any row or rule is rejected"`
}

func (c *CheckCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	res, err := a.parseCorpus(a.corpusPath(c.Corpus))
	if err != nil {
		return err
	}
	eng, err := a.newEngine(nil)
	if err != nil {
		return err
	}
	report, err := a.rebuild(g.ctx, eng, res)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "corpus: %s rows, %s rules, %s rejected\n",
		humanize.Comma(int64(res.Rows)), humanize.Comma(int64(len(res.Rules))), humanize.Comma(int64(len(res.Errors))))
	for _, re := range res.Errors {
		fmt.Fprintf(a.out, "  %v\n", re)
	}
	rejected := len(res.Errors)
	for _, pr := range report.Pairs {
		printPairReport(a.out, pr)
		if pr.Normalize != nil {
			rejected += len(pr.Normalize.Errors)
		}
	}

	if err := a.finish(); err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d pair(s) failed to compile", len(failed))
	}
	if c.Strict && rejected > 0 {
		return fmt.Errorf("%d row(s) or rule(s) rejected", rejected)
	}
	return nil
}

func printPairReport(w io.Writer, pr engine.PairReport) {
	if pr.Normalize == nil {
		fmt.Fprintf(w, "%s: not compiled: %v\n", pr.Pair, pr.Err)
		return
	}
	n := pr.Normalize
	fmt.Fprintf(w, "%s: %s accepted, %s trimmed, %s superseded, %s rejected, %s generated, %s entries\n",
		pr.Pair,
		humanize.Comma(int64(n.Count(normalize.Accepted))),
		humanize.Comma(int64(n.Count(normalize.Trimmed))),
		humanize.Comma(int64(n.Count(normalize.Superseded))),
		humanize.Comma(int64(n.Count(normalize.Rejected))),
		humanize.Comma(int64(n.Synthesized())),
		humanize.Comma(int64(pr.Entries)))
	for _, ce := range n.Errors {
		fmt.Fprintf(w, "  %v\n", ce)
	}
	if pr.Err != nil {
		fmt.Fprintf(w, "  failed: %v\n", pr.Err)
	}
}

// CompileCmd compiles a corpus and saves every table through the store.
type CompileCmd struct {
	Corpus string `arg:"" optional:"" help:"Rule corpus file (default corpus.path)" type:"existingfile"`
}

func (c *CompileCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	res, err := a.parseCorpus(a.corpusPath(c.Corpus))
	if err != nil {
		return err
	}
	st, err := store.Open(g.ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := a.newEngine(st)
	if err != nil {
		return err
	}
	report, err := a.rebuild(g.ctx, eng, res)
	if err != nil {
		return err
	}
	for _, pr := range report.Pairs {
		printPairReport(a.out, pr)
	}
	if err := eng.Persist(g.ctx); err != nil {
		return err
	}

	snap := eng.Snapshot()
	for _, p := range snap.Pairs() {
		t, _ := snap.Table(p)
		fp, err := t.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved %-22s %8s entries  %s\n", p, humanize.Comma(int64(t.Len())), short(fp))
	}

	if err := a.finish(); err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d pair(s) failed to compile", len(failed))
	}
	return nil
}

// ResolveCmd maps one reference.
type ResolveCmd struct {
	From   string   `required:"" help:"Tradition of the reference"`
	To     string   `required:"" help:"Tradition to map into"`
	Ref    []string `arg:"" help:"Reference, e.g. 'Ps 116:1' or Gen.31.55"`
	Corpus string   `help:"Compile this corpus instead of loading saved tables" type:"existingfile"`
	JSON   bool     `name:"json" help:"Print the result as JSON"`
}

func (c *ResolveCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	from, to, err := parseTraditions(c.From, c.To)
	if err != nil {
		return err
	}
	ref, err := v11n.ParseReference(from, strings.Join(c.Ref, " "), a.canon)
	if err != nil {
		return err
	}

	eng, closeStore, err := a.tablesEngine(g.ctx, c.Corpus)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := eng.Resolve(g.ctx, from, to, ref)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(a.out, ref, res)
	}
	return a.finish()
}

func printResult(w io.Writer, ref v11n.VerseRange, res resolve.Result) {
	fmt.Fprintf(w, "%s %s => %s\n", ref.Tradition(), ref, res)
	for _, gap := range res.Gaps {
		fmt.Fprintf(w, "  unmapped: %s\n", gap)
	}
}

// ExportCmd prints one table.
type ExportCmd struct {
	From   string `required:"" help:"Source tradition"`
	To     string `required:"" help:"Target tradition"`
	Corpus string `help:"Compile this corpus instead of loading saved tables" type:"existingfile"`
	Format string `default:"text" enum:"text,json" help:"Output format (text, json lines)"`
}

func (c *ExportCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	from, to, err := parseTraditions(c.From, c.To)
	if err != nil {
		return err
	}
	eng, closeStore, err := a.tablesEngine(g.ctx, c.Corpus)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := eng.Export(from, to)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	for e := range entries {
		if c.Format == "json" {
			if err := enc.Encode(e); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(a.out, e)
	}
	return a.finish()
}

// TablesCmd lists what the store holds.
type TablesCmd struct{}

func (c *TablesCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	st, err := store.OpenReader(g.ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.Tables(g.ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintf(a.out, "no tables in the %s store\n", a.cfg.Store.Backend)
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(a.out, "%-22s %8s entries  %s  saved %s\n",
			info.Pair, humanize.Comma(int64(info.Entries)), short(info.Fingerprint), humanize.Time(info.Saved))
	}
	return nil
}

// ConfigInitCmd writes a default config file.
type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" default:"versemap.yaml" help:"Where to write the config" type:"path"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run(g *Globals) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(c.Path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("config file already exists at %s", c.Path)
	}
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := config.Write(f, config.Defaults()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "wrote %s\n", c.Path)
	return nil
}

// ConfigCanonCmd prints the built-in canon, as a starting point for
// corpus.canon.
type ConfigCanonCmd struct{}

func (c *ConfigCanonCmd) Run(g *Globals) error {
	_, err := g.out.Write(canon.DefaultYAML())
	return err
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(g.out, "versemap version %s (sqlite: %s via %s)\n", version, info.DriverType, info.Package)
	return nil
}

// short abbreviates a fingerprint for display.
func short(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}

func parseTraditions(from, to string) (v11n.Tradition, v11n.Tradition, error) {
	f, ok := v11n.ParseTradition(from)
	if !ok {
		return "", "", fmt.Errorf("unknown tradition %q, want one of %v", from, v11n.Traditions())
	}
	t, ok := v11n.ParseTradition(to)
	if !ok {
		return "", "", fmt.Errorf("unknown tradition %q, want one of %v", to, v11n.Traditions())
	}
	return f, t, nil
}

// run parses args and runs the selected command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	cli.ctx, cli.out, cli.log = ctx, stdout, stderr

	parser, err := kong.New(&cli,
		kong.Name("versemap"),
		kong.Description("Versification mapping engine"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(&cli.Globals)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "versemap: %v\n", err)
		os.Exit(1)
	}
}
