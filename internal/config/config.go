// Package config holds versemap settings.
//
// Precedence (highest to lowest): CLI flags > env vars > config file >
// defaults. Environment variables use the VERSEMAP_ prefix with
// underscores for nesting:
//
//	VERSEMAP_STORE_BACKEND=sqlite
//	VERSEMAP_STORE_PATH=tables.db
//	VERSEMAP_LOG_LEVEL=debug
//	VERSEMAP_ENGINE_JOBS=8
package config

import (
	"fmt"
	"runtime"
	"slices"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
	"github.com/FocuswithJustin/versemap/internal/logging"
)

// Config is the complete versemap configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`
	Corpus  CorpusConfig  `mapstructure:"corpus"  yaml:"corpus"`
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Store   StoreConfig   `mapstructure:"store"   yaml:"store"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LogConfig provides typical settings for application logs.
type LogConfig struct {
	// Level of logging: 'debug', 'info', 'warn' or 'error'.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is 'json' or 'text'.
	Format string `mapstructure:"format" yaml:"format"`
}

// CorpusConfig locates the inputs of a rebuild.
type CorpusConfig struct {
	// Path is the rule corpus file.
	Path string `mapstructure:"path" yaml:"path"`
	// Canon is a YAML book list replacing the built-in canon. Empty means
	// the built-in canon.
	Canon string `mapstructure:"canon" yaml:"canon"`
}

// EngineConfig tunes rebuilds and resolution.
type EngineConfig struct {
	// Jobs is the number of tradition pairs compiled concurrently.
	Jobs int `mapstructure:"jobs" yaml:"jobs"`
	// Chaining lists traditions a resolution may pass through when a pair
	// has no table of its own. Empty disables chaining.
	Chaining []string `mapstructure:"chaining" yaml:"chaining"`
	// Pairs are compiled on every rebuild even without corpus rows,
	// written "From->To".
	Pairs []string `mapstructure:"pairs" yaml:"pairs"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is 'memory', 'sqlite', 'postgres' or 'file'.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the SQLite database file or the file store directory.
	Path string `mapstructure:"path" yaml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// MaxConns caps the PostgreSQL pool. Zero keeps the pgx default.
	MaxConns int32 `mapstructure:"max_conns" yaml:"max_conns"`
	// CacheTables bounds the read cache in front of the backend, and the
	// memory backend itself. Zero means unlimited.
	CacheTables int `mapstructure:"cache_tables" yaml:"cache_tables"`
	// CacheBytes bounds the same cache by encoded table size.
	CacheBytes int64 `mapstructure:"cache_bytes" yaml:"cache_bytes"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Textfile receives the metrics in Prometheus text format when a
	// command finishes, for collection by a node exporter.
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

var backends = []string{"memory", "sqlite", "postgres", "file"}

// Defaults returns a Config with sensible default values. It is always
// valid.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			Jobs: runtime.NumCPU(),
		},
		Store: StoreConfig{
			Backend:     "memory",
			CacheTables: 64,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return verrors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return verrors.NewValidation("log.format", err.Error())
	}
	if c.Engine.Jobs < 1 {
		return verrors.NewValidation("engine.jobs", fmt.Sprintf("must be at least 1, got %d", c.Engine.Jobs))
	}
	if _, err := c.ChainingTraditions(); err != nil {
		return err
	}
	if _, err := c.ExtraPairs(); err != nil {
		return err
	}

	s := c.Store
	if !slices.Contains(backends, s.Backend) {
		return verrors.NewValidation("store.backend", fmt.Sprintf("unknown backend %q, want one of %v", s.Backend, backends))
	}
	switch {
	case (s.Backend == "sqlite" || s.Backend == "file") && s.Path == "":
		return verrors.NewValidation("store.path", fmt.Sprintf("required for the %s backend", s.Backend))
	case s.Backend == "postgres" && s.DSN == "":
		return verrors.NewValidation("store.dsn", "required for the postgres backend")
	case s.CacheTables < 0:
		return verrors.NewValidation("store.cache_tables", "must not be negative")
	case s.CacheBytes < 0:
		return verrors.NewValidation("store.cache_bytes", "must not be negative")
	case s.MaxConns < 0:
		return verrors.NewValidation("store.max_conns", "must not be negative")
	}
	return nil
}

// ChainingTraditions parses Engine.Chaining.
func (c *Config) ChainingTraditions() ([]v11n.Tradition, error) {
	var out []v11n.Tradition
	for _, name := range c.Engine.Chaining {
		t, ok := v11n.ParseTradition(name)
		if !ok {
			return nil, verrors.NewValidation("engine.chaining", fmt.Sprintf("unknown tradition %q", name))
		}
		out = append(out, t)
	}
	return out, nil
}

// ExtraPairs parses Engine.Pairs.
func (c *Config) ExtraPairs() ([]v11n.Pair, error) {
	var out []v11n.Pair
	for _, s := range c.Engine.Pairs {
		p, err := ParsePair(s)
		if err != nil {
			return nil, verrors.NewValidation("engine.pairs", err.Error())
		}
		out = append(out, p)
	}
	return out, nil
}

// ParsePair parses "From->To", accepting tradition aliases.
func ParsePair(s string) (v11n.Pair, error) {
	from, to, ok := cutArrow(s)
	if !ok {
		return v11n.Pair{}, fmt.Errorf("pair %q is not written From->To", s)
	}
	f, ok := v11n.ParseTradition(from)
	if !ok {
		return v11n.Pair{}, fmt.Errorf("unknown tradition %q in pair %q", from, s)
	}
	t, ok := v11n.ParseTradition(to)
	if !ok {
		return v11n.Pair{}, fmt.Errorf("unknown tradition %q in pair %q", to, s)
	}
	if f == t {
		return v11n.Pair{}, fmt.Errorf("pair %q maps a tradition to itself", s)
	}
	return v11n.Pair{From: f, To: t}, nil
}
