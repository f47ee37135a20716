package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VERSEMAP"

// Load reads configuration from a YAML file, applies VERSEMAP_* environment
// overrides and returns a validated Config. If path is empty, it searches
// default locations:
//   - ./versemap.yaml
//   - ~/.config/versemap/versemap.yaml
//
// A missing file in the default locations is not an error; an explicit
// path that cannot be read is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("versemap")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "versemap"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so that environment variables are seen
// by Unmarshal even when the file does not mention them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("corpus.path", d.Corpus.Path)
	v.SetDefault("corpus.canon", d.Corpus.Canon)
	v.SetDefault("engine.jobs", d.Engine.Jobs)
	v.SetDefault("engine.chaining", d.Engine.Chaining)
	v.SetDefault("engine.pairs", d.Engine.Pairs)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.max_conns", d.Store.MaxConns)
	v.SetDefault("store.cache_tables", d.Store.CacheTables)
	v.SetDefault("store.cache_bytes", d.Store.CacheBytes)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

func cutArrow(s string) (from, to string, ok bool) {
	from, to, ok = strings.Cut(s, "->")
	return strings.TrimSpace(from), strings.TrimSpace(to), ok
}
