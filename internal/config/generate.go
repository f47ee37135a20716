package config

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const header = `# versemap configuration
#
# Precedence (highest to lowest):
#   1. CLI flags
#   2. Environment variables (VERSEMAP_*, e.g. VERSEMAP_STORE_BACKEND)
#   3. This file
#   4. Built-in defaults
#
# store.backend is one of: memory, sqlite, postgres, file.
# engine.pairs lists "From->To" pairs compiled even without corpus rows.

`

// Write encodes cfg as a documented YAML file.
func Write(w io.Writer, cfg *Config) error {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
