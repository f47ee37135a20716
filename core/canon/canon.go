// Package canon provides the book metadata consumed by the mapping engine:
// per-tradition book names, canon membership, chapter counts and verse-zero
// conventions.
//
// A Canon is loaded from YAML. The embedded default covers the Protestant
// canon, the deuterocanon and the New Testament.
package canon

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

//go:embed default.yaml
var defaultYAML []byte

// File is the YAML document layout.
type File struct {
	Traditions []TraditionSpec `yaml:"traditions"`
	Books      []BookSpec      `yaml:"books"`
}

// TraditionSpec configures one tradition.
type TraditionSpec struct {
	Name      string `yaml:"name"`
	VerseZero bool   `yaml:"verse_zero"`
}

// BookSpec describes one book.
type BookSpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Chapters int      `yaml:"chapters"`
	Aliases  []string `yaml:"aliases,omitempty"`

	// In lists the traditions that include the book. Empty means all.
	In []string `yaml:"in,omitempty"`

	ChapterCounts map[string]int      `yaml:"chapter_counts,omitempty"`
	Names         map[string][]string `yaml:"names,omitempty"`
}

// Book is a resolved book entry.
type Book struct {
	ID       v11n.BookID
	Name     string
	Chapters int

	in       map[v11n.Tradition]bool
	chapters map[v11n.Tradition]int
}

// Canon answers book questions for every tradition. It is immutable after
// loading and safe for concurrent use.
type Canon struct {
	order     []*Book
	byID      map[v11n.BookID]*Book
	shared    map[string]v11n.BookID
	local     map[v11n.Tradition]map[string]v11n.BookID
	verseZero map[v11n.Tradition]bool
}

var (
	defaultOnce  sync.Once
	defaultCanon *Canon
)

// Default returns the canon built from the embedded default.yaml.
func Default() *Canon {
	defaultOnce.Do(func() {
		c, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("canon: embedded default.yaml is invalid: %v", err))
		}
		defaultCanon = c
	})
	return defaultCanon
}

// DefaultYAML returns a copy of the embedded default canon document.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// LoadFile reads a canon from a YAML file.
func LoadFile(path string) (*Canon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.NewIO("read", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load reads a canon from r.
func Load(r io.Reader) (*Canon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, verrors.NewIO("read", "", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML canon document.
func Parse(data []byte) (*Canon, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, verrors.NewParse("YAML", "", err.Error())
	}
	return New(f)
}

// New builds a canon from a decoded document. Every name must resolve to
// exactly one book per tradition.
func New(f File) (*Canon, error) {
	c := &Canon{
		byID:      make(map[v11n.BookID]*Book, len(f.Books)),
		shared:    make(map[string]v11n.BookID),
		local:     make(map[v11n.Tradition]map[string]v11n.BookID),
		verseZero: make(map[v11n.Tradition]bool),
	}

	for _, ts := range f.Traditions {
		t, err := parseTradition(ts.Name)
		if err != nil {
			return nil, err
		}
		c.verseZero[t] = ts.VerseZero
	}

	for i, bs := range f.Books {
		book, err := c.addBook(bs)
		if err != nil {
			return nil, fmt.Errorf("book %d (%s): %w", i+1, bs.ID, err)
		}
		c.order = append(c.order, book)
	}
	return c, nil
}

func (c *Canon) addBook(bs BookSpec) (*Book, error) {
	if bs.ID == "" {
		return nil, verrors.NewValidation("id", "must not be empty")
	}
	id := v11n.BookID(bs.ID)
	if _, dup := c.byID[id]; dup {
		return nil, verrors.NewValidation("id", "duplicate book id")
	}
	if bs.Chapters < 1 {
		return nil, verrors.NewValidation("chapters", fmt.Sprintf("%d must be at least 1", bs.Chapters))
	}

	book := &Book{
		ID:       id,
		Name:     bs.Name,
		Chapters: bs.Chapters,
		in:       make(map[v11n.Tradition]bool),
		chapters: make(map[v11n.Tradition]int),
	}
	if len(bs.In) == 0 {
		for _, t := range v11n.Traditions() {
			book.in[t] = true
		}
	}
	for _, name := range bs.In {
		t, err := parseTradition(name)
		if err != nil {
			return nil, err
		}
		book.in[t] = true
	}
	for name, n := range bs.ChapterCounts {
		t, err := parseTradition(name)
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, verrors.NewValidation("chapter_counts", fmt.Sprintf("%s: %d must be at least 1", t, n))
		}
		book.chapters[t] = n
	}

	shared := append([]string{bs.ID, bs.Name}, bs.Aliases...)
	for _, name := range shared {
		if err := register(c.shared, name, id); err != nil {
			return nil, err
		}
	}
	for tname, names := range bs.Names {
		t, err := parseTradition(tname)
		if err != nil {
			return nil, err
		}
		if c.local[t] == nil {
			c.local[t] = make(map[string]v11n.BookID)
		}
		for _, name := range names {
			if err := register(c.local[t], name, id); err != nil {
				return nil, fmt.Errorf("%s: %w", t, err)
			}
		}
	}

	c.byID[id] = book
	return book, nil
}

func register(m map[string]v11n.BookID, name string, id v11n.BookID) error {
	key := normalizeName(name)
	if key == "" {
		return nil
	}
	if prev, ok := m[key]; ok && prev != id {
		return verrors.NewValidation("aliases", fmt.Sprintf("%q already names %s", name, prev))
	}
	m[key] = id
	return nil
}

func parseTradition(name string) (v11n.Tradition, error) {
	t, ok := v11n.ParseTradition(name)
	if !ok {
		return "", fmt.Errorf("%q: %w", name, verrors.ErrUnknownTradition)
	}
	return t, nil
}

// normalizeName lowercases a book name and drops spaces, dots and
// underscores, so "1 John", "1john" and "1_John." compare equal.
func normalizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '\t', '.', '_':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ResolveBook maps a book name in tradition t to its canonical id.
// Tradition-specific names take precedence over shared aliases.
func (c *Canon) ResolveBook(t v11n.Tradition, name string) (v11n.BookID, bool) {
	key := normalizeName(name)
	if key == "" {
		return "", false
	}
	if id, ok := c.local[t][key]; ok {
		return id, true
	}
	id, ok := c.shared[key]
	return id, ok
}

// UsesVerseZero reports whether the tradition numbers superscriptions as
// verse 0.
func (c *Canon) UsesVerseZero(t v11n.Tradition) bool {
	return c.verseZero[t]
}

// Includes reports whether the tradition's canon contains the book.
func (c *Canon) Includes(t v11n.Tradition, book v11n.BookID) bool {
	b, ok := c.byID[book]
	return ok && b.in[t]
}

// ChapterCount returns the number of chapters of the book in tradition t.
func (c *Canon) ChapterCount(t v11n.Tradition, book v11n.BookID) (int, bool) {
	b, ok := c.byID[book]
	if !ok {
		return 0, false
	}
	if n, ok := b.chapters[t]; ok {
		return n, true
	}
	return b.Chapters, true
}

// Book returns the entry for id.
func (c *Canon) Book(id v11n.BookID) (*Book, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// Books returns the books included by tradition t in canonical order. An
// empty tradition returns every book.
func (c *Canon) Books(t v11n.Tradition) []v11n.BookID {
	out := make([]v11n.BookID, 0, len(c.order))
	for _, b := range c.order {
		if t == "" || b.in[t] {
			out = append(out, b.ID)
		}
	}
	return out
}
