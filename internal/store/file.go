package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	"github.com/FocuswithJustin/versemap/core/mapping"
)

// Injectable functions for testing
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
	osRename    = os.Rename
)

const (
	tableExt = ".table.xz"
	metaExt  = ".meta.json"
)

// fileMeta is the sidecar written next to each compressed table.
type fileMeta struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Version     int       `json:"format_version"`
	Entries     int       `json:"entries"`
	Fingerprint string    `json:"fingerprint"`
	Saved       time.Time `json:"saved"`
}

// File stores each table as an xz-compressed encoding in a directory, with
// a JSON sidecar recording its fingerprint. Files are replaced atomically.
type File struct {
	dir string
}

// OpenFile uses dir for table files, creating it if needed.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, verrors.NewIO("mkdir", dir, err)
	}
	return &File{dir: dir}, nil
}

func (s *File) base(p mapping.Pair) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s", p.From, p.To))
}

// SaveTable writes the table file and then its sidecar. A reader that sees
// the new table before the new sidecar fails the fingerprint check rather
// than returning mismatched data.
func (s *File) SaveTable(ctx context.Context, t *mapping.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w, err := xzNewWriter(&buf)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to compress table: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress table: %w", err)
	}

	meta, err := json.MarshalIndent(fileMeta{
		From:        string(t.Pair().From),
		To:          string(t.Pair().To),
		Version:     mapping.FormatVersion,
		Entries:     t.Len(),
		Fingerprint: mapping.Fingerprint(data),
		Saved:       time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode table metadata: %w", err)
	}

	base := s.base(t.Pair())
	if err := s.writeAtomic(base+tableExt, buf.Bytes()); err != nil {
		return err
	}
	return s.writeAtomic(base+metaExt, meta)
}

// writeAtomic writes data to a temporary file in the store directory and
// renames it over path.
func (s *File) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return verrors.NewIO("create", s.dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return verrors.NewIO("write", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return verrors.NewIO("sync", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return verrors.NewIO("close", tmp.Name(), err)
	}
	if err := osRename(tmp.Name(), path); err != nil {
		return verrors.NewIO("rename", path, err)
	}
	return nil
}

func (s *File) readMeta(path string) (fileMeta, error) {
	var meta fileMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, verrors.NewParse("table metadata", path, err.Error())
	}
	return meta, nil
}

// LoadTable reads and verifies the stored table for one direction.
func (s *File) LoadTable(ctx context.Context, p mapping.Pair) (*mapping.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := s.base(p)
	meta, err := s.readMeta(base + metaExt)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, verrors.NewIO("read", base+metaExt, err)
	}
	if meta.Version != mapping.FormatVersion {
		return nil, verrors.NewUnsupported("table format version", fmt.Sprintf("%d", meta.Version))
	}

	f, err := os.Open(base + tableExt)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, verrors.NewIO("open", base+tableExt, err)
	}
	defer f.Close()

	r, err := xzNewReader(f)
	if err != nil {
		return nil, verrors.NewParse("xz", base+tableExt, err.Error())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, verrors.NewParse("xz", base+tableExt, err.Error())
	}
	return checkFingerprint(p, data, meta.Fingerprint)
}

// Tables lists the stored tables from their sidecars.
func (s *File) Tables(ctx context.Context) ([]TableInfo, error) {
	names, err := filepath.Glob(filepath.Join(s.dir, "*"+metaExt))
	if err != nil {
		return nil, verrors.NewIO("list", s.dir, err)
	}
	var infos []TableInfo
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := s.readMeta(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(filepath.Base(name), metaExt), err)
		}
		p, ok := parsePair(meta.From, meta.To)
		if !ok {
			return nil, verrors.NewValidation("pair", fmt.Sprintf("%s lists unknown traditions %q -> %q", name, meta.From, meta.To))
		}
		infos = append(infos, TableInfo{
			Pair:        p,
			Entries:     meta.Entries,
			Fingerprint: meta.Fingerprint,
			Saved:       meta.Saved,
		})
	}
	sortInfos(infos)
	return infos, nil
}

// Dir returns the store directory.
func (s *File) Dir() string { return s.dir }

// Close is a no-op.
func (s *File) Close() error { return nil }
