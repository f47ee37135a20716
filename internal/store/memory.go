package store

import (
	"context"
	"sync"
	"time"

	"github.com/FocuswithJustin/versemap/core/cache"
	"github.com/FocuswithJustin/versemap/core/mapping"
)

// Memory keeps tables in a bounded LRU. Tables evicted by the bounds are
// gone; Memory suits tests and short-lived processes.
type Memory struct {
	tables *cache.TableCache

	mu    sync.Mutex
	infos map[mapping.Pair]TableInfo
}

// NewMemory creates an in-memory store. Zero bounds mean unlimited.
func NewMemory(maxTables int, maxBytes int64) *Memory {
	return &Memory{
		tables: cache.NewTableCache(maxTables, maxBytes),
		infos:  make(map[mapping.Pair]TableInfo),
	}
}

// SaveTable stores t under its direction.
func (s *Memory) SaveTable(ctx context.Context, t *mapping.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fp, err := t.Fingerprint()
	if err != nil {
		return err
	}
	s.tables.Put(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[t.Pair()] = TableInfo{Pair: t.Pair(), Entries: t.Len(), Fingerprint: fp, Saved: time.Now().UTC()}
	return nil
}

// LoadTable returns the stored table for one direction.
func (s *Memory) LoadTable(ctx context.Context, p mapping.Pair) (*mapping.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.tables.Get(p)
	if !ok {
		return nil, notFound(p)
	}
	return t, nil
}

// Tables lists the tables still held.
func (s *Memory) Tables(ctx context.Context) ([]TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []TableInfo
	for p, info := range s.infos {
		if !s.tables.Contains(p) {
			delete(s.infos, p)
			continue
		}
		infos = append(infos, info)
	}
	sortInfos(infos)
	return infos, nil
}

// Stats returns the cache statistics.
func (s *Memory) Stats() cache.Stats { return s.tables.Stats() }

// Close drops every table.
func (s *Memory) Close() error {
	s.tables.Clear()
	s.mu.Lock()
	clear(s.infos)
	s.mu.Unlock()
	return nil
}
