package store

import (
	"context"

	"github.com/FocuswithJustin/versemap/core/cache"
	"github.com/FocuswithJustin/versemap/core/mapping"
)

// Cached serves repeated loads of the same direction from an LRU in front
// of another store.
type Cached struct {
	Store
	tables *cache.TableCache
}

// WithCache wraps s with a read-through table cache.
func WithCache(s Store, maxTables int, maxBytes int64) *Cached {
	return &Cached{Store: s, tables: cache.NewTableCache(maxTables, maxBytes)}
}

// SaveTable writes through and refreshes the cached copy.
func (c *Cached) SaveTable(ctx context.Context, t *mapping.Table) error {
	if err := c.Store.SaveTable(ctx, t); err != nil {
		c.tables.Remove(t.Pair())
		return err
	}
	c.tables.Put(t)
	return nil
}

// LoadTable returns the cached table or loads it from the wrapped store.
func (c *Cached) LoadTable(ctx context.Context, p mapping.Pair) (*mapping.Table, error) {
	if t, ok := c.tables.Get(p); ok {
		return t, nil
	}
	t, err := c.Store.LoadTable(ctx, p)
	if err != nil {
		return nil, err
	}
	c.tables.Put(t)
	return t, nil
}

// Stats returns the cache statistics.
func (c *Cached) Stats() cache.Stats { return c.tables.Stats() }

// Close clears the cache and closes the wrapped store.
func (c *Cached) Close() error {
	c.tables.Clear()
	return c.Store.Close()
}
