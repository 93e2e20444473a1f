package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jward/ftracer/internal/diag"
	"github.com/jward/ftracer/internal/indexer"
	"github.com/jward/ftracer/internal/scope"
)

// CacheStats counts where Cache answers came from.
type CacheStats struct {
	Hits   int
	Loads  int
	Builds int
}

// Cache serves scope indices from memory, then from the Store, and builds
// them with the indexer otherwise. Entries are keyed by path and only used
// while the file's sha256 matches, so edited files are re-indexed.
type Cache struct {
	store *Store
	log   *diag.Logger

	mu    sync.Mutex
	mem   map[string]*scope.Index
	stats CacheStats
}

// NewCache returns a Cache backed by s. A nil log discards.
func NewCache(s *Store, log *diag.Logger) *Cache {
	if log == nil {
		log = diag.Nop()
	}
	return &Cache{store: s, log: log, mem: make(map[string]*scope.Index)}
}

// Get returns the index for the current content of path.
func (c *Cache) Get(ctx context.Context, path string) (*scope.Index, error) {
	path, err := indexer.NormalizePath(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	lang, ok := indexer.LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("store: %s: %w", path, indexer.ErrUnsupportedLanguage)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	hash := indexer.HashSource(src)

	c.mu.Lock()
	if idx, ok := c.mem[path]; ok && idx.Hash == hash {
		c.stats.Hits++
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	idx, err := c.store.LoadIndex(path, hash)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", path, err)
	}
	if idx != nil {
		c.remember(path, idx, func(s *CacheStats) { s.Loads++ })
		c.log.Debugf("index %s: loaded from cache", path)
		return idx, nil
	}

	res, err := indexer.IndexSource(ctx, path, src)
	if err != nil {
		return nil, err
	}
	for _, s := range res.Skipped {
		c.log.Debugf("index %s: skipped %s", path, s)
	}
	if err := c.store.SaveIndex(res.Index, lang); err != nil {
		c.log.Warnf("index %s: not persisted: %v", path, err)
	}
	c.remember(path, res.Index, func(s *CacheStats) { s.Builds++ })
	c.log.Debugf("index %s: built %d scope(s)", path, res.Index.Len())
	return res.Index, nil
}

func (c *Cache) remember(path string, idx *scope.Index, count func(*CacheStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[path] = idx
	count(&c.stats)
}

// Stats returns the hit, load and build counts so far.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
