package tracer

import (
	"context"
	"sync"

	"github.com/jward/ftracer/internal/diag"
	"github.com/jward/ftracer/internal/indexer"
	"github.com/jward/ftracer/internal/scope"
)

// IndexCache supplies the scope index of a module path.
type IndexCache interface {
	Get(ctx context.Context, path string) (*scope.Index, error)
}

// BuildFunc builds the index of one module.
type BuildFunc func(ctx context.Context, path string) (*scope.Index, error)

// IndexerBuild returns a BuildFunc that parses the file on disk and logs
// skipped assignment targets at debug level.
func IndexerBuild(log *diag.Logger) BuildFunc {
	return func(ctx context.Context, path string) (*scope.Index, error) {
		res, err := indexer.Index(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, s := range res.Skipped {
			log.Debugf("index %s: skipped %s", path, s)
		}
		return res.Index, nil
	}
}

// MemoryCache builds each path at most once and keeps the result, error
// included, for its lifetime. It never evicts, which suits one trace
// session; long-lived processes should use a cache that checks content
// hashes.
type MemoryCache struct {
	build BuildFunc

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once  sync.Once
	index *scope.Index
	err   error
}

// NewMemoryCache returns a cache that builds missing entries with build.
func NewMemoryCache(build BuildFunc) *MemoryCache {
	return &MemoryCache{build: build, entries: make(map[string]*cacheEntry)}
}

// Get returns the index for path, building it on first use. Concurrent
// callers for the same path share one build.
func (c *MemoryCache) Get(ctx context.Context, path string) (*scope.Index, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &cacheEntry{}
		c.entries[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.index, e.err = c.build(ctx, path)
	})
	return e.index, e.err
}

// Len returns the number of cached paths.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
