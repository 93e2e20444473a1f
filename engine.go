package ftracer

import (
	"context"
	"fmt"

	"github.com/jward/ftracer/internal/diag"
	"github.com/jward/ftracer/internal/indexer"
	"github.com/jward/ftracer/internal/store"
	"github.com/jward/ftracer/internal/tracer"
)

// Engine owns the index database and hands out tracers that share its
// index cache.
type Engine struct {
	store *store.Store
	cache *store.Cache
	log   *diag.Logger

	// parallel bounds indexing workers; 0 means one per CPU.
	parallel int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostic logger. Default discards.
func WithLogger(l *diag.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithParallel bounds the number of modules parsed at once by IndexFiles and
// by tracers arming. Zero or less means one per CPU for IndexFiles and one
// per module when arming.
func WithParallel(n int) Option {
	return func(e *Engine) {
		e.parallel = n
	}
}

// New creates an Engine backed by a SQLite index database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("ftracer: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("ftracer: migrate: %w", err)
	}

	e := &Engine{store: s, log: diag.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = store.NewCache(s, e.log)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// CacheStats reports how Index calls were answered.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Index returns the scope index for the current content of path.
func (e *Engine) Index(ctx context.Context, path string) (*Index, error) {
	abs, err := indexer.NormalizePath(path)
	if err != nil {
		return nil, fmt.Errorf("ftracer: %s: %w", path, err)
	}
	return e.cache.Get(ctx, abs)
}

// NewTracer returns an idle tracer watching paths that indexes through the
// Engine's cache. opts are applied after the Engine's defaults.
func (e *Engine) NewTracer(paths []string, cassettePath string, opts ...TracerOption) (*Tracer, error) {
	all := []tracer.Option{
		tracer.WithLogger(e.log),
		tracer.WithCache(e.cache),
		tracer.WithParallelism(e.parallel),
	}
	return tracer.New(paths, cassettePath, append(all, opts...)...)
}

// Query returns a QueryBuilder over the Engine's indices.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{engine: e}
}
