package ftracer

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/jward/ftracer/internal/indexer"
)

// IndexReport summarizes an IndexFiles run.
type IndexReport struct {
	Indexed     int
	Unchanged   int
	Unsupported []string
	Failed      []string
	Skipped     []indexer.Skipped
	Duration    time.Duration
}

// workItem holds everything a parsing worker needs.
type workItem struct {
	path string
	lang string
	src  []byte
}

type workResult struct {
	item workItem
	res  *indexer.Result
	err  error
}

// IndexFiles brings the index database up to date for paths in three phases:
//
//	Phase A (serial):   Hash check against the stored index, skip unchanged files.
//	Phase B (parallel): Parse and build scope indices with a worker pool.
//	Phase C (serial):   Save each index to SQLite in input order.
//
// Errors on individual files are collected; processing continues and the
// first error is returned wrapped with the error count.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) (*IndexReport, error) {
	start := time.Now()
	report := &IndexReport{}
	var errs []error

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	queued := make(map[string]bool, len(paths))
	for _, p := range paths {
		item, skip, err := e.prepareFile(p, queued, report)
		if err != nil {
			report.Failed = append(report.Failed, p)
			errs = append(errs, fmt.Errorf("prepare %s: %w", p, err))
			continue
		}
		if !skip {
			items = append(items, item)
		}
	}

	// ---- Phase B: Parallel parsing ----
	results := e.parseAll(ctx, items)

	// ---- Phase C: Serial commit ----
	for _, r := range results {
		if r.err != nil {
			report.Failed = append(report.Failed, r.item.path)
			errs = append(errs, fmt.Errorf("index %s: %w", r.item.path, r.err))
			continue
		}
		if err := e.store.SaveIndex(r.res.Index, r.item.lang); err != nil {
			report.Failed = append(report.Failed, r.item.path)
			errs = append(errs, fmt.Errorf("save %s: %w", r.item.path, err))
			continue
		}
		report.Indexed++
		report.Skipped = append(report.Skipped, r.res.Skipped...)
		e.log.Debugf("indexed %s: %d scope(s)", r.item.path, r.res.Index.Len())
	}

	report.Duration = time.Since(start)
	if len(errs) > 0 {
		return report, fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return report, nil
}

// prepareFile reads path and reports whether it can be skipped: its stored
// index is current, or another argument already names the same file.
func (e *Engine) prepareFile(path string, queued map[string]bool, report *IndexReport) (workItem, bool, error) {
	abs, err := indexer.NormalizePath(path)
	if err != nil {
		return workItem{}, false, err
	}
	if queued[abs] {
		return workItem{}, true, nil
	}
	queued[abs] = true
	lang, ok := indexer.LanguageForFile(abs)
	if !ok {
		report.Unsupported = append(report.Unsupported, abs)
		return workItem{}, true, nil
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}

	existing, err := e.store.FileByPath(abs)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == indexer.HashSource(src) {
		report.Unchanged++
		return workItem{}, true, nil
	}
	return workItem{path: abs, lang: lang, src: src}, false, nil
}

// parseAll indexes items on a bounded worker pool and returns the results in
// item order.
func (e *Engine) parseAll(ctx context.Context, items []workItem) []workResult {
	results := make([]workResult, len(items))
	if len(items) == 0 {
		return results
	}

	numWorkers := e.parallel
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(items))

	workCh := make(chan int, len(items))
	for i := range items {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				item := items[i]
				if err := ctx.Err(); err != nil {
					results[i] = workResult{item: item, err: err}
					continue
				}
				res, err := indexer.IndexSource(ctx, item.path, item.src)
				results[i] = workResult{item: item, res: res, err: err}
			}
		}()
	}
	wg.Wait()
	return results
}
