// Package runtime embeds a Risor VM used to evaluate record filters. A
// filter is a Risor expression evaluated once per record with the record's
// fields bound as globals; the record is kept when the result is truthy.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/ftracer/internal/diag"
)

// Runtime evaluates filter scripts with the ftracer globals.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	log        *diag.Logger
	sources    *sourceCache
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts and resolves Risor imports from fsys instead of disk.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithScriptsDir sets the base directory for relative script paths and
// Risor imports.
func WithScriptsDir(dir string) Option {
	return func(r *Runtime) {
		r.scriptsDir = dir
	}
}

// WithLogger routes the script-visible log object to l.
func WithLogger(l *diag.Logger) Option {
	return func(r *Runtime) {
		r.log = l
	}
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		log:     diag.Nop(),
		sources: newSourceCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Eval executes Risor source with the standard globals plus extra and
// returns the value of the last expression.
func (r *Runtime) Eval(ctx context.Context, source, label string, extra map[string]any) (object.Object, error) {
	globals := r.buildGlobals(extra)

	// Overrides replace Risor builtins of the same name, such as type.
	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobalOverride(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// buildImporter returns a Risor importer for the configured script source,
// or nil when neither an fs.FS nor a scripts directory is set.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file. With an fs.FS configured the path is
// relative to its root; otherwise relative paths are joined to the scripts
// directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"log":         mustProxy(&logObject{log: r.log}),
		"source_line": makeSourceLineFn(r.sources),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// logObject provides log.Info/Warn/Error to scripts.
type logObject struct {
	log *diag.Logger
}

func (l *logObject) Info(msg string)  { l.log.Info(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg) }
func (l *logObject) Error(msg string) { l.log.Error(msg) }

// FilterInput is the record a filter decides on.
type FilterInput struct {
	Path  string
	Line  int
	Event string
	Name  string
	Type  string
	Repr  string
	ID    uint64
}

func (in FilterInput) globals() (map[string]any, error) {
	id, err := safecast.Conv[int64](in.ID)
	if err != nil {
		return nil, fmt.Errorf("runtime: id %d: %w", in.ID, err)
	}
	return map[string]any{
		"path":  object.NewString(in.Path),
		"line":  object.NewInt(int64(in.Line)),
		"event": object.NewString(in.Event),
		"name":  object.NewString(in.Name),
		"type":  object.NewString(in.Type),
		"repr":  object.NewString(in.Repr),
		"id":    object.NewInt(id),
	}, nil
}

// Filter is a compiled-on-demand record predicate.
type Filter struct {
	rt     *Runtime
	source string
	label  string
}

// Filter returns a predicate evaluating source for each record.
func (r *Runtime) Filter(source string) (*Filter, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("runtime: empty filter")
	}
	return &Filter{rt: r, source: source, label: "<filter>"}, nil
}

// LoadFilter reads a filter from a .risor script.
func (r *Runtime) LoadFilter(path string) (*Filter, error) {
	src, err := r.LoadScript(path)
	if err != nil {
		return nil, err
	}
	f, err := r.Filter(src)
	if err != nil {
		return nil, fmt.Errorf("runtime: %s: %w", path, err)
	}
	f.label = path
	return f, nil
}

// Keep evaluates the filter against in.
func (f *Filter) Keep(ctx context.Context, in FilterInput) (bool, error) {
	globals, err := in.globals()
	if err != nil {
		return false, err
	}
	result, err := f.rt.Eval(ctx, f.source, f.label, globals)
	if err != nil {
		return false, err
	}
	if result == nil {
		return false, nil
	}
	return result.IsTruthy(), nil
}

func (f *Filter) String() string {
	return f.label
}
