// Package tracer correlates live execution events with the static scope
// index of the watched modules. On each line or return event it looks up the
// names declared on the closest earlier line of the enclosing scope, resolves
// them in the live frame, and appends one record per newly seen value to a
// cassette.
//
// A Tracer moves from Idle to Armed to Closed and never back. It is driven
// synchronously by the host and holds no locks; wrap it with Synchronized if
// events can arrive from several threads.
package tracer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jward/ftracer/internal/cassette"
	"github.com/jward/ftracer/internal/diag"
	"github.com/jward/ftracer/internal/indexer"
	"github.com/jward/ftracer/internal/runtime"
	"github.com/jward/ftracer/internal/scope"
)

// State is a Tracer lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateArmed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// RecordFilter decides whether a resolved name is recorded.
type RecordFilter interface {
	Keep(ctx context.Context, in runtime.FilterInput) (bool, error)
}

type lineKey struct {
	path string
	line int
}

// Tracer is the execution correlator.
type Tracer struct {
	paths        []string
	watched      map[string]struct{}
	cassettePath string

	log    *diag.Logger
	cache  IndexCache
	dedup  Dedup
	filter RecordFilter

	step     bool
	stepIn   *bufio.Reader
	stepOut  io.Writer
	parallel int

	state     State
	ctx       context.Context
	writer    *cassette.Writer
	indices   map[string]*scope.Index
	normal    map[string]string
	resolved  map[lineKey]struct{}
	seen      *seenSet
	diags     []error
	stats     Stats
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithLogger sets the diagnostic logger. Default discards.
func WithLogger(l *diag.Logger) Option {
	return func(t *Tracer) {
		t.log = l
	}
}

// WithCache sets the index cache. Default is a MemoryCache over the indexer.
func WithCache(c IndexCache) Option {
	return func(t *Tracer) {
		t.cache = c
	}
}

// WithDedup sets the value dedup policy. Default DedupIdentity.
func WithDedup(d Dedup) Option {
	return func(t *Tracer) {
		t.dedup = d
	}
}

// WithFilter drops resolved names the filter rejects.
func WithFilter(f RecordFilter) Option {
	return func(t *Tracer) {
		t.filter = f
	}
}

// WithStep pauses after every processed event until a line is read from
// in. The prompt is written to out. Stepping stops at EOF on in.
func WithStep(in io.Reader, out io.Writer) Option {
	return func(t *Tracer) {
		t.step = true
		t.stepIn = bufio.NewReader(in)
		t.stepOut = out
	}
}

// WithParallelism bounds the number of modules indexed at once by Arm.
// Zero or less means one per module.
func WithParallelism(n int) Option {
	return func(t *Tracer) {
		t.parallel = n
	}
}

// New returns an idle Tracer watching paths and recording to the cassette
// at cassettePath. Paths are compared in indexer.NormalizePath form.
func New(paths []string, cassettePath string, opts ...Option) (*Tracer, error) {
	t := &Tracer{
		watched:      make(map[string]struct{}, len(paths)),
		cassettePath: cassettePath,
		log:          diag.Nop(),
		normal:       make(map[string]string),
		resolved:     make(map[lineKey]struct{}),
		indices:      make(map[string]*scope.Index, len(paths)),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cache == nil {
		t.cache = NewMemoryCache(IndexerBuild(t.log))
	}
	t.seen = newSeenSet(t.dedup)

	for _, p := range paths {
		abs, err := indexer.NormalizePath(p)
		if err != nil {
			return nil, fmt.Errorf("tracer: watch %s: %w", p, err)
		}
		if _, dup := t.watched[abs]; dup {
			continue
		}
		t.watched[abs] = struct{}{}
		t.paths = append(t.paths, abs)
	}
	if len(t.paths) == 0 {
		return nil, errors.New("tracer: no paths to watch")
	}
	return t, nil
}

// Paths returns the watched paths in normalized form.
func (t *Tracer) Paths() []string {
	out := make([]string, len(t.paths))
	copy(out, t.paths)
	return out
}

// State returns the lifecycle state.
func (t *Tracer) State() State {
	return t.state
}

// Diagnostics returns the non-fatal errors seen so far.
func (t *Tracer) Diagnostics() []error {
	out := make([]error, len(t.diags))
	copy(out, t.diags)
	return out
}

// Stats returns the session counters.
func (t *Tracer) Stats() Stats {
	return t.stats
}

// Index returns the prefetched index of a watched path.
func (t *Tracer) Index(path string) (*scope.Index, error) {
	abs, err := indexer.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	idx, ok := t.indices[abs]
	if !ok {
		return nil, fmt.Errorf("tracer: %s: %w", path, ErrNotWatched)
	}
	return idx, nil
}

// Arm indexes every watched module and opens the cassette. Any failure
// leaves the tracer idle with nothing written. ctx is kept for filter
// evaluation during the session.
func (t *Tracer) Arm(ctx context.Context) error {
	switch t.state {
	case StateArmed:
		return ErrAlreadyArmed
	case StateClosed:
		return ErrClosed
	}

	timer := prometheus.NewTimer(armDuration)
	indices := make([]*scope.Index, len(t.paths))
	g, gctx := errgroup.WithContext(ctx)
	if t.parallel > 0 {
		g.SetLimit(t.parallel)
	}
	for i, p := range t.paths {
		g.Go(func() error {
			idx, err := t.cache.Get(gctx, p)
			if err != nil {
				return fmt.Errorf("tracer: arm: index %s: %w", p, err)
			}
			indices[i] = idx
			return nil
		})
	}
	err := g.Wait()
	timer.ObserveDuration()
	if err != nil {
		return err
	}

	w, err := cassette.Create(t.cassettePath)
	if err != nil {
		return fmt.Errorf("tracer: arm: %w", err)
	}

	for i, p := range t.paths {
		t.indices[p] = indices[i]
	}
	t.writer = w
	t.ctx = ctx
	t.state = StateArmed
	t.log.Infof("armed: watching %d module(s), recording to %s (session %s)", len(t.paths), t.cassettePath, w.SessionID())
	return nil
}

// Close releases the cassette. It is safe to call more than once and in
// any state; only the first call has an effect.
func (t *Tracer) Close() error {
	t.closeOnce.Do(func() {
		wasArmed := t.state == StateArmed
		t.state = StateClosed
		if t.writer != nil {
			t.closeErr = t.writer.Close()
		}
		if wasArmed {
			t.log.Infof("closed: %d event(s), %d record(s), %d duplicate(s), %d unresolved",
				t.stats.Events, t.stats.Records, t.stats.Duplicates, t.stats.ResolutionErrors)
		}
	})
	return t.closeErr
}

// Trace processes one execution event and returns the tracer itself so it
// keeps receiving events for nested frames. Errors returned here are
// session-fatal; resolution failures are only recorded as diagnostics.
func (t *Tracer) Trace(ev *ExecEvent) (Handler, error) {
	switch t.state {
	case StateIdle:
		return t, ErrNotArmed
	case StateClosed:
		return nil, ErrClosed
	}

	path, ok := t.watchedPath(ev.Path)
	if !ok {
		return t, nil
	}
	if ev.Kind != KindLine && ev.Kind != KindReturn {
		return t, nil
	}
	eventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	t.stats.Events++

	if err := t.process(path, ev); err != nil {
		return t, err
	}
	t.pause(path, ev)
	return t, nil
}

// watchedPath normalizes an event path, memoizing the result.
func (t *Tracer) watchedPath(raw string) (string, bool) {
	abs, ok := t.normal[raw]
	if !ok {
		var err error
		abs, err = indexer.NormalizePath(raw)
		if err != nil {
			abs = raw
		}
		t.normal[raw] = abs
	}
	_, watched := t.watched[abs]
	return abs, watched
}

func (t *Tracer) process(path string, ev *ExecEvent) error {
	idx, ok := t.indices[path]
	if !ok {
		var err error
		idx, err = t.cache.Get(t.ctx, path)
		if err != nil {
			return fmt.Errorf("tracer: index %s: %w", path, err)
		}
		t.indices[path] = idx
	}

	lines, err := idx.NamesJustBefore(ev.Line)
	if err != nil {
		if errors.Is(err, scope.ErrOutOfScope) {
			t.diagnose(err)
			return nil
		}
		return err
	}
	if lines.Line < 0 {
		return nil
	}
	key := lineKey{path: path, line: lines.Line}
	if _, done := t.resolved[key]; done {
		return nil
	}

	for _, name := range lines.Names {
		v, err := resolve(ev.Frame, name)
		if err != nil {
			t.stats.ResolutionErrors++
			resolutionErrorsTotal.Inc()
			t.diagnose(&ResolutionError{Path: path, Line: ev.Line, DeclLine: lines.Line, Name: name, Err: err})
			continue
		}
		if err := t.emit(path, ev.Line, lines.Line, name, v); err != nil {
			return err
		}
	}
	t.resolved[key] = struct{}{}
	return nil
}

func resolve(f Frame, name string) (Value, error) {
	if f == nil {
		return Value{}, ErrUnknownName
	}
	if v, ok := f.Local(name); ok {
		return v, nil
	}
	if v, ok := f.Global(name); ok {
		return v, nil
	}
	return Value{}, ErrUnknownName
}

func (t *Tracer) emit(path string, line, declLine int, name string, v Value) error {
	if t.filter != nil {
		keep, err := t.filter.Keep(t.ctx, runtime.FilterInput{
			Path:  path,
			Line:  line,
			Event: cassette.ObjectCreated.String(),
			Name:  name,
			Type:  v.Type,
			Repr:  v.Repr,
			ID:    v.ID,
		})
		if err != nil {
			t.log.Warnf("filter %s:%d %s: %v", path, line, name, err)
			keep = true
		}
		if !keep {
			t.stats.Filtered++
			return nil
		}
	}

	if !t.seen.add(v) {
		t.stats.Duplicates++
		duplicatesTotal.Inc()
		t.log.Debugf("%s:%d %s: already recorded %s", path, line, name, v)
		return nil
	}

	ev := cassette.Created{
		Name:     name,
		DeclLine: declLine,
		Value:    cassette.Value{ID: v.ID, Type: v.Type, Repr: v.Repr},
	}
	if err := t.writer.Append(path, line, ev); err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	t.stats.Records++
	recordsTotal.Inc()
	t.log.Debugf("%s:%d %s = %s", path, line, name, v.Repr)
	return nil
}

func (t *Tracer) diagnose(err error) {
	t.diags = append(t.diags, err)
	t.log.Warnf("%v", err)
}

// pause blocks until the operator enters a line. EOF ends stepping.
func (t *Tracer) pause(path string, ev *ExecEvent) {
	if !t.step {
		return
	}
	fmt.Fprintf(t.stepOut, "%s:%d %s\nstep? ", path, ev.Line, ev.Kind)
	if _, err := t.stepIn.ReadString('\n'); err != nil {
		t.step = false
	}
}
