package tracer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ftracer/internal/cassette"
	"github.com/jward/ftracer/internal/indexer"
	"github.com/jward/ftracer/internal/runtime"
	"github.com/jward/ftracer/internal/scope"
)

type harness struct {
	t        *testing.T
	tr       *Tracer
	path     string
	cassette string
}

func writeModule(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newHarness(t *testing.T, src string, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	path := writeModule(t, dir, "target.py", src)
	tape := filepath.Join(dir, "A.tape")

	tr, err := New([]string{path}, tape, opts...)
	require.NoError(t, err)
	require.NoError(t, tr.Arm(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return &harness{t: t, tr: tr, path: path, cassette: tape}
}

func (h *harness) fire(kind EventKind, line int, frame Frame) {
	h.t.Helper()
	next, err := h.tr.Trace(&ExecEvent{Path: h.path, Line: line, Kind: kind, Frame: frame})
	require.NoError(h.t, err)
	require.Same(h.t, h.tr, next)
}

type rec struct {
	line  int
	name  string
	decl  int
	value cassette.Value
}

func (h *harness) records() []rec {
	h.t.Helper()
	require.NoError(h.t, h.tr.Close())

	r, err := cassette.Open(h.cassette)
	require.NoError(h.t, err)
	defer r.Close()

	var out []rec
	for record, err := range r.Records() {
		require.NoError(h.t, err)
		assert.Equal(h.t, cassette.ObjectCreated, record.Type)
		ev, err := record.Event()
		require.NoError(h.t, err)
		c := ev.(cassette.Created)
		out = append(out, rec{line: record.ModuleLine, name: c.Name, decl: c.DeclLine, value: c.Value})
	}
	return out
}

func locals(vals map[string]Value) MapFrame {
	return MapFrame{Locals: vals, Globals: map[string]Value{}}
}

func globals(vals map[string]Value) MapFrame {
	return MapFrame{Locals: vals, Globals: vals}
}

func TestTrace_FunctionCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "def f():\n  a = 1\n  b = 2\n  return a + b\n\nf()\n")
	a := Value{ID: 1001, Type: "int", Repr: "1"}
	b := Value{ID: 1002, Type: "int", Repr: "2"}
	fn := Value{ID: 7, Type: "function", Repr: "<function f>"}

	h.fire(KindLine, 1, globals(map[string]Value{}))
	h.fire(KindLine, 6, globals(map[string]Value{"f": fn}))
	h.fire(KindCall, 1, locals(nil))
	h.fire(KindLine, 2, locals(nil))
	h.fire(KindLine, 3, locals(map[string]Value{"a": a}))
	h.fire(KindLine, 4, locals(map[string]Value{"a": a, "b": b}))
	h.fire(KindReturn, 4, locals(map[string]Value{"a": a, "b": b}))

	got := h.records()
	require.Len(t, got, 2)
	assert.Equal(t, rec{line: 3, name: "a", decl: 2, value: cassette.Value{ID: 1001, Type: "int", Repr: "1"}}, got[0])
	assert.Equal(t, rec{line: 4, name: "b", decl: 3, value: cassette.Value{ID: 1002, Type: "int", Repr: "2"}}, got[1])
	assert.Empty(t, h.tr.Diagnostics())
	assert.Equal(t, StateClosed, h.tr.State())
}

func TestTrace_ReturnResolvesPreviousLine(t *testing.T) {
	t.Parallel()

	// Only the return event fires on the last line; it surfaces b.
	h := newHarness(t, "def f():\n  a = 1\n  b = 2\n  return a + b\n")
	a := Value{ID: 1, Type: "int", Repr: "1"}
	b := Value{ID: 2, Type: "int", Repr: "2"}

	h.fire(KindLine, 3, locals(map[string]Value{"a": a}))
	h.fire(KindReturn, 4, locals(map[string]Value{"a": a, "b": b}))

	got := h.records()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].name)
	assert.Equal(t, "b", got[1].name)
	assert.Equal(t, 4, got[1].line)
}

func TestTrace_UnexecutedBranch(t *testing.T) {
	t.Parallel()

	src := "x = 0\nif x:\n    y = 1\nz = 2\nw = z\n"
	h := newHarness(t, src)
	x := Value{ID: 1, Type: "int", Repr: "0"}
	z := Value{ID: 2, Type: "int", Repr: "2"}

	h.fire(KindLine, 1, globals(map[string]Value{}))
	h.fire(KindLine, 2, globals(map[string]Value{"x": x}))
	h.fire(KindLine, 4, globals(map[string]Value{"x": x}))
	h.fire(KindLine, 5, globals(map[string]Value{"x": x, "z": z}))

	got := h.records()
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].name)
	assert.Equal(t, "z", got[1].name)

	diags := h.tr.Diagnostics()
	require.Len(t, diags, 1)
	var re *ResolutionError
	require.True(t, errors.As(diags[0], &re))
	assert.Equal(t, "y", re.Name)
	assert.Equal(t, 3, re.DeclLine)
	assert.Equal(t, 4, re.Line)
	assert.ErrorIs(t, diags[0], ErrUnknownName)
	assert.Equal(t, 1, h.tr.Stats().ResolutionErrors)
}

func TestTrace_SiblingNamesSurviveFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "a, b = 1, 2\nc = a\n")
	h.fire(KindLine, 2, globals(map[string]Value{"b": {ID: 2, Type: "int", Repr: "2"}}))

	got := h.records()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].name)
	assert.Len(t, h.tr.Diagnostics(), 1)
}

func TestTrace_LoopLinesResolvedOnce(t *testing.T) {
	t.Parallel()

	src := "total = 0\nfor i in range(3):\n    total = total + i\ndone = total\n"
	h := newHarness(t, src)

	env := map[string]Value{"total": {ID: 1, Type: "int", Repr: "0"}}
	h.fire(KindLine, 1, globals(map[string]Value{}))
	for i := 0; i < 3; i++ {
		h.fire(KindLine, 2, globals(env))
		h.fire(KindLine, 3, globals(env))
		env = map[string]Value{"total": {ID: uint64(10 + i), Type: "int", Repr: "x"}}
	}
	h.fire(KindLine, 4, globals(env))

	got := h.records()
	require.Len(t, got, 2)
	assert.Equal(t, rec{line: 2, name: "total", decl: 1, value: cassette.Value{ID: 1, Type: "int", Repr: "0"}}, got[0])
	assert.Equal(t, 4, got[1].line)
	assert.Equal(t, 3, got[1].decl)
}

func TestTrace_DedupPolicies(t *testing.T) {
	t.Parallel()

	// data and alias share an identity; copy is equal but distinct.
	src := "data = [1]\nalias = data\ncopy = list(data)\nend = 0\n"
	data := Value{ID: 10, Type: "list", Repr: "[1]"}
	cp := Value{ID: 11, Type: "list", Repr: "[1]"}
	env := map[string]Value{"data": data, "alias": data, "copy": cp}

	tests := []struct {
		dedup Dedup
		want  []string
	}{
		{DedupIdentity, []string{"data", "copy"}},
		{DedupEquality, []string{"data"}},
		{DedupNone, []string{"data", "alias", "copy"}},
	}
	for _, tt := range tests {
		t.Run(tt.dedup.String(), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, src, WithDedup(tt.dedup))
			for line := 2; line <= 4; line++ {
				h.fire(KindLine, line, globals(env))
			}

			var names []string
			for _, r := range h.records() {
				names = append(names, r.name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, 3-len(tt.want), h.tr.Stats().Duplicates)
		})
	}
}

func TestTrace_IgnoresOtherFilesAndKinds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "a = 1\nb = a\n")
	env := globals(map[string]Value{"a": {ID: 1, Type: "int", Repr: "1"}})

	next, err := h.tr.Trace(&ExecEvent{Path: "/elsewhere/lib.py", Line: 2, Kind: KindLine, Frame: env})
	require.NoError(t, err)
	assert.Same(t, h.tr, next)

	h.fire(KindCall, 2, env)
	h.fire(KindException, 2, env)
	h.fire(KindOther, 2, env)

	assert.Empty(t, h.records())
	assert.Equal(t, 0, h.tr.Stats().Events)
}

func TestTrace_LineOutsideEveryScope(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "\n\na = 1\nb = a\n")
	h.fire(KindLine, 1, globals(nil))

	assert.Empty(t, h.records())
	diags := h.tr.Diagnostics()
	require.Len(t, diags, 1)
	assert.ErrorIs(t, diags[0], scope.ErrOutOfScope)
}

func TestTrace_Filter(t *testing.T) {
	t.Parallel()

	f, err := runtime.New().Filter(`name != "secret"`)
	require.NoError(t, err)

	h := newHarness(t, "secret, public = 1, 2\nend = 0\n", WithFilter(f))
	h.fire(KindLine, 2, globals(map[string]Value{
		"secret": {ID: 1, Type: "str", Repr: "'pw'"},
		"public": {ID: 2, Type: "int", Repr: "2"},
	}))

	got := h.records()
	require.Len(t, got, 1)
	assert.Equal(t, "public", got[0].name)
	assert.Equal(t, 1, h.tr.Stats().Filtered)
}

func TestTrace_Step(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	h := newHarness(t, "a = 1\nb = 2\nc = 3\n", WithStep(strings.NewReader("\n\n"), &out))
	for line := 1; line <= 3; line++ {
		h.fire(KindLine, line, globals(map[string]Value{}))
	}
	// Two answers, then EOF stops stepping after the third prompt.
	h.fire(KindReturn, 3, globals(map[string]Value{}))
	assert.Equal(t, 3, strings.Count(out.String(), "step? "))
}

func TestTracer_Lifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeModule(t, dir, "m.py", "a = 1\n")
	tape := filepath.Join(dir, "A.tape")

	tr, err := New([]string{path, path}, tape)
	require.NoError(t, err)
	assert.Len(t, tr.Paths(), 1)
	assert.Equal(t, StateIdle, tr.State())

	next, err := tr.Trace(&ExecEvent{Path: path, Line: 1, Kind: KindLine})
	assert.ErrorIs(t, err, ErrNotArmed)
	assert.Same(t, tr, next)

	require.NoError(t, tr.Arm(context.Background()))
	assert.Equal(t, StateArmed, tr.State())
	assert.ErrorIs(t, tr.Arm(context.Background()), ErrAlreadyArmed)

	idx, err := tr.Index(path)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	_, err = tr.Index(filepath.Join(dir, "other.py"))
	assert.ErrorIs(t, err, ErrNotWatched)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, StateClosed, tr.State())
	assert.ErrorIs(t, tr.Arm(context.Background()), ErrClosed)

	next, err = tr.Trace(&ExecEvent{Path: path, Line: 1, Kind: KindLine})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, next)
}

func TestTracer_CloseBeforeArm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tr, err := New([]string{writeModule(t, dir, "m.py", "a = 1\n")}, filepath.Join(dir, "A.tape"))
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	assert.Equal(t, StateClosed, tr.State())
	_, statErr := os.Stat(filepath.Join(dir, "A.tape"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestArm_FailsOnBadModule(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeModule(t, dir, "good.py", "a = 1\n")
	bad := writeModule(t, dir, "bad.py", "def f(:\n")
	tape := filepath.Join(dir, "A.tape")

	tr, err := New([]string{good, bad}, tape)
	require.NoError(t, err)
	err = tr.Arm(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, indexer.ErrSyntax)
	assert.Equal(t, StateIdle, tr.State())

	_, statErr := os.Stat(tape)
	assert.True(t, os.IsNotExist(statErr), "cassette must not be created")
}

func TestArm_FailsOnBadCassette(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeModule(t, dir, "m.py", "a = 1\n")
	tr, err := New([]string{path}, filepath.Join(dir, "no", "such", "A.tape"))
	require.NoError(t, err)
	assert.Error(t, tr.Arm(context.Background()))
	assert.Equal(t, StateIdle, tr.State())
}

func TestNew_NoPaths(t *testing.T) {
	t.Parallel()
	_, err := New(nil, "A.tape")
	assert.Error(t, err)
}

type countingCache struct {
	builds atomic.Int32
	inner  *MemoryCache
}

func TestMemoryCache_BuildsOnce(t *testing.T) {
	t.Parallel()

	c := &countingCache{}
	c.inner = NewMemoryCache(func(ctx context.Context, path string) (*scope.Index, error) {
		c.builds.Add(1)
		res, err := indexer.IndexSource(ctx, path, []byte("a = 1\n"))
		if err != nil {
			return nil, err
		}
		return res.Index, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := c.inner.Get(context.Background(), "/src/a.py")
			assert.NoError(t, err)
			assert.NotNil(t, idx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), c.builds.Load())
	assert.Equal(t, 1, c.inner.Len())
}

func TestSynchronized_ConcurrentDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "a = 1\nb = 2\nc = 3\nd = 4\n")
	handler := Synchronized(h.tr)
	env := globals(map[string]Value{
		"a": {ID: 1}, "b": {ID: 2}, "c": {ID: 3}, "d": {ID: 4},
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for line := 1; line <= 4; line++ {
				next, err := handler.Trace(&ExecEvent{Path: h.path, Line: line, Kind: KindLine, Frame: env})
				assert.NoError(t, err)
				assert.Same(t, handler, next)
			}
		}()
	}
	wg.Wait()

	got := h.records()
	assert.Len(t, got, 3)
}

func TestMetrics(t *testing.T) {
	records := testutil.ToFloat64(recordsTotal)
	dups := testutil.ToFloat64(duplicatesTotal)
	unresolved := testutil.ToFloat64(resolutionErrorsTotal)
	lines := testutil.ToFloat64(eventsTotal.WithLabelValues("line"))

	h := newHarness(t, "a = 1\nb = a\nc = 0\nd = 0\n")
	one := Value{ID: 1, Type: "int", Repr: "1"}
	h.fire(KindLine, 2, globals(map[string]Value{"a": one}))
	h.fire(KindLine, 3, globals(map[string]Value{"a": one, "b": one}))
	h.fire(KindLine, 4, globals(map[string]Value{"a": one, "b": one}))
	require.NoError(t, h.tr.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(recordsTotal)-records)
	assert.Equal(t, 1.0, testutil.ToFloat64(duplicatesTotal)-dups)
	assert.Equal(t, 1.0, testutil.ToFloat64(resolutionErrorsTotal)-unresolved)
	assert.Equal(t, 3.0, testutil.ToFloat64(eventsTotal.WithLabelValues("line"))-lines)
}

func TestParseDedupAndKinds(t *testing.T) {
	t.Parallel()

	for _, d := range []Dedup{DedupIdentity, DedupEquality, DedupNone} {
		got, err := ParseDedup(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDedup("fuzzy")
	assert.Error(t, err)

	for _, k := range []EventKind{KindCall, KindLine, KindReturn, KindException} {
		assert.Equal(t, k, ParseEventKind(k.String()))
	}
	assert.Equal(t, KindOther, ParseEventKind("c_call"))
}
