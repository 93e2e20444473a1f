package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ftracer/internal/indexer"
	"github.com/jward/ftracer/internal/scope"
	"github.com/jward/ftracer/internal/tracer"
)

var _ tracer.IndexCache = (*Cache)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

const classSource = `import os

class K:
    x = 1

    def m(self):
        self.y = os.sep
        return self.y

z = K()
`

func buildIndex(t *testing.T, path, src string) *scope.Index {
	t.Helper()
	res, err := indexer.IndexSource(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return res.Index
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())

	for _, table := range []string{"files", "scopes", "declarations", "references_"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestSaveLoadIndex_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	orig := buildIndex(t, "/src/k.py", classSource)
	require.NoError(t, s.SaveIndex(orig, "python"))

	got, err := s.LoadIndex("/src/k.py", orig.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Equal(t, orig.Len(), got.Len())
	for i, want := range orig.Scopes() {
		have := got.Scopes()[i]
		assert.Equal(t, want.Name, have.Name)
		assert.Equal(t, want.Kind, have.Kind)
		assert.Equal(t, want.Range, have.Range)
		assert.Equal(t, want.Declarations(), have.Declarations())
		assert.Equal(t, want.References(), have.References())
	}

	for _, line := range []int{2, 4, 5, 7, 8, 10, 11} {
		want, werr := orig.NamesJustBefore(line)
		have, herr := got.NamesJustBefore(line)
		assert.Equal(t, werr == nil, herr == nil, "line %d", line)
		if werr == nil {
			assert.Equal(t, want.Line, have.Line, "line %d", line)
			assert.Equal(t, want.Names, have.Names, "line %d", line)
			assert.Equal(t, want.Scope.Name, have.Scope.Name, "line %d", line)
		}
	}
}

func TestLoadIndex_StaleOrMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.LoadIndex("/src/none.py", "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	idx := buildIndex(t, "/src/k.py", classSource)
	require.NoError(t, s.SaveIndex(idx, "python"))

	got, err = s.LoadIndex("/src/k.py", "different")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveIndex_Replaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SaveIndex(buildIndex(t, "/src/k.py", classSource), "python"))
	second := buildIndex(t, "/src/k.py", "a = 1\n")
	require.NoError(t, s.SaveIndex(second, "python"))

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, second.Hash, files[0].Hash)

	var scopes int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM scopes").Scan(&scopes))
	assert.Equal(t, 1, scopes)
}

func TestDeleteFile_Cascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SaveIndex(buildIndex(t, "/src/k.py", classSource), "python"))
	require.NoError(t, s.DeleteFile("/src/k.py"))

	f, err := s.FileByPath("/src/k.py")
	require.NoError(t, err)
	assert.Nil(t, f)

	for _, table := range []string{"scopes", "declarations", "references_"} {
		var n int
		require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
}

func TestCache_HitLoadBuild(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "k.py")
	require.NoError(t, os.WriteFile(path, []byte(classSource), 0o644))
	ctx := context.Background()

	c := NewCache(s, nil)
	first, err := c.Get(ctx, path)
	require.NoError(t, err)
	second, err := c.Get(ctx, path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, CacheStats{Hits: 1, Builds: 1}, c.Stats())

	// A fresh cache over the same store loads instead of parsing.
	c2 := NewCache(s, nil)
	loaded, err := c2.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, loaded.Hash)
	assert.Equal(t, CacheStats{Loads: 1}, c2.Stats())

	// Editing the file invalidates both memory and store entries.
	require.NoError(t, os.WriteFile(path, []byte("a = 1\nb = a\n"), 0o644))
	rebuilt, err := c.Get(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, rebuilt.Hash)
	assert.Equal(t, 1, rebuilt.Len())
	assert.Equal(t, 2, c.Stats().Builds)
}

func TestCache_Errors(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	dir := t.TempDir()
	c := NewCache(s, nil)

	_, err := c.Get(context.Background(), filepath.Join(dir, "missing.py"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = c.Get(context.Background(), txt)
	assert.ErrorIs(t, err, indexer.ErrUnsupportedLanguage)

	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte("def f(:\n"), 0o644))
	_, err = c.Get(context.Background(), bad)
	assert.ErrorIs(t, err, indexer.ErrSyntax)
}

func TestCache_WithTracer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "m.py")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\nb = a\n"), 0o644))

	c := NewCache(s, nil)
	tr, err := tracer.New([]string{path}, filepath.Join(dir, "A.tape"), tracer.WithCache(c))
	require.NoError(t, err)
	require.NoError(t, tr.Arm(context.Background()))
	defer tr.Close()

	_, err = tr.Trace(&tracer.ExecEvent{
		Path:  path,
		Line:  2,
		Kind:  tracer.KindLine,
		Frame: tracer.MapFrame{Globals: map[string]tracer.Value{"a": {ID: 1, Type: "int", Repr: "1"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Stats().Records)
	assert.Equal(t, 1, c.Stats().Builds)
}
