package cassette

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "A.tape")
	w, err := Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, path
}

func collect(t *testing.T, r *Reader) []*Record {
	t.Helper()
	var out []*Record
	for rec, err := range r.Records() {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestWriter_AppendAndRead(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)

	require.NoError(t, w.Append("/src/mod.py", 3, Created{Name: "b", DeclLine: 2, Value: Value{ID: 7, Type: "int", Repr: "2"}}))
	require.NoError(t, w.Append("/src/mod.py", 4, Assigned{Name: "c", Value: Value{ID: 8, Type: "str", Repr: "'x'"}}))
	require.NoError(t, w.Append("/src/run.py", 9, AttrSet{
		Object: Value{ID: 1, Type: "Point"},
		Attr:   "x",
		Value:  Value{ID: 9, Type: "int", Repr: "1"},
	}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	recs := collect(t, r)
	require.Len(t, recs, 3)

	assert.Equal(t, "/src/mod.py", recs[0].ModulePath)
	assert.Equal(t, 3, recs[0].ModuleLine)
	assert.Equal(t, ObjectCreated, recs[0].Type)
	ev, err := recs[0].Event()
	require.NoError(t, err)
	assert.Equal(t, Created{Name: "b", DeclLine: 2, Value: Value{ID: 7, Type: "int", Repr: "2"}}, ev)

	assert.Equal(t, NameAssigned, recs[1].Type)
	assert.Equal(t, AttrAssigned, recs[2].Type)
	ev, err = recs[2].Event()
	require.NoError(t, err)
	assert.Equal(t, "x", ev.(AttrSet).Attr)

	assert.Less(t, recs[0].Seq, recs[1].Seq)
	assert.Less(t, recs[1].Seq, recs[2].Seq)
}

func TestReader_RestartableIteration(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Append("/src/mod.py", i, Created{Name: "v"}))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	// Stop the first pass early; the second pass starts from the beginning.
	var first []int
	for rec, err := range r.Records() {
		require.NoError(t, err)
		first = append(first, rec.ModuleLine)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, first)

	var lines []int
	for _, rec := range collect(t, r) {
		lines = append(lines, rec.ModuleLine)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, lines)

	n, err := r.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestCreate_ReplacesExisting(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	require.NoError(t, w.Append("/src/mod.py", 1, Created{Name: "old"}))
	require.NoError(t, w.Close())

	w2, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, collect(t, r))
	assert.Equal(t, w2.SessionID(), r.Meta().SessionID)
}

func TestMeta(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	meta := r.Meta()
	assert.Equal(t, SchemaVersion, meta.SchemaVersion)
	_, err = uuid.Parse(meta.SessionID)
	assert.NoError(t, err)
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestWriter_AppendAfterClose(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err := w.Append("/src/mod.py", 1, Created{Name: "x"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCreate_BadDirectory(t *testing.T) {
	t.Parallel()
	_, err := Create(filepath.Join(t.TempDir(), "missing", "dir", "A.tape"))
	assert.Error(t, err)
}

func TestOpen_Missing(t *testing.T) {
	t.Parallel()
	_, err := Open(filepath.Join(t.TempDir(), "nope.tape"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEventType_Names(t *testing.T) {
	t.Parallel()

	for _, et := range []EventType{ObjectCreated, NameAssigned, AttrAssigned} {
		got, err := ParseEventType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}
	assert.Equal(t, "OBJECT_CREATED", ObjectCreated.String())
	assert.Equal(t, "EventType(42)", EventType(42).String())

	_, err := ParseEventType("DELETED")
	assert.Error(t, err)
}
