package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDiscover_Defaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cfg, err := Discover(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "cassettes", "A.tape"), cfg.CassettePath())
	assert.Equal(t, filepath.Join(dir, ".ftracer", "index.db"), cfg.IndexDBPath())
	assert.Equal(t, "identity", cfg.Dedup)
	assert.False(t, cfg.Step)
}

func TestDiscover_WalksUp(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeConfig(t, root, `
cassettes_dir = "tapes"
cassette_name = "run.tape"
dedup = "equality"
step = true
filter = "type != 'NoneType'"
log_level = "debug"
watch = ["app/main.py", "/abs/lib.py"]
`)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "tapes", "run.tape"), cfg.CassettePath())
	assert.Equal(t, "equality", cfg.Dedup)
	assert.True(t, cfg.Step)
	assert.Equal(t, "type != 'NoneType'", cfg.Filter)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{filepath.Join(root, "app", "main.py"), "/abs/lib.py"}, cfg.WatchPaths())
	// Unset keys keep their defaults.
	assert.Equal(t, filepath.Join(root, ".ftracer", "index.db"), cfg.IndexDBPath())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "cassettes_dir = ", "parse"},
		{"unknown key", "cassete_dir = \"x\"\n", "unknown keys: cassete_dir"},
		{"empty dir", "cassettes_dir = \"  \"\n", "cassettes_dir is empty"},
		{"empty name", "cassette_name = \"\"\n", "cassette_name is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := Default(dir)

	got, err := cfg.EnsureCassettesDir()
	require.NoError(t, err)
	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	_, err = cfg.EnsureCassettesDir()
	require.NoError(t, err)

	db, err := cfg.EnsureIndexDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".ftracer", "index.db"), db)
	info, err = os.Stat(filepath.Dir(db))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolve(t *testing.T) {
	t.Parallel()
	cfg := Default("/root/proj")
	assert.Equal(t, "/root/proj/x.py", cfg.Resolve("x.py"))
	assert.Equal(t, "/x.py", cfg.Resolve("/x.py"))
	assert.Equal(t, "", cfg.Resolve(""))
}
