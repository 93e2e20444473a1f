package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf)
	l.Infof("armed %d modules", 2)
	l.Warnf("resolve %s: unknown name", "y")
	assert.Equal(t, "[ftracer] INFO: armed 2 modules\n[ftracer] WARN: resolve y: unknown name\n", buf.String())
}

func TestLogger_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, WithLevel(LevelWarn), WithPrefix("trace"))
	l.Debugf("hidden")
	l.Info("hidden")
	l.Error("boom")
	assert.Equal(t, "[trace] ERROR: boom\n", buf.String())
	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))
}

func TestLogger_ColorOn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, WithColor(ColorOn))
	l.Warn("careful")
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "careful")
}

func TestLogger_NotTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.False(t, IsTerminal(&buf))
	l := New(&buf, WithColor(ColorAuto))
	l.Info("plain")
	assert.Equal(t, "[ftracer] INFO: plain\n", buf.String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)

	_, err = ParseColorMode("sometimes")
	assert.Error(t, err)
	m, err := ParseColorMode("ON")
	require.NoError(t, err)
	assert.Equal(t, ColorOn, m)
}

func TestNop(t *testing.T) {
	t.Parallel()
	l := Nop()
	l.Errorf("nothing %d", 1)
	assert.False(t, l.Enabled(LevelError))
}
