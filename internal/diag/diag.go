// Package diag is the line logger used across ftracer. Every line has the
// form "[prefix] LEVEL: message" and is colored by level when writing to a
// terminal.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error, in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("diag: unknown log level %q", s)
}

// ColorMode selects when output is colored.
type ColorMode string

const (
	ColorAuto ColorMode = "auto"
	ColorOn   ColorMode = "on"
	ColorOff  ColorMode = "off"
)

// ParseColorMode accepts auto, on and off.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(s)); m {
	case ColorAuto, ColorOn, ColorOff:
		return m, nil
	}
	return "", fmt.Errorf("diag: unknown color mode %q (want auto|on|off)", s)
}

var levelColors = map[Level][]color.Attribute{
	LevelDebug: {color.FgHiBlack},
	LevelInfo:  {color.FgCyan},
	LevelWarn:  {color.FgYellow, color.Bold},
	LevelError: {color.FgRed, color.Bold},
}

// Logger writes leveled lines to an io.Writer. It is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
	level  Level
	color  bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithPrefix sets the bracketed prefix. Default "ftracer".
func WithPrefix(prefix string) Option {
	return func(l *Logger) {
		l.prefix = prefix
	}
}

// WithLevel drops lines below level. Default LevelInfo.
func WithLevel(level Level) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithColor sets the color mode. Auto colors only terminals.
func WithColor(mode ColorMode) Option {
	return func(l *Logger) {
		switch mode {
		case ColorOn:
			l.color = true
		case ColorOff:
			l.color = false
		default:
			l.color = IsTerminal(l.w)
		}
	}
}

// New returns a Logger writing to w.
func New(w io.Writer, opts ...Option) *Logger {
	l := &Logger{w: w, prefix: "ftracer", level: LevelInfo}
	l.color = IsTerminal(w)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, WithLevel(LevelError+1))
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Enabled reports whether lines at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	tag := level.String()
	if l.color {
		c := color.New(levelColors[level]...)
		c.EnableColor()
		tag = c.Sprint(tag)
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%s] %s: %s\n", l.prefix, tag, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Info, Warn and Error take a preformatted message; they back the log
// object exposed to filter scripts.
func (l *Logger) Info(msg string)  { l.logf(LevelInfo, "%s", msg) }
func (l *Logger) Warn(msg string)  { l.logf(LevelWarn, "%s", msg) }
func (l *Logger) Error(msg string) { l.logf(LevelError, "%s", msg) }
