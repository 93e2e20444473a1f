package runtime

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/risor-io/risor/object"
)

// sourceCache holds the lines of files read by source_line, keyed by path.
type sourceCache struct {
	mu    sync.RWMutex
	files map[string][]string
}

func newSourceCache() *sourceCache {
	return &sourceCache{files: make(map[string][]string)}
}

func (c *sourceCache) lines(path string) ([]string, error) {
	c.mu.RLock()
	lines, ok := c.files[path]
	c.mu.RUnlock()
	if ok {
		return lines, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines = strings.Split(string(data), "\n")
	c.mu.Lock()
	c.files[path] = lines
	c.mu.Unlock()
	return lines, nil
}

// makeSourceLineFn creates the "source_line" host function.
//
// source_line(path, line) → string, "" when the line is out of range
func makeSourceLineFn(c *sourceCache) *object.Builtin {
	return object.NewBuiltin("source_line", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("source_line", 2, len(args))
		}

		pathStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("source_line: path must be a string, got %s", args[0].Type())
		}
		lineInt, ok := args[1].(*object.Int)
		if !ok {
			return object.Errorf("source_line: line must be an int, got %s", args[1].Type())
		}

		lines, err := c.lines(pathStr.Value())
		if err != nil {
			return object.Errorf("source_line: reading %s: %v", pathStr.Value(), err)
		}
		n := lineInt.Value()
		if n < 1 || n > int64(len(lines)) {
			return object.NewString("")
		}
		return object.NewString(strings.TrimSpace(lines[n-1]))
	})
}
