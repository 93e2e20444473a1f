package tracer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownName means a name in the static index is bound neither
	// locally nor globally in the live frame.
	ErrUnknownName = errors.New("unknown name")

	ErrNotArmed     = errors.New("tracer not armed")
	ErrAlreadyArmed = errors.New("tracer already armed")
	ErrClosed       = errors.New("tracer closed")

	// ErrNotWatched is returned when a path passed to Index is not watched.
	ErrNotWatched = errors.New("path not watched")
)

// ResolutionError is a non-fatal diagnostic: a statically declared name
// could not be resolved at an execution point.
type ResolutionError struct {
	Path string
	// Line is the line of the execution event.
	Line int
	// DeclLine is the line the name was declared on.
	DeclLine int
	Name     string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("tracer: resolve %s (declared line %d) at %s:%d: %v", e.Name, e.DeclLine, e.Path, e.Line, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
