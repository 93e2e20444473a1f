package rangetree

import (
	"errors"
	"fmt"
)

var (
	// ErrUndefinedRelationship is returned when two ranges overlap without one
	// enclosing the other. It also covers a new range that encloses a sibling
	// already in the tree, which only happens when a parent is inserted after
	// its child.
	ErrUndefinedRelationship = errors.New("undefined relationship between ranges")

	// ErrEmptyTree is returned by queries made before any range was inserted.
	ErrEmptyTree = errors.New("range tree is empty")

	// ErrInvalidRange is returned for ranges with Start > End.
	ErrInvalidRange = errors.New("invalid range")
)

// ConstructionError reports a failed Insert together with the conflicting
// sibling, if any.
type ConstructionError struct {
	New      Range
	Existing *Range
	Err      error
}

func (e *ConstructionError) Error() string {
	if e.Existing != nil {
		return fmt.Sprintf("rangetree: insert %s: conflicts with %s: %v", e.New, *e.Existing, e.Err)
	}
	return fmt.Sprintf("rangetree: insert %s: %v", e.New, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}
