package scope

import (
	"errors"
	"fmt"

	"github.com/jward/ftracer/internal/rangetree"
)

var (
	// ErrDuplicateScope is returned when a scope with the same kind, name
	// and range is registered twice in one Index.
	ErrDuplicateScope = errors.New("scope already registered")

	// ErrOutOfScope is returned when a line falls outside every scope.
	ErrOutOfScope = errors.New("line outside every scope")
)

// Lines is the answer to a NamesJustBefore query.
type Lines struct {
	// Scope is the innermost scope containing the queried line.
	Scope *Scope
	// Line is the matched declaration line, or -1 if none precedes the query.
	Line  int
	Names []string
}

// Index maps the line ranges of one module to its scopes.
type Index struct {
	Path string
	// Hash is the sha256 of the source the index was built from, hex encoded.
	Hash string

	tree   *rangetree.Tree[*Scope]
	scopes []*Scope
	seen   map[scopeKey]struct{}
}

type scopeKey struct {
	rng  rangetree.Range
	kind Kind
	name string
}

// NewIndex returns an empty index for path.
func NewIndex(path, hash string) *Index {
	return &Index{
		Path: path,
		Hash: hash,
		tree: rangetree.New[*Scope](),
		seen: make(map[scopeKey]struct{}),
	}
}

// AddScope registers s. Scopes must be added parents first.
func (x *Index) AddScope(s *Scope) error {
	key := scopeKey{rng: s.Range, kind: s.Kind, name: s.Name}
	if _, dup := x.seen[key]; dup {
		return fmt.Errorf("scope: add %s in %s: %w", s, x.Path, ErrDuplicateScope)
	}
	if err := x.tree.Insert(s.Range, s); err != nil {
		return fmt.Errorf("scope: add %s in %s: %w", s, x.Path, err)
	}
	x.seen[key] = struct{}{}
	x.scopes = append(x.scopes, s)
	return nil
}

// Scopes returns the registered scopes in insertion order.
func (x *Index) Scopes() []*Scope {
	out := make([]*Scope, len(x.scopes))
	copy(out, x.scopes)
	return out
}

// Len returns the number of registered scopes.
func (x *Index) Len() int {
	return len(x.scopes)
}

// Stack returns the scopes containing line, outermost first.
func (x *Index) Stack(line int) ([]*Scope, error) {
	nodes, err := x.tree.StackAt(line)
	if err != nil {
		return nil, fmt.Errorf("scope: stack at %s:%d: %w", x.Path, line, err)
	}
	out := make([]*Scope, len(nodes))
	for i, n := range nodes {
		out[i] = n.Value()
	}
	return out, nil
}

// ScopeContaining returns the innermost scope enclosing line.
func (x *Index) ScopeContaining(line int) (*Scope, error) {
	stack, err := x.Stack(line)
	if err != nil {
		return nil, err
	}
	if len(stack) == 0 {
		return nil, fmt.Errorf("scope: %s:%d: %w", x.Path, line, ErrOutOfScope)
	}
	return stack[len(stack)-1], nil
}

// NamesJustBefore finds, in the scope containing line, the greatest
// declaration line strictly before line and the names declared on it.
// Lines.Line is -1 when there is none.
func (x *Index) NamesJustBefore(line int) (Lines, error) {
	s, err := x.ScopeContaining(line)
	if err != nil {
		return Lines{Line: -1}, err
	}
	matched, names := s.NamesBefore(line)
	return Lines{Scope: s, Line: matched, Names: names}, nil
}

// Walk visits scopes in nesting order; depth is 0 for top-level scopes.
func (x *Index) Walk(fn func(s *Scope, depth int)) {
	x.tree.Walk(func(n *rangetree.Node[*Scope], depth int) bool {
		fn(n.Value(), depth)
		return true
	})
}
