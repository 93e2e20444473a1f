package ftracer

import (
	"context"
	"fmt"
	"sort"

	"github.com/jward/ftracer/internal/scope"
)

// QueryBuilder answers questions about indexed modules.
type QueryBuilder struct {
	engine *Engine
}

// Location is a declaration or reference site.
type Location struct {
	File  string
	Line  int
	Scope string
	Kind  string
}

// Files returns every file in the index database.
func (q *QueryBuilder) Files() ([]*File, error) {
	files, err := q.engine.store.Files()
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// ScopeAt returns the innermost scope containing line.
func (q *QueryBuilder) ScopeAt(ctx context.Context, file string, line int) (*Scope, error) {
	idx, err := q.engine.Index(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("scope at: %w", err)
	}
	return idx.ScopeContaining(line)
}

// NamesBefore returns the names a tracer resolves when line executes.
func (q *QueryBuilder) NamesBefore(ctx context.Context, file string, line int) (Lines, error) {
	idx, err := q.engine.Index(ctx, file)
	if err != nil {
		return Lines{Line: -1}, fmt.Errorf("names before: %w", err)
	}
	return idx.NamesJustBefore(line)
}

// Declarations returns every declaration of name in file, ordered by line.
// Names declared without a line of their own (definitions) report the first
// line of their scope's range in Line.
func (q *QueryBuilder) Declarations(ctx context.Context, file, name string) ([]Location, error) {
	idx, err := q.engine.Index(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("declarations: %w", err)
	}
	var locs []Location
	for _, s := range idx.Scopes() {
		decls, ok := s.Lookup(name)
		if !ok {
			continue
		}
		for _, d := range decls {
			line := d.Line
			if line == 0 {
				line = definitionLine(idx, s, name)
			}
			locs = append(locs, Location{File: idx.Path, Line: line, Scope: s.Name, Kind: d.Kind.String()})
		}
	}
	sort.SliceStable(locs, func(i, j int) bool { return locs[i].Line < locs[j].Line })
	return locs, nil
}

// definitionLine returns the start line of the first direct child of parent
// called name, or the start of parent when there is none.
func definitionLine(idx *scope.Index, parent *scope.Scope, name string) int {
	line, depth, done := parent.Range.Start, -1, false
	idx.Walk(func(s *scope.Scope, d int) {
		switch {
		case done:
		case s == parent:
			depth = d
		case depth < 0:
		case d <= depth:
			done = true
		case d == depth+1 && s.Name == name:
			line, done = s.Range.Start, true
		}
	})
	return line
}

// Referencing returns the scopes of file that read name.
func (q *QueryBuilder) Referencing(ctx context.Context, file, name string) ([]Location, error) {
	idx, err := q.engine.Index(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("referencing: %w", err)
	}
	var locs []Location
	for _, s := range idx.Scopes() {
		for _, ref := range s.References() {
			if ref == name {
				locs = append(locs, Location{File: idx.Path, Line: s.Range.Start, Scope: s.Name, Kind: s.Kind.String()})
				break
			}
		}
	}
	return locs, nil
}
