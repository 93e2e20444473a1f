// Package scope holds the static scope index of a module: a range tree of
// lexical scopes, each carrying the names declared in it and a line-ordered
// index used to find the names bound just before an execution point.
package scope

import (
	"fmt"
	"sort"

	"github.com/jward/ftracer/internal/rangetree"
)

// Kind is the syntactic construct that opened a scope.
type Kind uint8

const (
	KindModule Kind = iota + 1
	KindFunction
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	default:
		return "unknown"
	}
}

// ParseKind converts a string produced by Kind.String back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "module":
		return KindModule, nil
	case "function":
		return KindFunction, nil
	case "class":
		return KindClass, nil
	default:
		return 0, fmt.Errorf("scope: unknown kind %q", s)
	}
}

// DeclKind says how a name came to be declared.
type DeclKind uint8

const (
	DeclAssign DeclKind = iota + 1
	DeclImport
	DeclDefinition
)

func (k DeclKind) String() string {
	switch k {
	case DeclAssign:
		return "assign"
	case DeclImport:
		return "import"
	case DeclDefinition:
		return "definition"
	default:
		return "unknown"
	}
}

// ParseDeclKind converts a string produced by DeclKind.String back to a DeclKind.
func ParseDeclKind(s string) (DeclKind, error) {
	switch s {
	case "assign":
		return DeclAssign, nil
	case "import":
		return DeclImport, nil
	case "definition":
		return DeclDefinition, nil
	default:
		return 0, fmt.Errorf("scope: unknown declaration kind %q", s)
	}
}

// Declaration is one name bound in a scope. Line is 0 when the declaration
// is not tied to a line, as for the name of a nested definition.
type Declaration struct {
	Name string
	Kind DeclKind
	Line int
}

// Scope is a lexical region (module, function or class body).
type Scope struct {
	Name  string
	Kind  Kind
	Range rangetree.Range

	// decls maps a name to its declarations in declaration order.
	decls map[string][]Declaration
	// order keeps first-declaration order of names.
	order []string
	lines lineIndex
	refs  map[string]struct{}
}

// New returns an empty scope covering r.
func New(name string, kind Kind, r rangetree.Range) *Scope {
	return &Scope{
		Name:  name,
		Kind:  kind,
		Range: r,
		decls: make(map[string][]Declaration),
		refs:  make(map[string]struct{}),
	}
}

// Declare records name as declared in s. Declarations with a positive line
// also enter the line-ordered index.
func (s *Scope) Declare(name string, kind DeclKind, line int) {
	if _, ok := s.decls[name]; !ok {
		s.order = append(s.order, name)
	}
	s.decls[name] = append(s.decls[name], Declaration{Name: name, Kind: kind, Line: line})
	if line > 0 {
		s.lines.add(line, name)
	}
}

// Reference records a name used, but not declared, in s.
func (s *Scope) Reference(name string) {
	s.refs[name] = struct{}{}
}

// Declarations returns every declaration in first-declaration order of names.
func (s *Scope) Declarations() []Declaration {
	var out []Declaration
	for _, name := range s.order {
		out = append(out, s.decls[name]...)
	}
	return out
}

// Lookup returns the declarations of name in s.
func (s *Scope) Lookup(name string) ([]Declaration, bool) {
	d, ok := s.decls[name]
	return d, ok
}

// References returns the referenced names, sorted.
func (s *Scope) References() []string {
	out := make([]string, 0, len(s.refs))
	for name := range s.refs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NamesBefore returns the greatest declaration line strictly less than line
// together with every name declared on it. It returns (-1, nil) when no
// declaration line precedes line.
func (s *Scope) NamesBefore(line int) (int, []string) {
	return s.lines.before(line)
}

// DeclLines returns how many distinct lines in s declare names. These are
// the lines a tracer can resolve names for.
func (s *Scope) DeclLines() int {
	return s.lines.lineCount()
}

func (s *Scope) String() string {
	return fmt.Sprintf("%s %s [%d-%d]", s.Kind, s.Name, s.Range.Start, s.Range.End)
}
