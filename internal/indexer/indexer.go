// Package indexer builds a scope.Index from Python source. It parses the
// module with tree-sitter and walks the syntax tree once, depth first and left
// to right, keeping a stack of open scopes. Functions, classes and the module
// itself open scopes; assignments and imports declare names in the scope on
// top of the stack at the statement's line.
package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/ftracer/internal/rangetree"
	"github.com/jward/ftracer/internal/scope"
)

var (
	// ErrSyntax is wrapped by SyntaxError.
	ErrSyntax = errors.New("syntax error")

	// ErrUnresolvableTarget is recorded for assignment targets that are not
	// a name or an attribute, such as subscripts.
	ErrUnresolvableTarget = errors.New("unresolvable assignment target")

	// ErrUnsupportedLanguage is returned for files the indexer has no grammar for.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// SyntaxError locates the first parse error in a module.
type SyntaxError struct {
	Path   string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("indexer: %s:%d:%d: %v", e.Path, e.Line, e.Column, ErrSyntax)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// Skipped is an assignment target the indexer could not name.
type Skipped struct {
	Line int
	// NodeType is the tree-sitter node type of the target.
	NodeType string
	Text     string
	Err      error
}

func (s Skipped) String() string {
	return fmt.Sprintf("line %d: %s %q: %v", s.Line, s.NodeType, s.Text, s.Err)
}

// Result is the outcome of indexing one module.
type Result struct {
	Index   *scope.Index
	Skipped []Skipped
}

// HashSource returns the hex sha256 of src.
func HashSource(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}

// NormalizePath returns the absolute path of p with symlinks resolved, or
// the cleaned absolute path when p does not exist. Indices, caches and the
// tracer key modules by this form.
func NormalizePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// Index reads and indexes the module at path. The index is keyed by
// NormalizePath(path).
func Index(ctx context.Context, path string) (*Result, error) {
	abs, err := NormalizePath(path)
	if err != nil {
		return nil, fmt.Errorf("indexer: resolve %s: %w", path, err)
	}
	if _, ok := LanguageForFile(abs); !ok {
		return nil, fmt.Errorf("indexer: %s: %w", path, ErrUnsupportedLanguage)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("indexer: read %s: %w", path, err)
	}
	return IndexSource(ctx, abs, src)
}

// IndexSource indexes src as the module at path. path is used as given.
func IndexSource(ctx context.Context, path string, src []byte) (*Result, error) {
	tree, err := Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxErrorAt(path, root)
	}

	w := &walker{
		src:   src,
		index: scope.NewIndex(path, HashSource(src)),
	}
	if err := w.module(root, filepath.Base(path)); err != nil {
		return nil, fmt.Errorf("indexer: %s: %w", path, err)
	}
	return &Result{Index: w.index, Skipped: w.skipped}, nil
}

func syntaxErrorAt(path string, root *sitter.Node) error {
	e := &SyntaxError{Path: path}
	if n := firstError(root); n != nil {
		p := n.StartPoint()
		if l, err := line(p); err == nil {
			e.Line = l
		}
		if c, err := column(p); err == nil {
			e.Column = c
		}
	}
	return e
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

type walker struct {
	src     []byte
	index   *scope.Index
	stack   []*scope.Scope
	skipped []Skipped
}

func (w *walker) top() *scope.Scope {
	return w.stack[len(w.stack)-1]
}

// line converts a zero-based tree-sitter row to a one-based line.
func line(p sitter.Point) (int, error) {
	row, err := safecast.Conv[int](p.Row)
	if err != nil {
		return 0, fmt.Errorf("row %d: %w", p.Row, err)
	}
	return row + 1, nil
}

// column converts a zero-based tree-sitter column to a one-based column.
func column(p sitter.Point) (int, error) {
	col, err := safecast.Conv[int](p.Column)
	if err != nil {
		return 0, fmt.Errorf("column %d: %w", p.Column, err)
	}
	return col + 1, nil
}

// span returns the line range of n. A node ending at column 0 of a later
// row ends on the previous line.
func span(n *sitter.Node) (rangetree.Range, error) {
	start, err := line(n.StartPoint())
	if err != nil {
		return rangetree.Range{}, err
	}
	endPoint := n.EndPoint()
	end, err := line(endPoint)
	if err != nil {
		return rangetree.Range{}, err
	}
	if endPoint.Column == 0 && end-1 > start {
		end--
	}
	return rangetree.Range{Start: start, End: end}, nil
}

func (w *walker) module(root *sitter.Node, base string) error {
	var first, last *sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if first == nil {
			first = child
		}
		last = child
	}

	r := rangetree.Range{Start: 1, End: 1}
	if first != nil {
		fr, err := span(first)
		if err != nil {
			return err
		}
		lr, err := span(last)
		if err != nil {
			return err
		}
		r = rangetree.Range{Start: fr.Start, End: lr.End}
	}

	s := scope.New("module:"+base, scope.KindModule, r)
	if err := w.index.AddScope(s); err != nil {
		return err
	}
	w.stack = append(w.stack, s)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()
	return w.children(root)
}

func (w *walker) children(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := w.visit(n.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visit(n *sitter.Node) error {
	switch n.Type() {
	case "function_definition":
		return w.definition(n, scope.KindFunction)
	case "class_definition":
		return w.definition(n, scope.KindClass)
	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			return w.children(n)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() == "decorator" {
				if err := w.references(child); err != nil {
					return err
				}
			}
		}
		kind := scope.KindFunction
		if def.Type() == "class_definition" {
			kind = scope.KindClass
		}
		return w.definition(def, kind)
	case "expression_statement":
		return w.expressionStatement(n)
	case "import_statement":
		return w.importStatement(n)
	case "import_from_statement":
		return w.importFromStatement(n)
	case "comment", "future_import_statement":
		return nil
	default:
		return w.children(n)
	}
}

// definition opens a scope over n, declares its name in the enclosing
// scope, then visits the body inside the new scope.
func (w *walker) definition(n *sitter.Node, kind scope.Kind) error {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return w.children(n)
	}
	name := nameNode.Content(w.src)

	r, err := span(n)
	if err != nil {
		return err
	}
	s := scope.New(name, kind, r)
	if err := w.index.AddScope(s); err != nil {
		return err
	}
	w.top().Declare(name, scope.DeclDefinition, 0)

	// Defaults and base classes evaluate in the enclosing scope.
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			if err := w.references(params.NamedChild(i).ChildByFieldName("value")); err != nil {
				return err
			}
		}
	}
	if err := w.references(n.ChildByFieldName("superclasses")); err != nil {
		return err
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	w.stack = append(w.stack, s)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()
	return w.children(body)
}

func (w *walker) expressionStatement(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "assignment" {
			if err := w.references(child); err != nil {
				return err
			}
			continue
		}
		if err := w.assignment(n, child); err != nil {
			return err
		}
	}
	return nil
}

// assignment declares every target of a (possibly chained) assignment at
// the statement line. Annotations without a value bind nothing.
func (w *walker) assignment(stmt, n *sitter.Node) error {
	ln, err := line(stmt.StartPoint())
	if err != nil {
		return err
	}

	var targets []*sitter.Node
	cur := n
	for cur != nil && cur.Type() == "assignment" {
		right := cur.ChildByFieldName("right")
		if right == nil {
			if typ := cur.ChildByFieldName("type"); typ != nil {
				return w.references(typ)
			}
			return nil
		}
		targets = append(targets, cur.ChildByFieldName("left"))
		if typ := cur.ChildByFieldName("type"); typ != nil {
			if err := w.references(typ); err != nil {
				return err
			}
		}
		cur = right
	}

	s := w.top()
	for _, target := range targets {
		if target == nil {
			continue
		}
		for _, part := range unwrap(target) {
			name, err := resolveTarget(part, w.src)
			if err != nil {
				w.skipped = append(w.skipped, Skipped{
					Line:     ln,
					NodeType: part.Type(),
					Text:     part.Content(w.src),
					Err:      err,
				})
				continue
			}
			s.Declare(name, scope.DeclAssign, ln)
		}
	}
	return w.references(cur)
}

var destructuring = map[string]bool{
	"pattern_list":    true,
	"tuple_pattern":   true,
	"list_pattern":    true,
	"tuple":           true,
	"list":            true,
	"set":             true,
	"expression_list": true,
}

// unwrap returns the elements of a destructuring target one level deep,
// with splats replaced by the name they bind.
func unwrap(target *sitter.Node) []*sitter.Node {
	target = stripParens(target)
	if !destructuring[target.Type()] {
		return []*sitter.Node{target}
	}
	out := make([]*sitter.Node, 0, target.NamedChildCount())
	for i := 0; i < int(target.NamedChildCount()); i++ {
		el := stripParens(target.NamedChild(i))
		if el.Type() == "comment" {
			continue
		}
		if (el.Type() == "list_splat_pattern" || el.Type() == "list_splat") && el.NamedChildCount() == 1 {
			el = el.NamedChild(0)
		}
		out = append(out, el)
	}
	return out
}

func stripParens(n *sitter.Node) *sitter.Node {
	for n.Type() == "parenthesized_expression" && n.NamedChildCount() == 1 {
		n = n.NamedChild(0)
	}
	return n
}

// resolveTarget names an assignment target: identifiers name themselves,
// attributes resolve to their trailing attribute.
func resolveTarget(n *sitter.Node, src []byte) (string, error) {
	switch n.Type() {
	case "identifier":
		return n.Content(src), nil
	case "attribute":
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(src), nil
		}
	}
	return "", ErrUnresolvableTarget
}

func (w *walker) importStatement(n *sitter.Node) error {
	ln, err := line(n.StartPoint())
	if err != nil {
		return err
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if name := importedName(n.NamedChild(i), w.src, true); name != "" {
			w.top().Declare(name, scope.DeclImport, ln)
		}
	}
	return nil
}

func (w *walker) importFromStatement(n *sitter.Node) error {
	ln, err := line(n.StartPoint())
	if err != nil {
		return err
	}
	module := n.ChildByFieldName("module_name")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if module != nil && child.StartByte() == module.StartByte() {
			continue
		}
		if child.Type() == "wildcard_import" {
			continue
		}
		if name := importedName(child, w.src, false); name != "" {
			w.top().Declare(name, scope.DeclImport, ln)
		}
	}
	return nil
}

// importedName returns the name an import clause binds. For plain imports
// "import a.b" binds "a"; in from-imports the clause is a single name.
func importedName(n *sitter.Node, src []byte, plain bool) string {
	switch n.Type() {
	case "aliased_import":
		if alias := n.ChildByFieldName("alias"); alias != nil {
			return alias.Content(src)
		}
		return ""
	case "dotted_name":
		text := n.Content(src)
		if plain {
			if head, _, ok := strings.Cut(text, "."); ok {
				return strings.TrimSpace(head)
			}
		}
		return strings.TrimSpace(text)
	case "identifier":
		return n.Content(src)
	}
	return ""
}

// references records identifiers read by an expression. Attribute names,
// keyword argument names and lambda parameters are not references.
func (w *walker) references(n *sitter.Node) error {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		w.top().Reference(n.Content(w.src))
		return nil
	case "attribute":
		return w.references(n.ChildByFieldName("object"))
	case "keyword_argument":
		return w.references(n.ChildByFieldName("value"))
	case "lambda":
		return w.references(n.ChildByFieldName("body"))
	case "string", "comment":
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := w.references(n.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}
