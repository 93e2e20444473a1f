// Package rangetree implements a tree of non-overlapping, properly nested
// integer ranges. Each level keeps its siblings in a red-black tree ordered
// by position, which classifies a new range against the sibling it overlaps,
// and in a start-sorted slice for point queries. Both cost O(log k) per level
// for k siblings.
//
// Parents must be inserted before their children. Inserting a range that
// partially overlaps a sibling, or that would have to adopt an existing
// sibling as its child, fails with ErrUndefinedRelationship.
package rangetree

import (
	"cmp"
	"slices"

	"github.com/sirkon/rbtree"
)

// Node is one range in the tree together with its value and nested ranges.
type Node[V any] struct {
	rng   Range
	value V

	children *rbtree.Tree[*Node[V]]
	// sorted holds the same children ordered by start for point lookups.
	sorted []*Node[V]
}

// Cmp orders nodes as disjoint intervals: -1 if n is strictly before other,
// 1 if strictly after, 0 on any overlap (containment included).
func (n *Node[V]) Cmp(other *Node[V]) int {
	if n.rng.Precedes(other.rng) {
		return -1
	}
	if n.rng.Succeeds(other.rng) {
		return 1
	}
	return 0
}

// Range returns the node's range.
func (n *Node[V]) Range() Range {
	return n.rng
}

// Value returns the value stored with the node.
func (n *Node[V]) Value() V {
	return n.value
}

// Children returns the direct children sorted by start.
func (n *Node[V]) Children() []*Node[V] {
	return slices.Clone(n.sorted)
}

func compareStart[V any](n *Node[V], start int) int {
	return cmp.Compare(n.rng.Start, start)
}

// childAt returns the child containing point, or nil. Siblings are disjoint,
// so only the last child starting at or before point can contain it.
func (n *Node[V]) childAt(point int) *Node[V] {
	i, found := slices.BinarySearchFunc(n.sorted, point, compareStart[V])
	if !found {
		i--
	}
	if i < 0 {
		return nil
	}
	if c := n.sorted[i]; c.rng.Contains(point) {
		return c
	}
	return nil
}

// Tree is a non-overlapping range tree. The root carries no value and
// represents "no scope". The zero value is not usable; call New.
type Tree[V any] struct {
	root *Node[V]
	size int
}

// New returns an empty Tree.
func New[V any]() *Tree[V] {
	return &Tree[V]{root: &Node[V]{}}
}

// Len returns the number of inserted ranges.
func (t *Tree[V]) Len() int {
	return t.size
}

// Insert adds r with value v. The new node lands under the deepest existing
// node that encloses r.
func (t *Tree[V]) Insert(r Range, v V) error {
	if !r.Valid() {
		return &ConstructionError{New: r, Err: ErrInvalidRange}
	}

	n := &Node[V]{rng: r, value: v}
	parent := t.root
	for {
		if parent.children == nil {
			parent.children = rbtree.New[*Node[V]]()
		}
		got := parent.children.InsertReturn(n)
		if got == n {
			i, _ := slices.BinarySearchFunc(parent.sorted, r.Start, compareStart[V])
			parent.sorted = slices.Insert(parent.sorted, i, n)
			t.size++
			return nil
		}
		if !got.rng.Encloses(r) {
			existing := got.rng
			return &ConstructionError{New: r, Existing: &existing, Err: ErrUndefinedRelationship}
		}
		parent = got
	}
}

// StackAt returns the nodes whose ranges contain point, outermost first.
// The walk stops at the deepest level where a sibling matches, so a point in
// a gap between the children of a scope yields the stack up to that scope.
// A point outside every top-level range yields an empty stack.
func (t *Tree[V]) StackAt(point int) ([]*Node[V], error) {
	if t.size == 0 {
		return nil, ErrEmptyTree
	}

	var stack []*Node[V]
	for cur := t.root.childAt(point); cur != nil; cur = cur.childAt(point) {
		stack = append(stack, cur)
	}
	return stack, nil
}

// Walk visits every node in pre-order, siblings ordered by start. depth is 0
// for top-level ranges. Returning false from fn skips the node's subtree.
func (t *Tree[V]) Walk(fn func(n *Node[V], depth int) bool) {
	var walk func(n *Node[V], depth int)
	walk = func(n *Node[V], depth int) {
		for _, child := range n.Children() {
			if fn(child, depth) {
				walk(child, depth+1)
			}
		}
	}
	walk(t.root, 0)
}
