// Package cursorts adapts a github.com/smacker/go-tree-sitter parse tree to
// the internal/vm.Cursor interface (spec.md §6.2). It walks the tree once
// in pre-order at construction time, flattening it into an array indexed
// by descendant index; this makes checkpoint save/restore (vm.Cursor's
// DescendantIndex/GotoDescendant pair) an O(1) slice lookup instead of a
// re-walk from the root, matching spec.md's O(1) backtracking requirement.
package cursorts

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/vm"
)

type entry struct {
	node        *sitter.Node
	parent      int // -1 for the root
	firstChild  int // -1 if childless
	nextSibling int // -1 if last child
	fieldID     bytecode.FieldID
	hasField    bool
	depth       uint32
}

// Tree is a flattened, pre-order view of a parsed tree-sitter tree, ready
// to spawn Cursors from. Build one per parse and reuse it across however
// many query runs execute against that parse.
type Tree struct {
	entries []entry
	source  []byte
	types   *nodetypes.Table
}

// NewTree flattens root's subtree in pre-order. types resolves field names
// on each child to the FieldIDs the compiled module expects.
func NewTree(root *sitter.Node, source []byte, types *nodetypes.Table) *Tree {
	t := &Tree{source: source, types: types}
	t.walk(root, -1, 0, 0, false)
	return t
}

func (t *Tree) walk(n *sitter.Node, parent int, depth uint32, fieldID bytecode.FieldID, hasField bool) int {
	idx := len(t.entries)
	t.entries = append(t.entries, entry{
		node:     n,
		parent:   parent,
		fieldID:  fieldID,
		hasField: hasField,
		depth:    depth,
	})
	t.entries[idx].firstChild = -1
	t.entries[idx].nextSibling = -1

	childCount := int(n.ChildCount())
	prevChild := -1
	for i := 0; i < childCount; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		fid, ok := bytecode.FieldID(0), false
		if name := n.FieldNameForChild(i); name != "" {
			if id, found := t.types.FieldID(name); found {
				fid, ok = id, true
			}
		}
		childIdx := t.walk(child, idx, depth+1, fid, ok)
		if prevChild == -1 {
			t.entries[idx].firstChild = childIdx
		} else {
			t.entries[prevChild].nextSibling = childIdx
		}
		prevChild = childIdx
	}
	if prevChild != -1 {
		t.entries[prevChild].nextSibling = -1
	}
	return idx
}

// Root returns a Cursor positioned at the tree's root (descendant index 0).
func (t *Tree) Root() *Cursor { return &Cursor{tree: t, idx: 0} }

// Cursor implements vm.Cursor over a flattened Tree.
type Cursor struct {
	tree *Tree
	idx  int
}

var _ vm.Cursor = (*Cursor)(nil)

func (c *Cursor) cur() entry { return c.tree.entries[c.idx] }

func (c *Cursor) Node() vm.Node { return node{c.cur().node} }

func (c *Cursor) FieldID() (bytecode.FieldID, bool) {
	e := c.cur()
	return e.fieldID, e.hasField
}

func (c *Cursor) Depth() uint32 { return c.cur().depth }

func (c *Cursor) DescendantIndex() int { return c.idx }

func (c *Cursor) GotoDescendant(idx int) { c.idx = idx }

func (c *Cursor) GotoParent() bool {
	p := c.cur().parent
	if p == -1 {
		return false
	}
	c.idx = p
	return true
}

func (c *Cursor) GotoFirstChild() bool {
	fc := c.cur().firstChild
	if fc == -1 {
		return false
	}
	c.idx = fc
	return true
}

func (c *Cursor) GotoNextSibling() bool {
	ns := c.cur().nextSibling
	if ns == -1 {
		return false
	}
	c.idx = ns
	return true
}

// Navigate applies one Nav tag (spec.md §4.4/§4.6). upCount is consumed for
// the Up/UpSkipTrivia/UpExact variants, ascending that many named-node
// levels; the skip policy returned governs the ContinueSearch call that
// follows to locate the instruction's actual match candidate.
func (c *Cursor) Navigate(nav bytecode.Nav, upCount uint16) (vm.SkipPolicy, bool) {
	switch nav {
	case bytecode.NavStay:
		return vm.SkipExact, true
	case bytecode.NavEpsilon:
		return vm.SkipExact, true
	case bytecode.NavNext:
		ok := c.GotoNextSibling()
		return vm.SkipAny, ok
	case bytecode.NavNextSkip:
		ok := c.GotoNextSibling()
		return vm.SkipTrivia, ok
	case bytecode.NavNextExact:
		ok := c.GotoNextSibling()
		return vm.SkipExact, ok
	case bytecode.NavDown:
		ok := c.GotoFirstChild()
		return vm.SkipAny, ok
	case bytecode.NavDownSkip:
		ok := c.GotoFirstChild()
		return vm.SkipTrivia, ok
	case bytecode.NavDownExact:
		ok := c.GotoFirstChild()
		return vm.SkipExact, ok
	case bytecode.NavUp:
		for i := uint16(0); i < upCount; i++ {
			if !c.GotoParent() {
				return vm.SkipAny, false
			}
		}
		return vm.SkipAny, true
	case bytecode.NavUpSkipTrivia:
		for i := uint16(0); i < upCount; i++ {
			if !c.GotoParent() {
				return vm.SkipTrivia, false
			}
		}
		return vm.SkipTrivia, true
	case bytecode.NavUpExact:
		for i := uint16(0); i < upCount; i++ {
			if !c.GotoParent() {
				return vm.SkipExact, false
			}
		}
		return vm.SkipExact, true
	default:
		return vm.SkipAny, false
	}
}

// ContinueSearch advances to the next candidate node reachable from the
// cursor's current position under the given policy. For SkipAny/SkipTrivia
// it walks forward through siblings (descending into the first child of a
// trivia node's sibling run is not needed: trivia is always a leaf-level
// sibling in practice), skipping nodes the grammar marks as trivia when
// policy is SkipTrivia. SkipExact never advances beyond the node Navigate
// already placed the cursor on.
func (c *Cursor) ContinueSearch(policy vm.SkipPolicy) bool {
	if policy == vm.SkipExact {
		return true
	}
	for {
		n := c.cur().node
		if policy == vm.SkipTrivia && c.tree.types.IsTrivia(bytecode.KindID(n.Symbol())) {
			if c.GotoNextSibling() {
				continue
			}
			return false
		}
		return true
	}
}

type node struct{ n *sitter.Node }

func (n node) KindID() bytecode.KindID { return bytecode.KindID(n.n.Symbol()) }
func (n node) IsNamed() bool           { return n.n.IsNamed() }
func (n node) StartByte() uint32       { return n.n.StartByte() }
func (n node) EndByte() uint32         { return n.n.EndByte() }
func (n node) Text(source []byte) string {
	return string(source[n.n.StartByte():n.n.EndByte()])
}
