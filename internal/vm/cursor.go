// Package vm implements the cursor-driven backtracking bytecode
// interpreter described in spec.md §4.6/§5: a fetch-decode-execute loop
// over a compiled Module's transitions, navigating a concrete syntax tree
// through the Cursor abstraction below and recording a flat effect log
// that internal/materialize later replays into a typed value.
package vm

import "github.com/plotnik-lang/plotnik/internal/bytecode"

// Node is the VM's view of one CST node: just enough to drive matching and
// to extract text for the effect log (spec.md §6.2).
type Node interface {
	KindID() bytecode.KindID
	IsNamed() bool
	StartByte() uint32
	EndByte() uint32
	Text(source []byte) string
}

// SkipPolicy controls which nodes ContinueSearch steps over while looking
// for the next node to test against a Match instruction (spec.md §4.6):
// Any visits every node, Trivia additionally skips grammar-declared trivia
// nodes, Exact visits no extra nodes at all (used by anchors).
type SkipPolicy uint8

const (
	SkipAny SkipPolicy = iota
	SkipTrivia
	SkipExact
)

// Cursor is the abstract tree-walking interface the VM drives. A concrete
// implementation (internal/cursorts, for a live smacker/go-tree-sitter
// tree) must support O(1) position restore via DescendantIndex/
// GotoDescendant so that VM checkpoints stay O(1) to save and restore
// (spec.md §4.6, §8 property "backtracking is O(1) per checkpoint").
type Cursor interface {
	Node() Node
	FieldID() (bytecode.FieldID, bool)
	Depth() uint32

	// DescendantIndex/GotoDescendant form the checkpoint save/restore pair.
	DescendantIndex() int
	GotoDescendant(idx int)

	GotoParent() bool
	GotoFirstChild() bool
	GotoNextSibling() bool

	// Navigate applies one instruction's Nav tag, moving the cursor and
	// returning the SkipPolicy that should govern the subsequent search
	// (and ok=false if the navigation ran off the tree, e.g. Up past the
	// root or Down into a childless node).
	Navigate(nav bytecode.Nav, upCount uint16) (SkipPolicy, bool)

	// ContinueSearch advances the cursor to the next candidate node under
	// the given skip policy; it returns false once the search space (the
	// current sibling/descendant scope implied by the preceding Navigate)
	// is exhausted.
	ContinueSearch(policy SkipPolicy) bool
}
