package vm

import "github.com/plotnik-lang/plotnik/internal/bytecode"

// RuntimeEffect is one entry of the EffectLog spec.md §4.6.1 describes. It
// mirrors bytecode.Effect's Op vocabulary but, unlike the compiled form
// baked into a Match instruction's payload, carries the actual matched
// node's byte range so the materializer can extract text or describe the
// node without re-walking the tree.
type RuntimeEffect struct {
	Op      bytecode.EffectOp
	Operand uint16
	Node    NodeRef
}

// NodeRef is a lightweight, cursor-independent reference to a matched
// node, captured at the moment of a Node/Text effect.
type NodeRef struct {
	Valid bool
	Kind  bytecode.KindID
	Named bool
	Start uint32
	End   uint32
}
