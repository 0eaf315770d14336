package graph

import (
	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
)

// compileCapture lowers `inner @name[:: type]`. The "epsilon join" pattern:
// inner's own compiled chain already leaves the right thing in the VM's
// matched-node register or effect stream by the time it reaches a shared
// join instruction, so the join only has to add whatever conversion
// (Node/Text) or Fields-wrap the capture's own typing decided, then Set the
// result into the innermost open scope. @_ (Suppress) skips the Set
// entirely — and, if inner is itself Fields-flow, skips the Obj wrap too,
// so a suppressed struct-shaped inner merges straight into whatever scope
// is already open around it.
func (b *builder) compileCapture(n syntax.CapturedExpr, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	innerInfo := b.tinfo.TermInfoOf(n.Inner)

	if n.Suppress {
		return b.compileExpr(n.Inner, nav, hasField, fieldID, exit)
	}

	nodeLike := !n.Annotated && typeinfer.IsNodeLike(n.Inner)
	asText := n.Annotated && n.TypeName == "string"
	memberIdx := b.currentMember(n.Name)

	wrapFields, pre := valueEffects(innerInfo.Flow, nodeLike, asText)
	joinPre := append(append([]bytecode.Effect{}, pre...), bytecode.Effect{Op: bytecode.EffSet, Operand: memberIdx})

	joinIdx := b.reserve()
	b.set(joinIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: joinPre, succ: []int{exit}}})

	if !wrapFields {
		return b.compileExpr(n.Inner, nav, hasField, fieldID, joinIdx)
	}

	structID := structTypeOf(b.types, innerInfo.Flow)
	endObjIdx := b.reserve()
	b.set(endObjIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, post: []bytecode.Effect{{Op: bytecode.EffEndObj}}, succ: []int{joinIdx}}})

	b.pushScope(structID)
	bodyEntry := b.compileExpr(n.Inner, nav, hasField, fieldID, endObjIdx)
	b.popScope()

	startObjIdx := b.reserve()
	b.set(startObjIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffObj}}, succ: []int{bodyEntry}}})
	return startObjIdx
}
