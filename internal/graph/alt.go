package graph

import (
	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/syntax"
)

// compileAlt lowers `[e1 e2 ...]` (untagged) and `[Tag1: e1 Tag2: e2 ...]`
// (tagged). Untagged branches are plain alternatives that Set captures
// directly into whatever scope is already open around the alternation —
// internal/typeinfer already unified their field shapes, so the graph
// compiler needs no extra bookkeeping here. Tagged branches additionally
// wrap each arm in Enum/EndEnum (and Obj/EndObj when an arm's own payload
// is Fields-flow) so the materializer can tell which variant matched.
func (b *builder) compileAlt(n syntax.AltExpr, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	if !n.Tagged {
		entries := make([]int, 0, len(n.Branches))
		for _, br := range n.Branches {
			entries = append(entries, b.compileExpr(br.Value, nav, hasField, fieldID, exit))
		}
		if len(entries) == 1 {
			return entries[0]
		}
		return b.epsilon(entries...)
	}

	ownInfo := b.tinfo.TermInfoOf(n)
	enumID := ownInfo.Flow.Scalar

	entries := make([]int, 0, len(n.Branches))
	for i, br := range n.Branches {
		brInfo := b.tinfo.TermInfoOf(br.Value)
		wrapFields, pre := valueEffects(brInfo.Flow, false, false)

		joinPre := append(append([]bytecode.Effect{}, pre...), bytecode.Effect{Op: bytecode.EffSet, Operand: uint16(i)})
		joinIdx := b.reserve()
		b.set(joinIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: joinPre, post: []bytecode.Effect{{Op: bytecode.EffEndEnum}}, succ: []int{exit}}})

		var bodyHead int
		if wrapFields {
			structID := structTypeOf(b.types, brInfo.Flow)
			endObjIdx := b.reserve()
			b.set(endObjIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, post: []bytecode.Effect{{Op: bytecode.EffEndObj}}, succ: []int{joinIdx}}})
			b.pushScope(structID)
			inner := b.compileExpr(br.Value, nav, hasField, fieldID, endObjIdx)
			b.popScope()
			startObjIdx := b.reserve()
			b.set(startObjIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffObj}}, succ: []int{inner}}})
			bodyHead = startObjIdx
		} else {
			bodyHead = b.compileExpr(br.Value, nav, hasField, fieldID, joinIdx)
		}

		enumStart := b.reserve()
		b.set(enumStart, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffEnum, Operand: uint16(enumID)}}, succ: []int{bodyHead}}})
		entries = append(entries, enumStart)
	}

	if len(entries) == 1 {
		return entries[0]
	}
	return b.epsilon(entries...)
}
