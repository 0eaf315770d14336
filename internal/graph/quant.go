package graph

import (
	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
)

func (b *builder) compileQuant(n syntax.QuantifiedExpr, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	isOptional := n.Quant.MinReps() == 0 && n.Quant != syntax.QuantStar && n.Quant != syntax.QuantStarLazy
	if isOptional {
		return b.compileOptional(n, nav, hasField, fieldID, exit)
	}
	return b.compileRepeat(n, nav, hasField, fieldID, exit)
}

// compileOptional lowers `e?`/`e??`. The skip path for a Fields-flow inner
// needs no explicit Null: simply never running inner's Set calls leaves
// those fields absent, which is exactly Optional-fields semantics. Every
// other inner flow clears the matched-node register explicitly so the
// join's EffNode/EffText effect (if any sits downstream) sees "nothing
// matched" rather than a stale value from sibling matching.
func (b *builder) compileOptional(n syntax.QuantifiedExpr, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	innerInfo := b.tinfo.TermInfoOf(n.Inner)
	matchEntry := b.compileExpr(n.Inner, nav, hasField, fieldID, exit)

	var skipTarget int
	if innerInfo.Flow.Kind == typeinfer.FlowFields {
		skipTarget = exit
	} else {
		skipTarget = b.reserve()
		b.set(skipTarget, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffClear}}, succ: []int{exit}}})
	}

	if n.Quant.Greedy() {
		return b.epsilon(matchEntry, skipTarget)
	}
	return b.epsilon(skipTarget, matchEntry)
}

// compileRepeat lowers `e*`/`e+` (and lazy variants): always Array-producing,
// with the first iteration unrolled separately from the loop body because
// it alone uses the caller-supplied nav (e.g. NavDown as a NamedNode's
// first child); every iteration after that is an ordinary sibling advance.
func (b *builder) compileRepeat(n syntax.QuantifiedExpr, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	innerInfo := b.tinfo.TermInfoOf(n.Inner)
	wrapFields := innerInfo.Flow.Kind == typeinfer.FlowFields
	nodeLike := typeinfer.IsNodeLike(n.Inner)
	greedy := n.Quant.Greedy()

	endArrIdx := b.reserve()
	b.set(endArrIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, post: []bytecode.Effect{{Op: bytecode.EffEndArr}}, succ: []int{exit}}})

	branchIdx := b.reserve()
	loopNav := bytecode.NavNext
	if nav == bytecode.NavNextExact {
		loopNav = bytecode.NavNextExact
	}
	loopBodyEntry := b.compileRepeatIteration(n, innerInfo, wrapFields, nodeLike, loopNav, hasField, fieldID, branchIdx)
	if greedy {
		b.set(branchIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, succ: []int{loopBodyEntry, endArrIdx}}})
	} else {
		b.set(branchIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, succ: []int{endArrIdx, loopBodyEntry}}})
	}

	firstEntry := b.compileRepeatIteration(n, innerInfo, wrapFields, nodeLike, nav, hasField, fieldID, branchIdx)

	nonEmpty := n.Quant == syntax.QuantPlus || n.Quant == syntax.QuantPlusLazy
	afterArr := firstEntry
	if !nonEmpty {
		if greedy {
			afterArr = b.epsilon(firstEntry, endArrIdx)
		} else {
			afterArr = b.epsilon(endArrIdx, firstEntry)
		}
	}

	arrStart := b.reserve()
	b.set(arrStart, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffArr}}, succ: []int{afterArr}}})
	return arrStart
}

// compileRepeatIteration compiles one pass through the repeated body,
// wrapping it in Obj/EndObj when each element is itself Fields-flow
// (struct-shaped elements), or tagging the matched node with EffNode when
// the body is a bare node-matching construct; either way the iteration
// ends with Push and continues to cont (either the next iteration's
// decision point or, for the very first call building that point, the
// not-yet-filled branch instruction).
func (b *builder) compileRepeatIteration(n syntax.QuantifiedExpr, innerInfo typeinfer.TermInfo, wrapFields, nodeLike bool, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, cont int) int {
	if wrapFields {
		structID := structTypeOf(b.types, innerInfo.Flow)
		pushIdx := b.reserve()
		b.set(pushIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, post: []bytecode.Effect{{Op: bytecode.EffPush}}, succ: []int{cont}}})
		endObjIdx := b.reserve()
		b.set(endObjIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, post: []bytecode.Effect{{Op: bytecode.EffEndObj}}, succ: []int{pushIdx}}})
		b.pushScope(structID)
		bodyEntry := b.compileExpr(n.Inner, nav, hasField, fieldID, endObjIdx)
		b.popScope()
		startObjIdx := b.reserve()
		b.set(startObjIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffObj}}, succ: []int{bodyEntry}}})
		return startObjIdx
	}

	var pre []bytecode.Effect
	if nodeLike {
		pre = []bytecode.Effect{{Op: bytecode.EffNode}}
	}
	pushIdx := b.reserve()
	b.set(pushIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: pre, post: []bytecode.Effect{{Op: bytecode.EffPush}}, succ: []int{cont}}})
	return b.compileExpr(n.Inner, nav, hasField, fieldID, pushIdx)
}
