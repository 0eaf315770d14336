package graph

import (
	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
)

// withExactness upgrades an Any-family Nav to its Exact-family counterpart.
// The graph compiler only ever distinguishes two tiers of anchoring (no
// anchor -> Any, any adjacent anchor -> Exact) rather than spec.md §4.4's
// full three-tier Any/Skip(trivia)/Exact split; NavNextSkip/NavDownSkip/
// NavUpSkipTrivia remain supported by internal/bytecode and internal/vm but
// this compiler never emits them (see DESIGN.md).
func withExactness(nav bytecode.Nav) bytecode.Nav {
	switch nav {
	case bytecode.NavDown:
		return bytecode.NavDownExact
	case bytecode.NavNext:
		return bytecode.NavNextExact
	case bytecode.NavUp:
		return bytecode.NavUpExact
	default:
		return nav
	}
}

// compileDef compiles one def's body, wrapping it in an Obj/EndObj pair
// when its own inferred flow is Fields (the only case where the body's
// top-level captures need a scope to Set into — a bare scalar/void body
// already leaves the right value in the materializer's current register
// via its own effects).
func (b *builder) compileDef(id bytecode.DefID) {
	d := b.table.Defs[id]
	info := b.tinfo.DefInfo[id]

	retIdx := b.reserve()
	b.set(retIdx, ir{kind: irReturn})

	var entry int
	if info.Flow.Kind == typeinfer.FlowFields {
		structID := b.tinfo.DefType[id]
		endIdx := b.reserve()
		b.set(endIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, post: []bytecode.Effect{{Op: bytecode.EffEndObj}}, succ: []int{retIdx}}})
		b.scopeStack = append(b.scopeStack, structID)
		body := b.compileExpr(d.Body, bytecode.NavStay, false, 0, endIdx)
		b.scopeStack = b.scopeStack[:len(b.scopeStack)-1]
		startIdx := b.reserve()
		b.set(startIdx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, pre: []bytecode.Effect{{Op: bytecode.EffObj}}, succ: []int{body}}})
		entry = startIdx
	} else {
		entry = b.compileExpr(d.Body, bytecode.NavStay, false, 0, retIdx)
	}

	b.defEntry[id] = entry
}

// compileExpr lowers one syntax.Expr, entering via nav (and, if hasField,
// requiring the matched position to occupy fieldID) and jumping to exit on
// success. It returns the ir index of the subexpression's entry point.
func (b *builder) compileExpr(e syntax.Expr, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	switch n := e.(type) {
	case syntax.NamedNode:
		return b.compileNamedNode(n, nav, hasField, fieldID, exit)
	case syntax.AnonymousNode:
		return b.compileAnonymousNode(n, nav, hasField, fieldID, exit)
	case syntax.Ref:
		return b.compileRef(n, nav, hasField, fieldID, exit)
	case syntax.FieldExpr:
		fid, ok := b.nt.FieldID(n.Name)
		return b.compileExpr(n.Value, nav, ok, fid, exit)
	case syntax.SeqExpr:
		entry, _ := b.compileSiblingChain(n.Elems, nav, exit)
		return entry
	case syntax.AltExpr:
		return b.compileAlt(n, nav, hasField, fieldID, exit)
	case syntax.QuantifiedExpr:
		return b.compileQuant(n, nav, hasField, fieldID, exit)
	case syntax.CapturedExpr:
		return b.compileCapture(n, nav, hasField, fieldID, exit)
	case syntax.Anchor, syntax.NegatedField:
		// Only meaningful as children: compileSiblingChain strips anchors
		// and compileNamedNode strips negated fields before calling
		// compileExpr; reached only for a standalone `.` or `!field` body,
		// which matches vacuously.
		return b.epsilon(exit)
	default:
		return b.epsilon(exit)
	}
}

func (b *builder) compileNamedNode(n syntax.NamedNode, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	var negs []bytecode.FieldID
	var kids []syntax.Expr
	for _, c := range n.Children {
		if neg, ok := c.(syntax.NegatedField); ok {
			if fid, ok := b.nt.FieldID(neg.Name); ok {
				negs = append(negs, fid)
			}
			continue
		}
		kids = append(kids, c)
	}

	childEntry := exit
	if len(kids) > 0 {
		upIdx := b.reserve()
		entry, trailingAnchor := b.compileSiblingChain(kids, bytecode.NavDown, upIdx)
		upNav := bytecode.NavUp
		if trailingAnchor {
			upNav = withExactness(upNav)
		}
		b.set(upIdx, ir{kind: irMatch, match: pendingMatch{nav: upNav, upCount: 1, nodeKind: bytecode.NodeAny, succ: []int{exit}}})
		childEntry = entry
	}

	var kindID bytecode.KindID
	var hasKindID bool
	if n.Kind != "_" && n.Kind != "" {
		kindID, hasKindID = b.nt.KindID(n.Kind)
	}

	idx := b.reserve()
	b.set(idx, ir{kind: irMatch, match: pendingMatch{
		nav: nav, nodeKind: bytecode.NodeNamed,
		kindID: kindID, hasKindID: hasKindID,
		hasField: hasField, fieldID: fieldID,
		negFields: negs,
		succ:      []int{childEntry},
	}})
	return idx
}

func (b *builder) compileAnonymousNode(n syntax.AnonymousNode, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	var kindID bytecode.KindID
	var hasKindID bool
	if !n.Any {
		kindID, hasKindID = b.nt.KindID(n.Literal)
	}
	idx := b.reserve()
	b.set(idx, ir{kind: irMatch, match: pendingMatch{
		nav: nav, nodeKind: bytecode.NodeAnonymous,
		kindID: kindID, hasKindID: hasKindID,
		hasField: hasField, fieldID: fieldID,
		succ: []int{exit},
	}})
	return idx
}

func (b *builder) compileRef(n syntax.Ref, nav bytecode.Nav, hasField bool, fieldID bytecode.FieldID, exit int) int {
	calleeID, ok := b.table.ByName[n.Name]
	if !ok {
		// Already diagnosed by internal/resolve; compile as a vacuous
		// pass-through so the rest of the def can still be lowered.
		return b.epsilon(exit)
	}
	idx := b.reserve()
	b.set(idx, ir{kind: irCall, call: pendingCall{nav: nav, hasField: hasField, fieldID: fieldID, callee: calleeID, next: exit}})
	b.pendingRef = append(b.pendingRef, idx)
	return idx
}

// compileSiblingChain compiles a list of sibling elements (a NamedNode's
// children or a SeqExpr's elements), honoring `.` anchors between and
// around them. Anchors are stripped from the element list and instead
// recorded as exactness requirements on the Nav that reaches the adjacent
// element: a leading anchor upgrades the caller-supplied nav, a gap anchor
// upgrades the NavNext between two elements, and a trailing anchor is
// reported back to the caller (a NamedNode uses it to decide NavUp vs
// NavUpExact on its closing ascent).
func (b *builder) compileSiblingChain(elems []syntax.Expr, nav bytecode.Nav, exit int) (int, bool) {
	var real []syntax.Expr
	var gapAnchor []bool
	leadingAnchor := false
	trailingAnchor := false
	pendingGap := false
	sawReal := false

	for _, e := range elems {
		if _, ok := e.(syntax.Anchor); ok {
			if !sawReal {
				leadingAnchor = true
			} else {
				pendingGap = true
				trailingAnchor = true
			}
			continue
		}
		if sawReal {
			gapAnchor = append(gapAnchor, pendingGap)
			pendingGap = false
		}
		trailingAnchor = false
		real = append(real, e)
		sawReal = true
	}

	if len(real) == 0 {
		return exit, leadingAnchor || trailingAnchor
	}

	next := exit
	for i := len(real) - 1; i >= 0; i-- {
		var elemNav bytecode.Nav
		if i == 0 {
			elemNav = nav
			if leadingAnchor {
				elemNav = withExactness(elemNav)
			}
		} else {
			elemNav = bytecode.NavNext
			if gapAnchor[i-1] {
				elemNav = withExactness(elemNav)
			}
		}
		next = b.compileExpr(real[i], elemNav, false, 0, next)
	}
	return next, trailingAnchor
}

// valueEffects reports what post-match effects (if any) turn the
// matched value into the thing a capture or tagged-alt-branch member
// actually stores, and whether the value needs an Obj scope wrapped
// around it first. Fields-flow values Set their own members directly into
// that scope; scalar-flow values have already produced the right current
// value through their own compiled effects (a Ref's callee, a nested
// alternation's own Enum close, ...); void-flow, non-node-like values
// carry nothing, so the stale current register is nulled out rather than
// risk leaking an unrelated value into this slot.
func valueEffects(flow typeinfer.TypeFlow, nodeLike, asText bool) (wrapFields bool, pre []bytecode.Effect) {
	switch {
	case asText:
		return false, []bytecode.Effect{{Op: bytecode.EffText}}
	case nodeLike:
		return false, []bytecode.Effect{{Op: bytecode.EffNode}}
	case flow.Kind == typeinfer.FlowFields:
		return true, nil
	case flow.Kind == typeinfer.FlowVoid:
		return false, []bytecode.Effect{{Op: bytecode.EffNull}}
	default:
		return false, nil
	}
}

// structTypeOf interns flow's fields as a Struct, mirroring
// internal/typeinfer's own flowToType Struct branch exactly (same key
// shape) so it resolves to the very TypeID inference already produced
// instead of allocating a lookalike duplicate.
func structTypeOf(types *bytecode.TypeTable, flow typeinfer.TypeFlow) bytecode.TypeID {
	members := make([]bytecode.TypeMember, 0, len(flow.FieldOrder))
	for _, name := range flow.FieldOrder {
		fi := flow.Fields[name]
		members = append(members, bytecode.TypeMember{
			Name:     types.Strings().Intern(name),
			Type:     fi.Type,
			Optional: fi.Optional,
		})
	}
	return types.Struct(members)
}

func (b *builder) pushScope(id bytecode.TypeID) { b.scopeStack = append(b.scopeStack, id) }
func (b *builder) popScope()                    { b.scopeStack = b.scopeStack[:len(b.scopeStack)-1] }

// currentMember resolves name to its member index within the innermost
// open scope, the index EffSet/EffEnum operands address (spec.md §4.6.4).
// This is a simplification of spec.md §9's globally call-site-deduped
// (name,type) member table: a lexical scope stack derived from the same
// Obj/Enum boundaries the compiler already tracks, rather than a separate
// interning pass (see DESIGN.md).
func (b *builder) currentMember(name string) uint16 {
	top := b.scopeStack[len(b.scopeStack)-1]
	members := b.types.Members(top)
	sid := b.types.Strings().Intern(name)
	for i, m := range members {
		if m.Name == sid {
			return uint16(i)
		}
	}
	return 0
}

func (b *builder) bagDiag(kind diag.Kind, span syntax.Span, text string) {
	b.bag.Add(diag.Message{Kind: kind, Range: diag.Range{SourceID: b.srcID, Start: span.Start, End: span.End}, Text: text})
}
