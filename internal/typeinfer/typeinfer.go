// Package typeinfer computes, bottom-up, each expression's TermInfo =
// (Arity, TypeFlow) and builds the shared bytecode.TypeTable (spec.md
// §3.2, §4.3). The AST is a tree with no node sharing, and the pass keeps
// no memoization table: a one-element sequence infers its element twice,
// and Result.TermInfoOf re-runs inference on the subexpression it is given.
package typeinfer

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/syntax"
)

type Arity uint8

const (
	One Arity = iota
	Many
)

type FlowKind uint8

const (
	FlowVoid FlowKind = iota
	FlowScalar
	FlowFields
)

type FieldInfo struct {
	Type     bytecode.TypeID
	Optional bool
}

// TypeFlow is Void | Scalar(TypeId) | Fields(map). FieldOrder preserves
// first-seen order so emitted Struct member order is deterministic.
type TypeFlow struct {
	Kind       FlowKind
	Scalar     bytecode.TypeID
	Fields     map[string]FieldInfo
	FieldOrder []string
}

type TermInfo struct {
	Arity Arity
	Flow  TypeFlow
}

// Result holds every def's computed TermInfo/result type plus the shared
// type table, ready for internal/graph to consume.
type Result struct {
	Types   *bytecode.TypeTable
	DefInfo []TermInfo
	DefType []bytecode.TypeID

	inf *inferrer
}

// TermInfoOf recomputes a subexpression's TermInfo on demand. The AST has no
// node sharing and infer is a pure function of (resolved def table,
// processed-so-far array) — both already fixed by the time Infer returns —
// so re-running it for a specific subexpression inside internal/graph's
// lowering pass is both safe and idempotent (spec.md §8 "rerunning inference
// on the same AST yields identical TermInfo per node"); the shared
// TypeTable interns structurally, so repeat calls resolve to the same
// TypeIDs instead of allocating duplicates.
func (r *Result) TermInfoOf(e syntax.Expr) TermInfo {
	return r.inf.infer(e)
}

type inferrer struct {
	table     *resolve.Table
	types     *bytecode.TypeTable
	bag       *diag.Bag
	sourceID  int
	defInfo   []TermInfo
	defType   []bytecode.TypeID
	processed []bool
}

// Infer runs type inference over every def in table, in leaves-first SCC
// order (spec.md §4.2's ordering "is used by type inference ... so
// dependencies receive lower ids than dependents"). A Ref to a def that
// has not been processed yet (a forward reference within its own SCC —
// the only way that can happen, since non-cyclic dependencies always
// precede their dependents in this order) is typed as a plain Node rather
// than its eventual precise shape: recovering the exact recursive type
// here would require a forward-patched placeholder in the shared type
// table, which conflicts with the member-table's prefix-sum layout
// (see DESIGN.md); treating the forward edge as an opaque Node capture is
// the documented, deliberately simpler behavior instead.
func Infer(table *resolve.Table, strings *bytecode.StringInterner, bag *diag.Bag, sourceID int) *Result {
	inf := &inferrer{
		table:     table,
		types:     bytecode.NewTypeTable(strings),
		bag:       bag,
		sourceID:  sourceID,
		defInfo:   make([]TermInfo, len(table.Defs)),
		defType:   make([]bytecode.TypeID, len(table.Defs)),
		processed: make([]bool, len(table.Defs)),
	}

	for _, id := range table.Order {
		inf.inferDef(id)
	}

	return &Result{Types: inf.types, DefInfo: inf.defInfo, DefType: inf.defType, inf: inf}
}

func (inf *inferrer) inferDef(id bytecode.DefID) TermInfo {
	d := inf.table.Defs[id]
	info := inf.infer(d.Body)
	inf.defInfo[id] = info
	inf.defType[id] = inf.flowToType(info)
	inf.processed[id] = true
	name := d.Name
	if name == "" {
		name = "DefaultQuery"
	}
	inf.types.SetName(inf.defType[id], name)
	return info
}

func (inf *inferrer) rng(e syntax.Expr) diag.Range {
	return diag.Range{SourceID: inf.sourceID, Start: e.Span().Start, End: e.Span().End}
}

// flowToType realizes a TypeFlow as a concrete TypeID: Void -> TypeVoid,
// Scalar -> that id, Fields -> an interned Struct.
func (inf *inferrer) flowToType(info TermInfo) bytecode.TypeID {
	switch info.Flow.Kind {
	case FlowVoid:
		return inf.types.Void()
	case FlowScalar:
		return info.Flow.Scalar
	default:
		members := make([]bytecode.TypeMember, 0, len(info.Flow.FieldOrder))
		for _, name := range info.Flow.FieldOrder {
			fi := info.Flow.Fields[name]
			members = append(members, bytecode.TypeMember{
				Name:     inf.types.Strings().Intern(name),
				Type:     fi.Type,
				Optional: fi.Optional,
			})
		}
		return inf.types.Struct(members)
	}
}

func (inf *inferrer) infer(e syntax.Expr) TermInfo {
	switch n := e.(type) {
	case syntax.NamedNode:
		// A node's direct children merge into its own Fields exactly like a
		// sequence (scenario C: `(binop left: (E) @l right: (E) @r)` must
		// itself carry Fields{l,r}, not discard them) — but this merge does
		// not recurse through a nested NamedNode's own children a second
		// time, since that nested node already collapsed its children into
		// its own single TermInfo by the same rule.
		merged := TypeFlow{Kind: FlowVoid, Fields: map[string]FieldInfo{}}
		seen := map[string]bool{}
		for _, c := range n.Children {
			info := inf.infer(c)
			if info.Flow.Kind != FlowFields {
				continue
			}
			for _, name := range info.Flow.FieldOrder {
				if seen[name] {
					inf.bag.Add(diag.Message{Kind: diag.KindDuplicateCapture, Range: inf.rng(e),
						Text: fmt.Sprintf("duplicate capture name %q in node", name)})
					continue
				}
				seen[name] = true
				merged.FieldOrder = append(merged.FieldOrder, name)
				merged.Fields[name] = info.Flow.Fields[name]
				merged.Kind = FlowFields
			}
		}
		return TermInfo{Arity: One, Flow: merged}

	case syntax.AnonymousNode:
		return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowVoid}}

	case syntax.Anchor:
		return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowVoid}}

	case syntax.Ref:
		id, ok := inf.table.ByName[n.Name]
		if !ok {
			return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowVoid}}
		}
		if !inf.processed[id] {
			return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowScalar, Scalar: inf.types.Node()}}
		}
		return TermInfo{Arity: inf.defInfo[id].Arity, Flow: TypeFlow{Kind: FlowScalar, Scalar: inf.defType[id]}}

	case syntax.NegatedField:
		return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowVoid}}

	case syntax.FieldExpr:
		inner := inf.infer(n.Value)
		if inner.Arity == Many {
			inf.bag.Add(diag.Message{Kind: diag.KindFieldSequenceValue, Range: inf.rng(e),
				Text: fmt.Sprintf("field %q's value matches more than one position", n.Name)})
		}
		return TermInfo{Arity: One, Flow: inner.Flow}

	case syntax.SeqExpr:
		return inf.inferSeq(n, e)

	case syntax.AltExpr:
		return inf.inferAlt(n, e)

	case syntax.QuantifiedExpr:
		return inf.inferQuant(n, e, false)

	case syntax.CapturedExpr:
		return inf.inferCapture(n, e)

	default:
		return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowVoid}}
	}
}

func (inf *inferrer) inferSeq(n syntax.SeqExpr, e syntax.Expr) TermInfo {
	if len(n.Elems) == 0 {
		return TermInfo{Arity: One, Flow: TypeFlow{Kind: FlowVoid}}
	}
	arity := One
	if len(n.Elems) > 1 {
		arity = Many
	} else {
		arity = inf.infer(n.Elems[0]).Arity
	}

	merged := TypeFlow{Kind: FlowVoid, Fields: map[string]FieldInfo{}}
	seen := map[string]bool{}
	first := true
	for _, c := range n.Elems {
		info := inf.infer(c)
		if first && len(n.Elems) == 1 {
			merged = info.Flow
			first = false
			continue
		}
		if info.Flow.Kind == FlowFields {
			for _, name := range info.Flow.FieldOrder {
				if seen[name] {
					inf.bag.Add(diag.Message{Kind: diag.KindDuplicateCapture, Range: inf.rng(e),
						Text: fmt.Sprintf("duplicate capture name %q in sequence", name)})
					continue
				}
				seen[name] = true
				merged.FieldOrder = append(merged.FieldOrder, name)
				merged.Fields[name] = info.Flow.Fields[name]
				merged.Kind = FlowFields
			}
		}
	}
	if merged.Fields == nil {
		merged.Fields = map[string]FieldInfo{}
	}
	return TermInfo{Arity: arity, Flow: merged}
}

func (inf *inferrer) inferAlt(n syntax.AltExpr, e syntax.Expr) TermInfo {
	if n.Tagged {
		members := make([]bytecode.TypeMember, 0, len(n.Branches))
		arity := One
		for _, b := range n.Branches {
			info := inf.infer(b.Value)
			if info.Arity == Many {
				arity = Many
			}
			members = append(members, bytecode.TypeMember{
				Name: inf.types.Strings().Intern(b.Tag),
				Type: inf.flowToType(info),
			})
		}
		enumID := inf.types.Enum(members)
		return TermInfo{Arity: arity, Flow: TypeFlow{Kind: FlowScalar, Scalar: enumID}}
	}

	var result TypeFlow
	result.Fields = map[string]FieldInfo{}
	arity := One
	first := true
	for _, b := range n.Branches {
		info := inf.infer(b.Value)
		if info.Arity == Many {
			arity = Many
		}
		if first {
			result = cloneFlow(info.Flow)
			first = false
			continue
		}
		result = inf.unify(result, info.Flow, e)
	}
	return TermInfo{Arity: arity, Flow: result}
}

func cloneFlow(f TypeFlow) TypeFlow {
	out := TypeFlow{Kind: f.Kind, Scalar: f.Scalar}
	if f.Kind == FlowFields {
		out.Fields = make(map[string]FieldInfo, len(f.Fields))
		for k, v := range f.Fields {
			out.Fields[k] = v
		}
		out.FieldOrder = append([]string(nil), f.FieldOrder...)
	}
	return out
}

// unify implements spec.md §4.3's untagged-alternation unification rules.
func (inf *inferrer) unify(a, b TypeFlow, e syntax.Expr) TypeFlow {
	switch {
	case a.Kind == FlowVoid && b.Kind == FlowVoid:
		return TypeFlow{Kind: FlowVoid}
	case a.Kind == FlowScalar && b.Kind == FlowScalar:
		if a.Scalar != b.Scalar {
			inf.bag.Add(diag.Message{Kind: diag.KindIncompatibleCaptureTypes, Range: inf.rng(e),
				Text: "alternation branches capture incompatible types"})
		}
		return a
	case a.Kind == FlowFields && b.Kind == FlowFields:
		return inf.unifyFields(a, b)
	case a.Kind == FlowVoid:
		return b
	case b.Kind == FlowVoid:
		return a
	default:
		inf.bag.Add(diag.Message{Kind: diag.KindIncompatibleStructShapes, Range: inf.rng(e),
			Text: "alternation mixes scalar-capturing and field-capturing branches"})
		return a
	}
}

func (inf *inferrer) unifyFields(a, b TypeFlow) TypeFlow {
	out := TypeFlow{Kind: FlowFields, Fields: map[string]FieldInfo{}}
	order := append([]string(nil), a.FieldOrder...)
	for _, name := range b.FieldOrder {
		if _, ok := a.Fields[name]; !ok {
			order = append(order, name)
		}
	}
	for _, name := range order {
		af, aok := a.Fields[name]
		bf, bok := b.Fields[name]
		switch {
		case aok && bok:
			out.Fields[name] = FieldInfo{Type: af.Type, Optional: af.Optional || bf.Optional}
		case aok:
			out.Fields[name] = FieldInfo{Type: af.Type, Optional: true}
		default:
			out.Fields[name] = FieldInfo{Type: bf.Type, Optional: true}
		}
	}
	out.FieldOrder = order
	return out
}

// inferQuant takes captured explicitly rather than re-deriving it from e's
// parent, since e is always the QuantifiedExpr itself here (a type switch
// can't see its caller) — inferCapture passes true when this quantifier is
// its direct Inner, so the dimensionality diagnostic only fires for a bare
// `e*`/`e+` with field captures and no wrapping struct capture.
func (inf *inferrer) inferQuant(n syntax.QuantifiedExpr, e syntax.Expr, captured bool) TermInfo {
	inner := inf.infer(n.Inner)

	if n.Quant.MinReps() == 0 && n.Quant != syntax.QuantStar && n.Quant != syntax.QuantStarLazy {
		// `?`
		if inner.Flow.Kind == FlowFields {
			opt := cloneFlow(inner.Flow)
			for k, v := range opt.Fields {
				v.Optional = true
				opt.Fields[k] = v
			}
			return TermInfo{Arity: inner.Arity, Flow: opt}
		}
		scalar := inf.flowToType(inner)
		return TermInfo{Arity: inner.Arity, Flow: TypeFlow{Kind: FlowScalar, Scalar: inf.types.Optional(scalar)}}
	}

	// `*` / `+`
	if inner.Flow.Kind == FlowFields && !captured {
		inf.bag.Add(diag.Message{Kind: diag.KindStrictDimensionalityViolation, Range: inf.rng(e),
			Text: "repeated expression with field captures must be wrapped in a struct capture"})
	}
	element := inf.flowToType(inner)
	nonEmpty := n.Quant == syntax.QuantPlus || n.Quant == syntax.QuantPlusLazy
	arr := inf.types.Array(element, nonEmpty)
	return TermInfo{Arity: Many, Flow: TypeFlow{Kind: FlowScalar, Scalar: arr}}
}

// IsNodeLike reports whether e is a bare node-matching construct (a
// NamedNode, AnonymousNode, Anchor, or NegatedField, optionally wrapped in a
// FieldExpr or a `?`/`??` quantifier) — the cases whose unannotated captured type is the matched
// Node itself rather than whatever flowToType(inner) would compute (which
// for these constructs is Void, since they contribute nothing to sequence
// merging on their own).
func IsNodeLike(e syntax.Expr) bool {
	switch n := e.(type) {
	case syntax.FieldExpr:
		return IsNodeLike(n.Value)
	case syntax.QuantifiedExpr:
		return (n.Quant == syntax.QuantOpt || n.Quant == syntax.QuantOptLazy) && IsNodeLike(n.Inner)
	case syntax.NamedNode, syntax.AnonymousNode, syntax.Anchor, syntax.NegatedField:
		return true
	default:
		_ = n
		return false
	}
}

func (inf *inferrer) inferCapture(n syntax.CapturedExpr, e syntax.Expr) TermInfo {
	var inner TermInfo
	optional := false
	if q, ok := n.Inner.(syntax.QuantifiedExpr); ok {
		inner = inf.inferQuant(q, n.Inner, true)
		optional = q.Quant == syntax.QuantOpt || q.Quant == syntax.QuantOptLazy
	} else {
		inner = inf.infer(n.Inner)
	}

	var ty bytecode.TypeID
	switch {
	case n.Annotated && n.TypeName == "string":
		ty = inf.types.String()
	case n.Annotated:
		ty = inf.types.Custom(n.TypeName)
	case IsNodeLike(n.Inner):
		ty = inf.types.Node()
	default:
		ty = inf.flowToType(inner)
	}

	if n.Suppress {
		return TermInfo{Arity: inner.Arity, Flow: TypeFlow{Kind: FlowVoid}}
	}

	return TermInfo{Arity: inner.Arity, Flow: TypeFlow{
		Kind:       FlowFields,
		Fields:     map[string]FieldInfo{n.Name: {Type: ty, Optional: optional}},
		FieldOrder: []string{n.Name},
	}}
}
