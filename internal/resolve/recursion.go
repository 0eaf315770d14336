package resolve

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/syntax"
)

// validateRecursion groups defs into SCCs (by mutual reachability over
// refs) and applies the two validators spec.md §4.2 describes: escape
// analysis and guardedness. Singleton SCCs with no self-reference are
// trivially fine and skipped.
func validateRecursion(t *Table, refs [][]bytecode.DefID, bag *diag.Bag, sourceID int) {
	n := len(refs)
	members := groupByMutualReachability(refs, n)
	byName := t.ByName

	for _, comp := range members {
		if len(comp) == 1 && !references(refs[comp[0]], comp[0]) {
			continue
		}
		set := make(map[int]bool, len(comp))
		for _, v := range comp {
			set[v] = true
		}

		if !anyEscapes(t, comp, set, byName) {
			bag.Add(diag.Message{
				Kind:  diag.KindRecursionNoEscape,
				Range: diag.Range{SourceID: sourceID, Start: t.Defs[comp[0]].Span().Start, End: t.Defs[comp[0]].Span().End},
				Text:  fmt.Sprintf("definitions %s form a cycle with no non-recursive escape", defNames(t, comp)),
			})
		}

		if !allGuarded(t, comp, set, byName) {
			bag.Add(diag.Message{
				Kind:  diag.KindDirectRecursion,
				Range: diag.Range{SourceID: sourceID, Start: t.Defs[comp[0]].Span().Start, End: t.Defs[comp[0]].Span().End},
				Text:  fmt.Sprintf("definitions %s recurse without consuming a tree position", defNames(t, comp)),
			})
		}
	}
}

func defNames(t *Table, comp []int) string {
	s := ""
	for i, v := range comp {
		if i > 0 {
			s += ", "
		}
		if t.Defs[v].Name == "" {
			s += "<default>"
		} else {
			s += t.Defs[v].Name
		}
	}
	return s
}

func references(refs []bytecode.DefID, self int) bool {
	for _, r := range refs {
		if int(r) == self {
			return true
		}
	}
	return false
}

// groupByMutualReachability recomputes SCC membership directly (rather
// than reusing Table.Order, which only needs the flattened id list) so
// each component's member set is available for the escape/guard walks.
func groupByMutualReachability(refs [][]bytecode.DefID, n int) [][]int {
	reach := make([][]bool, n)
	for i := range reach {
		var stack []int
		visited := make([]bool, n)
		stack = append(stack, i)
		visited[i] = true
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, w := range refs[v] {
				wi := int(w)
				if !visited[wi] {
					visited[wi] = true
					stack = append(stack, wi)
				}
			}
		}
		reach[i] = visited
	}

	seen := make([]bool, n)
	var comps [][]int
	for i := 0; i < n; i++ {
		if seen[i] {
			continue
		}
		var comp []int
		for j := 0; j < n; j++ {
			if reach[i][j] && reach[j][i] {
				comp = append(comp, j)
				seen[j] = true
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// anyEscapes implements spec.md §4.2's escape analysis: at least one def
// in the SCC must have a body path that reaches a non-recursive branch
// (i.e. a path through the expression tree containing no ref back into
// the SCC, or passing through a quantifier/alternation branch that can
// skip the recursive path entirely).
func anyEscapes(t *Table, comp []int, set map[int]bool, byName map[string]bytecode.DefID) bool {
	for _, v := range comp {
		if exprEscapes(t.Defs[v].Body, set, byName) {
			return true
		}
	}
	return false
}

// exprEscapes reports whether e has some way to match without passing
// through a ref into the SCC (set).
func exprEscapes(e syntax.Expr, set map[int]bool, byName map[string]bytecode.DefID) bool {
	if e == nil {
		return true
	}
	switch n := e.(type) {
	case syntax.Ref:
		id, ok := byName[n.Name]
		return !ok || !set[int(id)]
	case syntax.NamedNode:
		for _, c := range n.Children {
			if !exprEscapes(c, set, byName) {
				return false
			}
		}
		return true
	case syntax.FieldExpr:
		return exprEscapes(n.Value, set, byName)
	case syntax.SeqExpr:
		for _, c := range n.Elems {
			if !exprEscapes(c, set, byName) {
				return false
			}
		}
		return true
	case syntax.AltExpr:
		for _, b := range n.Branches {
			if exprEscapes(b.Value, set, byName) {
				return true
			}
		}
		return len(n.Branches) == 0
	case syntax.QuantifiedExpr:
		// `?`/`*` can match zero times, which always escapes; `+` escapes
		// only if its body does.
		if n.Quant.MinReps() == 0 {
			return true
		}
		return exprEscapes(n.Inner, set, byName)
	case syntax.CapturedExpr:
		return exprEscapes(n.Inner, set, byName)
	default:
		return true
	}
}

// allGuarded implements spec.md §4.2's guardedness check: every cycle
// through the SCC must pass through at least one construct guaranteed to
// consume a tree position (a NamedNode or AnonymousNode). We approximate
// this per-def: a def is guarded if every path from its body back to a
// ref into the SCC passes through a consuming node; DirectRecursion fires
// if some def has a path that reaches a same-SCC ref without consuming.
func allGuarded(t *Table, comp []int, set map[int]bool, byName map[string]bytecode.DefID) bool {
	for _, v := range comp {
		if hasUnguardedCycleRef(t.Defs[v].Body, set, byName) {
			return false
		}
	}
	return true
}

// hasUnguardedCycleRef walks e looking for a ref into set reachable
// without first crossing a consuming (Named/Anonymous) node.
func hasUnguardedCycleRef(e syntax.Expr, set map[int]bool, byName map[string]bytecode.DefID) bool {
	var walk func(e syntax.Expr, guarded bool) bool
	walk = func(e syntax.Expr, guarded bool) bool {
		if e == nil {
			return false
		}
		switch n := e.(type) {
		case syntax.Ref:
			id, ok := byName[n.Name]
			return !guarded && ok && set[int(id)]
		case syntax.NamedNode:
			for _, c := range n.Children {
				if walk(c, true) {
					return true
				}
			}
			return false
		case syntax.AnonymousNode:
			return false
		case syntax.FieldExpr:
			return walk(n.Value, guarded)
		case syntax.SeqExpr:
			// A sequence is guarded past the first element that itself
			// guarantees consumption (spec.md §4.2): once such an element
			// is found, every later sibling is reached only after a tree
			// position has already been consumed, so scanning stops there
			// rather than flagging siblings that are in fact guarded.
			for _, c := range n.Elems {
				if walk(c, guarded) {
					return true
				}
				if exprGuaranteesConsumption(c) {
					return false
				}
			}
			return false
		case syntax.AltExpr:
			for _, b := range n.Branches {
				if walk(b.Value, guarded) {
					return true
				}
			}
			return false
		case syntax.QuantifiedExpr:
			return walk(n.Inner, guarded)
		case syntax.CapturedExpr:
			return walk(n.Inner, guarded)
		default:
			return false
		}
	}
	return walk(e, false)
}

// exprGuaranteesConsumption reports whether every match of e is guaranteed
// to consume at least one tree position, independent of any surrounding
// guard. Used by hasUnguardedCycleRef to thread guardedness across the
// elements of a SeqExpr left-to-right.
func exprGuaranteesConsumption(e syntax.Expr) bool {
	switch n := e.(type) {
	case syntax.NamedNode, syntax.AnonymousNode:
		return true
	case syntax.Ref:
		return false
	case syntax.AltExpr:
		for _, b := range n.Branches {
			if !exprGuaranteesConsumption(b.Value) {
				return false
			}
		}
		return true
	case syntax.SeqExpr:
		for _, c := range n.Elems {
			if exprGuaranteesConsumption(c) {
				return true
			}
		}
		return false
	case syntax.QuantifiedExpr:
		return n.Quant.MinReps() > 0 && exprGuaranteesConsumption(n.Inner)
	case syntax.FieldExpr:
		return exprGuaranteesConsumption(n.Value)
	case syntax.CapturedExpr:
		return exprGuaranteesConsumption(n.Inner)
	default:
		return false
	}
}
