// Package resolve assigns definition ids, builds the strongly-connected
// component order of the def-reference graph, and validates recursion
// (escape analysis and guardedness), per spec.md §4.2.
package resolve

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/syntax"
)

// Table is the resolved symbol table for one compilation: every def's
// DefId, plus the SCCs in reverse-topological (leaves-first) order.
type Table struct {
	Defs     []syntax.Def
	ByName   map[string]bytecode.DefID
	Order    []bytecode.DefID // SCCs flattened leaves-first; ties broken by source order
	DefaultDef bytecode.DefID
	HasDefault bool
}

// Resolve ingests one or more parsed files as a single symbol table
// (spec.md §4.2: "first-defined wins, duplicates are errors").
func Resolve(files []*syntax.File, bag *diag.Bag, sourceID int) *Table {
	t := &Table{ByName: make(map[string]bytecode.DefID)}

	for _, f := range files {
		for _, d := range f.Defs {
			if d.Name == "" {
				t.DefaultDef = bytecode.DefID(len(t.Defs))
				t.HasDefault = true
				t.Defs = append(t.Defs, d)
				continue
			}
			if _, dup := t.ByName[d.Name]; dup {
				bag.Add(diag.Message{
					Kind:  diag.KindDuplicateDef,
					Range: diag.Range{SourceID: sourceID, Start: d.Span().Start, End: d.Span().End},
					Text:  fmt.Sprintf("duplicate definition %q", d.Name),
				})
				continue
			}
			id := bytecode.DefID(len(t.Defs))
			t.ByName[d.Name] = id
			t.Defs = append(t.Defs, d)
		}
	}

	refs := make([][]bytecode.DefID, len(t.Defs))
	for i, d := range t.Defs {
		refs[i] = collectRefs(d.Body, t.ByName, bag, sourceID)
	}

	t.Order = tarjanLeavesFirst(refs)
	validateRecursion(t, refs, bag, sourceID)
	return t
}

func collectRefs(e syntax.Expr, byName map[string]bytecode.DefID, bag *diag.Bag, sourceID int) []bytecode.DefID {
	var out []bytecode.DefID
	var walk func(syntax.Expr)
	walk = func(e syntax.Expr) {
		if e == nil {
			return
		}
		switch n := e.(type) {
		case syntax.Ref:
			if id, ok := byName[n.Name]; ok {
				out = append(out, id)
			} else {
				bag.Add(diag.Message{
					Kind:  diag.KindUnresolvedRef,
					Range: diag.Range{SourceID: sourceID, Start: n.Span().Start, End: n.Span().End},
					Text:  fmt.Sprintf("reference to undefined definition %q", n.Name),
				})
			}
		case syntax.NamedNode:
			for _, c := range n.Children {
				walk(c)
			}
		case syntax.FieldExpr:
			walk(n.Value)
		case syntax.SeqExpr:
			for _, c := range n.Elems {
				walk(c)
			}
		case syntax.AltExpr:
			for _, b := range n.Branches {
				walk(b.Value)
			}
		case syntax.QuantifiedExpr:
			walk(n.Inner)
		case syntax.CapturedExpr:
			walk(n.Inner)
		}
	}
	walk(e)
	return out
}

// tarjanLeavesFirst computes the def-reference graph's SCCs via Tarjan's
// algorithm and flattens them leaves-first (spec.md §4.2: "within the
// result list leaves come first (reverse topological)").
func tarjanLeavesFirst(refs [][]bytecode.DefID) []bytecode.DefID {
	n := len(refs)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	counter := 0
	var sccs [][]int

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range refs[v] {
			wi := int(w)
			if index[wi] == -1 {
				strongconnect(wi)
				if low[wi] < low[v] {
					low[v] = low[wi]
				}
			} else if onStack[wi] {
				if index[wi] < low[v] {
					low[v] = index[wi]
				}
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				comp = append(comp, top)
				if top == v {
					break
				}
			}
			sccs = append(sccs, comp)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongconnect(v)
		}
	}

	// Tarjan emits SCCs in reverse topological order already (a component
	// is closed only once everything it depends on is closed), which is
	// exactly the leaves-first order spec.md §4.2 wants. Flatten, sorting
	// each component's members by def id for determinism.
	out := make([]bytecode.DefID, 0, n)
	for _, comp := range sccs {
		for i := 1; i < len(comp); i++ {
			for j := i; j > 0 && comp[j] < comp[j-1]; j-- {
				comp[j], comp[j-1] = comp[j-1], comp[j]
			}
		}
		for _, v := range comp {
			out = append(out, bytecode.DefID(v))
		}
	}
	return out
}
