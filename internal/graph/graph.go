// Package graph lowers a resolved, type-inferred def table into the
// symbolic instruction graph that internal/bytecode's Encode* functions
// turn into a module's Transitions section (spec.md §4.4). Compilation
// proceeds def by def in two passes: first every def's body is compiled
// into a flat, append-only instruction arena with Call targets left as
// symbolic DefIDs, then a patch pass resolves those targets to the callee's
// compiled entry address once every def has been compiled at least once
// (this is what makes forward and mutually-recursive refs just work,
// without a separate fixup phase per cycle).
package graph

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
)

// pendingMatch is a MatchInstr under construction: Successors name ir
// indices (this arena's own addressing) rather than the final StepAddrs,
// which aren't known until every instruction's width has been decided.
type pendingMatch struct {
	nav       bytecode.Nav
	upCount   uint16
	nodeKind  bytecode.NodeTypeKind
	kindID    bytecode.KindID
	hasKindID bool
	hasField  bool
	fieldID   bytecode.FieldID
	negFields []bytecode.FieldID
	pre       []bytecode.Effect
	post      []bytecode.Effect
	predicate *bytecode.Predicate
	succ      []int
}

type pendingCall struct {
	nav          bytecode.Nav
	hasField     bool
	fieldID      bytecode.FieldID
	callee       bytecode.DefID
	callTargetIR int // resolved by the patch pass in Compile
	next         int
}

type irKind uint8

const (
	irMatch irKind = iota
	irCall
	irReturn
)

type ir struct {
	kind  irKind
	match pendingMatch
	call  pendingCall
}

// builder accumulates one compilation's instruction arena and the
// bookkeeping needed to resolve Call targets and capture member indices
// after the fact.
type builder struct {
	irs []ir

	table *resolve.Table
	tinfo *typeinfer.Result
	types *bytecode.TypeTable
	nt    *nodetypes.Table
	bag   *diag.Bag
	srcID int

	defEntry   map[bytecode.DefID]int
	pendingRef []int // ir indices of irCall entries needing Target patched

	scopeStack []bytecode.TypeID
}

// reserve appends a placeholder ir node and returns its index; the caller
// fills it in later via set, once its successors are known. Because
// compilation always proceeds in append order, ir index order already
// matches final instruction layout order — no separate reordering pass is
// needed once widths are computed.
func (b *builder) reserve() int {
	b.irs = append(b.irs, ir{})
	return len(b.irs) - 1
}

func (b *builder) set(idx int, v ir) { b.irs[idx] = v }

// epsilon reserves and fills a pass-through Match with no effects, purely
// to name a join point or branch point in the arena.
func (b *builder) epsilon(succ ...int) int {
	idx := b.reserve()
	b.set(idx, ir{kind: irMatch, match: pendingMatch{nav: bytecode.NavEpsilon, succ: succ}})
	return idx
}

// Compile lowers every def in table into module's Transitions and
// Entrypoints, reusing module's already-populated Strings/Types (spec.md
// §4.4, §4.5). The type table must be the same one tinfo built, since
// capture member indices are resolved against it.
func Compile(module *bytecode.Module, table *resolve.Table, tinfo *typeinfer.Result, nt *nodetypes.Table, bag *diag.Bag, srcID int) error {
	b := &builder{
		table:    table,
		tinfo:    tinfo,
		types:    tinfo.Types,
		nt:       nt,
		bag:      bag,
		srcID:    srcID,
		defEntry: make(map[bytecode.DefID]int),
	}

	for _, id := range table.Order {
		b.compileDef(id)
	}
	for _, idx := range b.pendingRef {
		callee := b.irs[idx].call.callee
		entry, ok := b.defEntry[callee]
		if !ok {
			return fmt.Errorf("graph: call to def %d never compiled", callee)
		}
		b.irs[idx].call.callTargetIR = entry
	}

	steps, addrOf, err := b.layout()
	if err != nil {
		return err
	}
	module.Transitions = steps

	module.Entrypoints = make([]bytecode.Entrypoint, 0, len(table.Defs))
	for id := range table.Defs {
		d := table.Defs[id]
		name := d.Name
		if name == "" {
			name = "DefaultQuery"
		}
		module.Entrypoints = append(module.Entrypoints, bytecode.Entrypoint{
			Name:       module.Strings.Intern(name),
			Target:     addrOf[b.defEntry[bytecode.DefID(id)]],
			ResultType: tinfo.DefType[id],
		})
	}
	return nil
}
