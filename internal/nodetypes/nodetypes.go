// Package nodetypes implements the grammar database lookup spec.md §6.3
// describes: resolving a grammar's node-kind and field names to numeric
// ids, and enumerating trivia kinds. A table is either "linked" (ids
// resolved up front) or "unlinked" (an empty table whose lookups all
// fail; it does not keep the names for later resolution).
package nodetypes

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
)

// Table is a NodeTypes lookup: grammar symbol name -> numeric id, plus the
// trivia set to skip during Skip-policy navigation.
type Table struct {
	kindByName  map[string]bytecode.KindID
	nameByKind  map[bytecode.KindID]string
	fieldByName map[string]bytecode.FieldID
	nameByField map[bytecode.FieldID]string
	trivia      map[bytecode.KindID]bool
	linked      bool
}

func newTable(linked bool) *Table {
	return &Table{
		kindByName:  make(map[string]bytecode.KindID),
		nameByKind:  make(map[bytecode.KindID]string),
		fieldByName: make(map[string]bytecode.FieldID),
		nameByField: make(map[bytecode.FieldID]string),
		trivia:      make(map[bytecode.KindID]bool),
		linked:      linked,
	}
}

// FromTreeSitter builds a linked Table directly from a parsed grammar's
// *sitter.Language, deriving kind/field ids from the grammar's own symbol
// table instead of requiring a bespoke per-language table (spec.md §6.3;
// SPEC_FULL.md §10 notes this replaces plotnik-langs' per-language
// registry). `trivia` names the node kinds to treat as skippable (e.g.
// "comment"); unknown names are ignored.
func FromTreeSitter(lang *sitter.Language, trivia []string) *Table {
	t := newTable(true)

	symCount := lang.SymbolCount()
	for i := uint16(0); i < uint16(symCount); i++ {
		sym := sitter.Symbol(i)
		name := lang.SymbolName(sym)
		if name == "" {
			continue
		}
		id := bytecode.KindID(i)
		t.kindByName[name] = id
		t.nameByKind[id] = name
	}

	fieldCount := lang.FieldCount()
	for i := uint16(1); i <= uint16(fieldCount); i++ {
		name := lang.FieldName(int(i))
		if name == "" {
			continue
		}
		id := bytecode.FieldID(i)
		t.fieldByName[name] = id
		t.nameByField[id] = name
	}

	for _, name := range trivia {
		if id, ok := t.kindByName[name]; ok {
			t.trivia[id] = true
		}
	}
	return t
}

// Builtin returns a small, fixed, linked table used by tests: the kinds
// identifier, number, block, statement, pair, key, value, binop, nil, cons
// and comment (comment is trivia), and the fields left, right, head and
// tail, enough to exercise every construct in spec.md's scenarios A-F
// without a real tree-sitter grammar.
func Builtin() *Table {
	t := newTable(true)
	kinds := []string{"identifier", "number", "block", "statement", "pair", "key", "value", "binop", "nil", "cons", "comment"}
	for i, name := range kinds {
		id := bytecode.KindID(i + 1)
		t.kindByName[name] = id
		t.nameByKind[id] = name
	}
	fields := []string{"left", "right", "head", "tail"}
	for i, name := range fields {
		id := bytecode.FieldID(i + 1)
		t.fieldByName[name] = id
		t.nameByField[id] = name
	}
	if id, ok := t.kindByName["comment"]; ok {
		t.trivia[id] = true
	}
	return t
}

// Unlinked returns an empty, unlinked Table. Every KindID/FieldID lookup
// on it fails, and it does not record the names it was asked about, so
// nothing is left to resolve against a concrete grammar later.
func Unlinked() *Table { return newTable(false) }

func (t *Table) Linked() bool { return t.linked }

// KindID resolves a node-kind name; ok is false if unlinked or unknown.
func (t *Table) KindID(name string) (bytecode.KindID, bool) {
	if name == "_" || name == "" {
		return 0, false
	}
	id, ok := t.kindByName[name]
	return id, ok
}

func (t *Table) KindName(id bytecode.KindID) (string, bool) {
	name, ok := t.nameByKind[id]
	return name, ok
}

func (t *Table) FieldID(name string) (bytecode.FieldID, bool) {
	id, ok := t.fieldByName[name]
	return id, ok
}

func (t *Table) FieldName(id bytecode.FieldID) (string, bool) {
	name, ok := t.nameByField[id]
	return name, ok
}

// AllKinds enumerates every known (kind id, name) pair, for emission into
// a module's NodeTypes section.
func (t *Table) AllKinds() []NodeKind {
	out := make([]NodeKind, 0, len(t.nameByKind))
	for id, name := range t.nameByKind {
		out = append(out, NodeKind{ID: id, Name: name})
	}
	return out
}

// AllFields enumerates every known (field id, name) pair, for emission
// into a module's NodeFields section.
func (t *Table) AllFields() []NodeField {
	out := make([]NodeField, 0, len(t.nameByField))
	for id, name := range t.nameByField {
		out = append(out, NodeField{ID: id, Name: name})
	}
	return out
}

// NodeKind and NodeField pair a grammar symbol id with its source name.
type NodeKind struct {
	ID   bytecode.KindID
	Name string
}

type NodeField struct {
	ID   bytecode.FieldID
	Name string
}

func (t *Table) IsTrivia(id bytecode.KindID) bool { return t.trivia[id] }

// TriviaKinds returns every trivia kind id, for emission into the module's
// Trivia section.
func (t *Table) TriviaKinds() []bytecode.KindID {
	out := make([]bytecode.KindID, 0, len(t.trivia))
	for id := range t.trivia {
		out = append(out, id)
	}
	return out
}
