// Package materialize replays a VM's effect log into a structured Go
// value whose shape matches a def's computed type (spec.md §4.7).
package materialize

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/vm"
)

// Node is the materialized form of a captured tree-sitter node: enough to
// report its kind and source text without holding a live cursor.
type Node struct {
	Kind  bytecode.KindID
	Named bool
	Start uint32
	End   uint32
	Text  string
}

// Enum is the materialized form of a tagged-alternation member: the tag
// name (resolved from the type table) plus its payload value.
type Enum struct {
	Tag   string
	Value any
}

// Replay consumes effects in order against types (to resolve member/enum
// names for the given result type) and source (for Text effects),
// producing a value that is one of: nil, string, Node, []any, map[string]any,
// or Enum, depending on resultType's shape.
func Replay(effects []vm.RuntimeEffect, types *bytecode.TypeTable, resultType bytecode.TypeID, source []byte) (any, error) {
	r := &replayer{types: types, source: source, resultType: resultType}
	for _, e := range effects {
		if err := r.apply(e); err != nil {
			return nil, err
		}
	}
	if len(r.stack) != 0 {
		return nil, fmt.Errorf("materialize: effect log left %d open scope(s)", len(r.stack))
	}
	return r.current, nil
}

// scope is one open Arr/Obj/Enum builder frame.
type scope struct {
	kind  scopeKind
	arr   []any
	obj   map[string]any
	tag   string
	typeID bytecode.TypeID
}

type scopeKind int

const (
	scopeArray scopeKind = iota
	scopeObject
	scopeEnum
)

type replayer struct {
	types      *bytecode.TypeTable
	source     []byte
	resultType bytecode.TypeID
	stack      []*scope
	current    any
}

func (r *replayer) apply(e vm.RuntimeEffect) error {
	switch e.Op {
	case bytecode.EffNode:
		if !e.Node.Valid {
			r.current = nil
			return nil
		}
		r.current = Node{Kind: e.Node.Kind, Named: e.Node.Named, Start: e.Node.Start, End: e.Node.End, Text: extractText(r.source, e.Node)}
	case bytecode.EffText:
		if !e.Node.Valid {
			r.current = ""
			return nil
		}
		r.current = extractText(r.source, e.Node)
	case bytecode.EffNull, bytecode.EffClear:
		r.current = nil
	case bytecode.EffArr:
		r.push(&scope{kind: scopeArray, arr: []any{}})
	case bytecode.EffEndArr:
		s, err := r.pop(scopeArray)
		if err != nil {
			return err
		}
		r.current = s.arr
	case bytecode.EffObj:
		s := &scope{kind: scopeObject, obj: map[string]any{}}
		if len(r.stack) == 0 {
			s.typeID = r.resultType
		}
		r.push(s)
	case bytecode.EffEndObj:
		s, err := r.pop(scopeObject)
		if err != nil {
			return err
		}
		r.current = s.obj
	case bytecode.EffEnum:
		r.push(&scope{kind: scopeEnum, typeID: bytecode.TypeID(e.Operand)})
	case bytecode.EffEndEnum:
		s, err := r.pop(scopeEnum)
		if err != nil {
			return err
		}
		r.current = Enum{Tag: s.tag, Value: r.current}
	case bytecode.EffPush:
		top, err := r.top(scopeArray)
		if err != nil {
			return err
		}
		top.arr = append(top.arr, r.current)
	case bytecode.EffSet:
		top := r.topAny()
		if top == nil {
			return fmt.Errorf("materialize: Set outside any open scope")
		}
		switch top.kind {
		case scopeObject:
			name := r.memberName(top, e.Operand)
			top.obj[name] = r.current
		case scopeEnum:
			top.tag = r.memberName(top, e.Operand)
		default:
			return fmt.Errorf("materialize: Set inside array scope")
		}
	case bytecode.EffSuppressBegin, bytecode.EffSuppressEnd:
		// Never logged (the VM tracks suppress depth internally); a module
		// that somehow emits one is a no-op here.
	default:
		return fmt.Errorf("materialize: unhandled effect op %d", e.Op)
	}
	return nil
}

func (r *replayer) memberName(s *scope, operand uint16) string {
	members := r.types.Members(s.typeID)
	if int(operand) >= len(members) {
		return fmt.Sprintf("_%d", operand)
	}
	return r.types.Strings().Lookup(members[operand].Name)
}

func (r *replayer) push(s *scope) { r.stack = append(r.stack, s) }

func (r *replayer) pop(want scopeKind) (*scope, error) {
	if len(r.stack) == 0 {
		return nil, fmt.Errorf("materialize: unbalanced scope close")
	}
	s := r.stack[len(r.stack)-1]
	if s.kind != want {
		return nil, fmt.Errorf("materialize: scope close mismatch")
	}
	r.stack = r.stack[:len(r.stack)-1]
	return s, nil
}

func (r *replayer) top(want scopeKind) (*scope, error) {
	if len(r.stack) == 0 || r.stack[len(r.stack)-1].kind != want {
		return nil, fmt.Errorf("materialize: no open scope of expected kind")
	}
	return r.stack[len(r.stack)-1], nil
}

func (r *replayer) topAny() *scope {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

func extractText(source []byte, n vm.NodeRef) string {
	if int(n.End) > len(source) || n.Start > n.End {
		return ""
	}
	return string(source[n.Start:n.End])
}
