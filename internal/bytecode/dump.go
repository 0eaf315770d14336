package bytecode

import (
	"fmt"
	"strings"
)

// Dump renders a human-readable disassembly of a module, in the spirit of
// the original crate's bytecode/dump.rs. Per spec.md §1 the dump formatter
// is "derivative of the module format" and out of scope for any behavioral
// contract; it exists here only so tests can diff bytecode round-trips with
// go-difflib instead of comparing raw bytes by eye.
func Dump(m *Module) string {
	var b strings.Builder

	fmt.Fprintf(&b, "strings (%d):\n", m.Strings.Len())
	for i, s := range m.Strings.All() {
		fmt.Fprintf(&b, "  S%-4d %q\n", i, s)
	}

	fmt.Fprintf(&b, "types (%d):\n", m.Types.Len())
	for i, d := range m.Types.AllDefs() {
		id := TypeID(i)
		name, _ := m.Types.NameOf(id)
		switch d.Tag {
		case TagStruct, TagEnum:
			fmt.Fprintf(&b, "  T%-4d %s %s {\n", i, d.Tag, name)
			for _, mem := range m.Types.Members(id) {
				opt := ""
				if mem.Optional {
					opt = "?"
				}
				fmt.Fprintf(&b, "    %s: T%d%s\n", m.Strings.Lookup(mem.Name), mem.Type, opt)
			}
			b.WriteString("  }\n")
		case TagOptional:
			fmt.Fprintf(&b, "  T%-4d Optional(T%d)\n", i, d.A)
		case TagArray:
			fmt.Fprintf(&b, "  T%-4d Array(T%d, non_empty=%v)\n", i, d.A, d.NonEmpty())
		default:
			fmt.Fprintf(&b, "  T%-4d %s %s\n", i, d.Tag, name)
		}
	}

	fmt.Fprintf(&b, "entrypoints (%d):\n", len(m.Entrypoints))
	for _, e := range m.Entrypoints {
		fmt.Fprintf(&b, "  %-16s -> ip#%-4d : T%d\n", m.Strings.Lookup(e.Name), e.Target, e.ResultType)
	}

	fmt.Fprintf(&b, "transitions (%d steps):\n", len(m.Transitions))
	for addr := StepAddr(0); int(addr) < len(m.Transitions); {
		if m.Transitions[addr].IsPadding() {
			fmt.Fprintf(&b, "  ip#%-4d  (padding)\n", addr)
			addr++
			continue
		}
		instr, err := Decode(m.Transitions, addr)
		if err != nil {
			fmt.Fprintf(&b, "  ip#%-4d  <decode error: %v>\n", addr, err)
			addr++
			continue
		}
		fmt.Fprintf(&b, "  ip#%-4d  %s\n", addr, dumpInstr(m, instr))
		addr += StepAddr(instr.Width)
	}

	return b.String()
}

func dumpInstr(m *Module, in Instruction) string {
	switch in.Op {
	case OpReturn:
		return "Return"
	case OpCall:
		c := in.Call
		return fmt.Sprintf("Call nav=%s target=ip#%d next=ip#%d", c.Nav, c.Target, c.Next)
	case OpTrampoline:
		return fmt.Sprintf("Trampoline next=ip#%d", in.Trampoline.Next)
	default:
		mm := in.Match
		var kind string
		switch mm.NodeKind {
		case NodeAny:
			kind = "Any"
		case NodeNamed:
			kind = "Named"
		case NodeAnonymous:
			kind = "Anonymous"
		}
		succ := make([]string, len(mm.Successors))
		for i, s := range mm.Successors {
			succ[i] = fmt.Sprintf("ip#%d", s)
		}
		return fmt.Sprintf("Match nav=%s node=%s succ=[%s]", mm.Nav, kind, strings.Join(succ, ", "))
	}
}
