package graph

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
)

func diagProgramTooLarge(srcID, total int) diag.Message {
	return diag.Message{
		Kind:  diag.KindProgramTooLarge,
		Range: diag.Range{SourceID: srcID},
		Text:  fmt.Sprintf("compiled program needs %d instruction steps, exceeds the 65535-step StepAddr range", total),
	}
}

// slotCount mirrors internal/bytecode's own payload-slot accounting
// (EncodeMatch), needed here only to predict each Match's width before any
// address is known — addresses fall out of a running sum of widths, since
// a Match's width depends solely on its own effect/successor counts, never
// on where anything else ends up.
func slotCount(m pendingMatch) int {
	n := 0
	if m.nav.HasUpCount() {
		n++
	}
	n += len(m.negFields)
	n += len(m.pre) + len(m.post)
	if m.predicate != nil {
		n += 2
	}
	n += len(m.succ)
	return n
}

// matchWidth mirrors internal/bytecode.widthForSlots' width selection
// (unexported there, since only EncodeMatch needs it on that side) so this
// package can predict widths before calling EncodeMatch itself.
func matchWidth(m pendingMatch) int {
	slots := slotCount(m)
	extraSteps := (slots + 3) / 4
	switch {
	case extraSteps == 0:
		return 1
	case extraSteps == 1:
		return 2
	case extraSteps == 2:
		return 3
	case extraSteps == 3:
		return 4
	case extraSteps <= 5:
		return 6
	default:
		return 8
	}
}

// layout assigns every ir node a final bytecode.StepAddr (by summing
// widths in ir-index order, which already matches append order) and
// encodes the arena into a flat transitions stream.
func (b *builder) layout() ([]bytecode.Step, []bytecode.StepAddr, error) {
	n := len(b.irs)
	width := make([]int, n)
	addr := make([]bytecode.StepAddr, n)

	total := 0
	for i, node := range b.irs {
		w := 1
		if node.kind == irMatch {
			w = matchWidth(node.match)
		}
		width[i] = w
		addr[i] = bytecode.StepAddr(total)
		total += w
	}

	if total > 1<<16-1 {
		b.bag.Add(diagProgramTooLarge(b.srcID, total))
		return nil, nil, fmt.Errorf("graph: program too large: %d steps exceeds StepAddr range", total)
	}

	steps := make([]bytecode.Step, 0, total)
	for _, node := range b.irs {
		switch node.kind {
		case irReturn:
			steps = append(steps, bytecode.EncodeReturn())
		case irCall:
			c := node.call
			encoded := bytecode.EncodeCall(bytecode.CallInstr{
				Nav:      c.nav,
				HasField: c.hasField,
				FieldID:  c.fieldID,
				Target:   addr[c.callTargetIR],
				Next:     addr[c.next],
			})
			steps = append(steps, encoded)
		default:
			m := node.match
			succ := make([]bytecode.StepAddr, len(m.succ))
			for i, s := range m.succ {
				succ[i] = addr[s]
			}
			encoded, err := bytecode.EncodeMatch(bytecode.MatchInstr{
				Nav:         m.nav,
				UpCount:     m.upCount,
				NodeKind:    m.nodeKind,
				KindID:      m.kindID,
				HasKindID:   m.hasKindID,
				HasField:    m.hasField,
				FieldID:     m.fieldID,
				NegFields:   m.negFields,
				PreEffects:  m.pre,
				PostEffects: m.post,
				Predicate:   m.predicate,
				Successors:  succ,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("graph: %w", err)
			}
			steps = append(steps, encoded...)
		}
	}

	return steps, addr, nil
}
