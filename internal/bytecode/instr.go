package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Step is one 8-byte instruction slot (spec.md §3.4).
type Step [8]byte

// Opcode occupies the low 4 bits of byte 0 of any instruction (spec.md
// §3.4). The Match opcode has six width variants encoding how many payload
// steps follow the base step.
type Opcode uint8

const (
	OpCall Opcode = iota
	OpReturn
	OpTrampoline
	OpMatch8  // 1 step total
	OpMatch16 // 2 steps total
	OpMatch24 // 3 steps total
	OpMatch32 // 4 steps total
	OpMatch48 // 6 steps total
	OpMatch64 // 8 steps total
)

// stepsForOpcode maps a Match width variant to its total step count. Only
// {1,2,3,4,6,8} are valid total widths (spec.md §3.4); an all-zero Match8 at
// the tail of the transitions section is non-executed padding.
func stepsForOpcode(op Opcode) int {
	switch op {
	case OpCall, OpReturn, OpTrampoline, OpMatch8:
		return 1
	case OpMatch16:
		return 2
	case OpMatch24:
		return 3
	case OpMatch32:
		return 4
	case OpMatch48:
		return 6
	case OpMatch64:
		return 8
	default:
		return 1
	}
}

// widthForSlots picks the smallest Match variant whose payload steps (each
// holding 4 u16 slots) can fit the given number of payload slots, per the
// branch fan-out limit of spec.md §4.4.
func widthForSlots(slots int) (Opcode, int, error) {
	extraSteps := (slots + 3) / 4
	switch {
	case extraSteps == 0:
		return OpMatch8, 1, nil
	case extraSteps == 1:
		return OpMatch16, 2, nil
	case extraSteps == 2:
		return OpMatch24, 3, nil
	case extraSteps == 3:
		return OpMatch32, 4, nil
	case extraSteps <= 5:
		return OpMatch48, 6, nil
	case extraSteps <= 7:
		return OpMatch64, 8, nil
	default:
		return 0, 0, fmt.Errorf("bytecode: match instruction needs %d payload slots, exceeds Match64 capacity (28)", slots)
	}
}

// Nav is the navigation tag on a Match/Call instruction (spec.md §4.4,
// glossary). Up/UpSkipTrivia/UpExact carry an ascend count, stored as a
// leading payload slot on Match (see MatchInstr.UpCount). Call encodes no
// ascend count; the VM navigates a Call with a count of 0.
type Nav uint8

const (
	NavStay Nav = iota
	NavNext
	NavNextSkip
	NavNextExact
	NavDown
	NavDownSkip
	NavDownExact
	NavUp
	NavUpSkipTrivia
	NavUpExact
	NavEpsilon
)

func (n Nav) String() string {
	switch n {
	case NavStay:
		return "Stay"
	case NavNext:
		return "Next"
	case NavNextSkip:
		return "NextSkip"
	case NavNextExact:
		return "NextExact"
	case NavDown:
		return "Down"
	case NavDownSkip:
		return "DownSkip"
	case NavDownExact:
		return "DownExact"
	case NavUp:
		return "Up"
	case NavUpSkipTrivia:
		return "UpSkipTrivia"
	case NavUpExact:
		return "UpExact"
	case NavEpsilon:
		return "Epsilon"
	default:
		return "?"
	}
}

func (n Nav) HasUpCount() bool {
	return n == NavUp || n == NavUpSkipTrivia || n == NavUpExact
}

// NodeTypeKind discriminates Match's node_type payload (spec.md §3.4).
type NodeTypeKind uint8

const (
	NodeAny NodeTypeKind = iota
	NodeNamed
	NodeAnonymous
)

// Effect is a control or data effect attached to a Match's pre/post effect
// lists (spec.md §3.4, §4.6.4). It packs into a u16 slot: top 4 bits are the
// opcode, low 12 bits are an operand (a member or enum-tag index).
type EffectOp uint8

const (
	EffNode EffectOp = iota
	EffText
	EffArr
	EffPush
	EffEndArr
	EffObj
	EffEndObj
	EffSet
	EffEnum
	EffEndEnum
	EffClear
	EffNull
	EffSuppressBegin
	EffSuppressEnd
)

type Effect struct {
	Op      EffectOp
	Operand uint16
}

func encodeEffect(e Effect) uint16 {
	return (uint16(e.Op)&0xF)<<12 | (e.Operand & 0x0FFF)
}

func decodeEffect(v uint16) Effect {
	return Effect{Op: EffectOp(v >> 12), Operand: v & 0x0FFF}
}

// PredicateOp is the string test applied against the matched node's text
// (spec.md §4.6.3).
type PredicateOp uint8

const (
	PredEq PredicateOp = iota
	PredNeq
	PredStartsWith
	PredEndsWith
	PredContains
	PredRegexMatch
	PredRegexNotMatch
)

type Predicate struct {
	Op    PredicateOp
	Value StringID // interpretation (literal vs. regex pattern) follows Op
}

// MatchInstr is the decoded form of a Match instruction.
type MatchInstr struct {
	Nav          Nav
	UpCount      uint16
	NodeKind     NodeTypeKind
	KindID       KindID
	HasKindID    bool
	HasField     bool
	FieldID      FieldID
	NegFields    []FieldID
	PreEffects   []Effect
	PostEffects  []Effect
	Predicate    *Predicate
	Successors   []StepAddr
}

type CallInstr struct {
	Nav      Nav
	HasField bool
	FieldID  FieldID
	Target   StepAddr
	Next     StepAddr
}

type TrampolineInstr struct {
	Next StepAddr
}

// Instruction is the decoded union of every instruction kind.
type Instruction struct {
	Op          Opcode
	Match       *MatchInstr
	Call        *CallInstr
	Trampoline  *TrampolineInstr
	Width       int // total steps occupied
}

func opcodeOf(s Step) Opcode { return Opcode(s[0] & 0x0F) }

// Decode reads the instruction starting at addr from steps.
func Decode(steps []Step, addr StepAddr) (Instruction, error) {
	if int(addr) >= len(steps) {
		return Instruction{}, fmt.Errorf("bytecode: address %d out of range (len=%d)", addr, len(steps))
	}
	head := steps[addr]
	op := opcodeOf(head)
	switch op {
	case OpReturn:
		return Instruction{Op: op, Width: 1}, nil
	case OpCall:
		nav := Nav(head[0] >> 4)
		hasField := head[1]&1 != 0
		field := FieldID(binary.LittleEndian.Uint16(head[2:4]))
		target := StepAddr(binary.LittleEndian.Uint16(head[4:6]))
		next := StepAddr(binary.LittleEndian.Uint16(head[6:8]))
		return Instruction{Op: op, Width: 1, Call: &CallInstr{Nav: nav, HasField: hasField, FieldID: field, Target: target, Next: next}}, nil
	case OpTrampoline:
		next := StepAddr(binary.LittleEndian.Uint16(head[2:4]))
		return Instruction{Op: op, Width: 1, Trampoline: &TrampolineInstr{Next: next}}, nil
	default:
		width := stepsForOpcode(op)
		if int(addr)+width > len(steps) {
			return Instruction{}, fmt.Errorf("bytecode: match at %d overruns transitions (width=%d, len=%d)", addr, width, len(steps))
		}
		m, err := decodeMatch(steps[addr : addr+StepAddr(width)])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Width: width, Match: m}, nil
	}
}

func decodeMatch(steps []Step) (*MatchInstr, error) {
	head := steps[0]
	nav := Nav(head[0] >> 4)
	b1 := head[1]
	nodeKind := NodeTypeKind(b1 & 0x3)
	hasKindID := b1&(1<<2) != 0
	hasField := b1&(1<<3) != 0
	hasPredicate := b1&(1<<4) != 0
	negCount := int((b1 >> 5) & 0x7)
	b2 := head[2]
	preCount := int(b2 & 0x0F)
	postCount := int(b2 >> 4)
	succCount := int(head[3])
	kindID := KindID(binary.LittleEndian.Uint16(head[4:6]))
	fieldID := FieldID(binary.LittleEndian.Uint16(head[6:8]))

	m := &MatchInstr{
		Nav:       nav,
		NodeKind:  nodeKind,
		KindID:    kindID,
		HasKindID: hasKindID,
		HasField:  hasField,
		FieldID:   fieldID,
	}

	slots := flattenSlots(steps[1:])
	idx := 0
	next := func() uint16 {
		v := slots[idx]
		idx++
		return v
	}

	if nav.HasUpCount() {
		m.UpCount = next()
	}
	for i := 0; i < negCount; i++ {
		m.NegFields = append(m.NegFields, FieldID(next()))
	}
	for i := 0; i < preCount; i++ {
		m.PreEffects = append(m.PreEffects, decodeEffect(next()))
	}
	for i := 0; i < postCount; i++ {
		m.PostEffects = append(m.PostEffects, decodeEffect(next()))
	}
	if hasPredicate {
		a := next()
		b := next()
		m.Predicate = &Predicate{Op: PredicateOp(a >> 1), Value: StringID(b)}
	}
	for i := 0; i < succCount; i++ {
		m.Successors = append(m.Successors, StepAddr(next()))
	}
	return m, nil
}

func flattenSlots(steps []Step) []uint16 {
	out := make([]uint16, 0, len(steps)*4)
	for _, s := range steps {
		out = append(out,
			binary.LittleEndian.Uint16(s[0:2]),
			binary.LittleEndian.Uint16(s[2:4]),
			binary.LittleEndian.Uint16(s[4:6]),
			binary.LittleEndian.Uint16(s[6:8]),
		)
	}
	return out
}

// EncodeMatch serializes a MatchInstr into its step sequence, picking the
// narrowest valid width.
func EncodeMatch(m MatchInstr) ([]Step, error) {
	var slots []uint16
	if m.Nav.HasUpCount() {
		slots = append(slots, m.UpCount)
	}
	for _, f := range m.NegFields {
		slots = append(slots, uint16(f))
	}
	for _, e := range m.PreEffects {
		slots = append(slots, encodeEffect(e))
	}
	for _, e := range m.PostEffects {
		slots = append(slots, encodeEffect(e))
	}
	if m.Predicate != nil {
		slots = append(slots, uint16(m.Predicate.Op)<<1)
		slots = append(slots, uint16(m.Predicate.Value))
	}
	for _, s := range m.Successors {
		slots = append(slots, uint16(s))
	}

	op, width, err := widthForSlots(len(slots))
	if err != nil {
		return nil, err
	}

	steps := make([]Step, width)
	head := &steps[0]
	head[0] = byte(op) | byte(m.Nav)<<4
	var b1 byte
	b1 |= byte(m.NodeKind) & 0x3
	if m.HasKindID {
		b1 |= 1 << 2
	}
	if m.HasField {
		b1 |= 1 << 3
	}
	if m.Predicate != nil {
		b1 |= 1 << 4
	}
	b1 |= byte(len(m.NegFields)&0x7) << 5
	head[1] = b1
	head[2] = byte(len(m.PreEffects)&0xF) | byte(len(m.PostEffects)&0xF)<<4
	head[3] = byte(len(m.Successors))
	binary.LittleEndian.PutUint16(head[4:6], uint16(m.KindID))
	binary.LittleEndian.PutUint16(head[6:8], uint16(m.FieldID))

	for i, v := range slots {
		step := i / 4
		off := (i % 4) * 2
		binary.LittleEndian.PutUint16(steps[1+step][off:off+2], v)
	}
	return steps, nil
}

func EncodeCall(c CallInstr) Step {
	var s Step
	s[0] = byte(OpCall) | byte(c.Nav)<<4
	if c.HasField {
		s[1] = 1
	}
	binary.LittleEndian.PutUint16(s[2:4], uint16(c.FieldID))
	binary.LittleEndian.PutUint16(s[4:6], uint16(c.Target))
	binary.LittleEndian.PutUint16(s[6:8], uint16(c.Next))
	return s
}

func EncodeReturn() Step {
	var s Step
	s[0] = byte(OpReturn)
	return s
}

func EncodeTrampoline(t TrampolineInstr) Step {
	var s Step
	s[0] = byte(OpTrampoline)
	binary.LittleEndian.PutUint16(s[2:4], uint16(t.Next))
	return s
}

// PaddingStep is an all-zero Match8, the padding form spec.md §3.4 and §4.4
// describe: decodes as a (non-executed) OpMatch8 with no successors.
func PaddingStep() Step { return Step{} }

func (s Step) IsPadding() bool { return s == Step{} }
