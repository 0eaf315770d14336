package bytecode

import "fmt"

// StringID indexes the module's string table. StringID(0) is the reserved
// sentinel slot (spec.md §3.3, §9 open questions): never a user string, but
// its exact text is cosmetic.
type StringID uint16

func (s StringID) String() string { return fmt.Sprintf("str#%d", uint16(s)) }

// TypeID indexes the module's type table (TypeDefs section).
type TypeID uint16

func (t TypeID) String() string { return fmt.Sprintf("type#%d", uint16(t)) }

// Reserved type ids for the builtin shapes, always present at fixed slots.
const (
	TypeVoid TypeID = iota
	TypeNode
	TypeString
	firstUserTypeID
)

// DefID identifies a query definition (`Name = expr`).
type DefID uint32

func (d DefID) String() string { return fmt.Sprintf("def#%d", uint32(d)) }

// StepAddr is the address of an instruction, measured in 8-byte steps from
// the start of the transitions section. StepAddr(0) is an ordinary
// address: Match successor lists carry an explicit count, and Call and
// Trampoline treat their Next of 0 like any other address.
type StepAddr uint16

func (a StepAddr) String() string { return fmt.Sprintf("ip#%d", uint16(a)) }

// KindID and FieldID are grammar-supplied numeric ids (spec.md §6.3).
type KindID uint16

type FieldID uint16
