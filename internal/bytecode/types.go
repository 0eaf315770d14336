package bytecode

import "fmt"

// TypeTag identifies which TypeShape variant a TypeDef record holds.
// Ref(DefId) from spec.md §3.2 has no counterpart here: internal/typeinfer
// types a reference to an already-inferred def as that def's own TypeID
// and a reference to a def not yet inferred as Node, so neither the
// in-memory table nor the disk format carries a Ref tag.
type TypeTag uint8

const (
	TagVoid TypeTag = iota
	TagNode
	TagString
	TagCustom
	TagOptional
	TagArray
	TagStruct
	TagEnum
)

func (t TypeTag) String() string {
	switch t {
	case TagVoid:
		return "Void"
	case TagNode:
		return "Node"
	case TagString:
		return "String"
	case TagCustom:
		return "Custom"
	case TagOptional:
		return "Optional"
	case TagArray:
		return "Array"
	case TagStruct:
		return "Struct"
	case TagEnum:
		return "Enum"
	default:
		return "?"
	}
}

// TypeDef is one entry of the on-disk type table. Its 4-byte wire form is
// {Tag: u8, Flags: u8, A: u16}; the meaning of A depends on Tag:
//
//	TagCustom:   unused (Custom always aliases TypeNode; its display name
//	             lives in the TypeNames table instead)
//	TagOptional: A = inner TypeID
//	TagArray:    A = element TypeID, Flags bit0 = non_empty
//	TagStruct:   A = member count; member_start is the running prefix sum
//	             of member counts over all Struct/Enum TypeDefs that
//	             precede this one in table order (recomputed on load,
//	             never stored — this is what lets the element stay 4
//	             bytes while still modeling (member_start, member_count)
//	             per spec.md §4.5)
//	TagEnum:     A = variant count, same prefix-sum rule as TagStruct
type TypeDef struct {
	Tag   TypeTag
	Flags uint8
	A     uint16
}

const flagNonEmpty = 1 << 0

func (d TypeDef) NonEmpty() bool { return d.Flags&flagNonEmpty != 0 }

// TypeMember is a (name_or_tag, type, optional) triple shared by struct
// fields and enum variants — spec.md §9's member-deduplication rule relies
// on exactly this shape being reusable for both. Wire form is 4 bytes:
// {Name: StringID u16, TypeAndFlag: u16} where the top bit of TypeAndFlag
// is the FieldInfo.optional flag and the low 15 bits are the TypeID.
type TypeMember struct {
	Name     StringID
	Type     TypeID
	Optional bool
}

const optionalBit = uint16(1) << 15

func encodeTypeAndFlag(t TypeID, optional bool) uint16 {
	v := uint16(t) &^ optionalBit
	if optional {
		v |= optionalBit
	}
	return v
}

func decodeTypeAndFlag(v uint16) (TypeID, bool) {
	return TypeID(v &^ optionalBit), v&optionalBit != 0
}

// TypeName associates a TypeID with a display name, used for Custom(name)
// aliases and for naming def result types in diagnostics/dumps.
type TypeName struct {
	Type TypeID
	Name StringID
}

// TypeTable is the in-memory arena of TypeShape values, indexed by TypeID,
// that internal/typeinfer builds bottom-up and internal/bytecode emits.
// Structural identity is by canonical (sorted) shape (spec.md §3.2): the
// table interns so equal shapes share an id.
type TypeTable struct {
	defs    []TypeDef
	members []TypeMember
	names   map[TypeID]StringID
	intern  map[string]TypeID
	strings *StringInterner
}

func NewTypeTable(strings *StringInterner) *TypeTable {
	t := &TypeTable{
		names:   make(map[TypeID]StringID),
		intern:  make(map[string]TypeID),
		strings: strings,
	}
	t.defs = append(t.defs, TypeDef{Tag: TagVoid})
	t.defs = append(t.defs, TypeDef{Tag: TagNode})
	t.defs = append(t.defs, TypeDef{Tag: TagString})
	return t
}

func (t *TypeTable) Void() TypeID   { return TypeVoid }
func (t *TypeTable) Node() TypeID   { return TypeNode }
func (t *TypeTable) String() TypeID { return TypeString }

func (t *TypeTable) internDef(key string, def TypeDef) TypeID {
	if id, ok := t.intern[key]; ok {
		return id
	}
	id := TypeID(len(t.defs))
	t.defs = append(t.defs, def)
	t.intern[key] = id
	return id
}

// Custom interns a named alias of Node (spec.md §3.2 "a user-annotated
// alias of Node").
func (t *TypeTable) Custom(name string) TypeID {
	key := fmt.Sprintf("custom:%s", name)
	id := t.internDef(key, TypeDef{Tag: TagCustom})
	t.names[id] = t.strings.Intern(name)
	return id
}

// Optional interns Optional(inner), caching repeated `T?` so they share one
// slot (spec.md §4.5).
func (t *TypeTable) Optional(inner TypeID) TypeID {
	if inner == TypeVoid {
		return TypeVoid
	}
	key := fmt.Sprintf("opt:%d", inner)
	return t.internDef(key, TypeDef{Tag: TagOptional, A: uint16(inner)})
}

// Array interns Array{element, non_empty}.
func (t *TypeTable) Array(element TypeID, nonEmpty bool) TypeID {
	key := fmt.Sprintf("arr:%d:%v", element, nonEmpty)
	flags := uint8(0)
	if nonEmpty {
		flags = flagNonEmpty
	}
	return t.internDef(key, TypeDef{Tag: TagArray, A: uint16(element), Flags: flags})
}

// Struct interns Struct(orderedFields); fields must already be in the
// table's canonical (sorted) field-name order.
func (t *TypeTable) Struct(fields []TypeMember) TypeID {
	key := "struct:"
	for _, f := range fields {
		key += fmt.Sprintf("%d:%d:%v|", f.Name, f.Type, f.Optional)
	}
	if id, ok := t.intern[key]; ok {
		return id
	}
	start := len(t.members)
	t.members = append(t.members, fields...)
	id := TypeID(len(t.defs))
	t.defs = append(t.defs, TypeDef{Tag: TagStruct, A: uint16(len(fields))})
	t.intern[key] = id
	_ = start
	return id
}

// Enum interns Enum(orderedVariants).
func (t *TypeTable) Enum(variants []TypeMember) TypeID {
	key := "enum:"
	for _, v := range variants {
		key += fmt.Sprintf("%d:%d|", v.Name, v.Type)
	}
	if id, ok := t.intern[key]; ok {
		return id
	}
	t.members = append(t.members, variants...)
	id := TypeID(len(t.defs))
	t.defs = append(t.defs, TypeDef{Tag: TagEnum, A: uint16(len(variants))})
	t.intern[key] = id
	return id
}

// NameOf returns the registered display name for a type id, if any (custom
// aliases and named defs).
func (t *TypeTable) NameOf(id TypeID) (string, bool) {
	sid, ok := t.names[id]
	if !ok {
		return "", false
	}
	return t.strings.Lookup(sid), true
}

// SetName records a display name for an existing type id (used for def
// result types, which are usually Struct/Enum ids rather than Custom ids).
func (t *TypeTable) SetName(id TypeID, name string) {
	t.names[id] = t.strings.Intern(name)
}

func (t *TypeTable) Def(id TypeID) TypeDef { return t.defs[id] }

// Members returns a composite type's (member_start, member_count) slice by
// recomputing member_start as the prefix sum of preceding composite defs.
func (t *TypeTable) Members(id TypeID) []TypeMember {
	d := t.defs[id]
	if d.Tag != TagStruct && d.Tag != TagEnum {
		return nil
	}
	start := t.memberStart(id)
	return t.members[start : start+int(d.A)]
}

func (t *TypeTable) memberStart(id TypeID) int {
	start := 0
	for i := TypeID(0); i < id; i++ {
		d := t.defs[i]
		if d.Tag == TagStruct || d.Tag == TagEnum {
			start += int(d.A)
		}
	}
	return start
}

// Strings returns the string interner backing this table's names, so
// consumers (e.g. internal/materialize) can resolve member/tag names
// without holding a second reference to the same interner.
func (t *TypeTable) Strings() *StringInterner { return t.strings }

func (t *TypeTable) Len() int        { return len(t.defs) }
func (t *TypeTable) AllDefs() []TypeDef { return t.defs }
func (t *TypeTable) AllMembers() []TypeMember { return t.members }

func (t *TypeTable) AllNames() []TypeName {
	names := make([]TypeName, 0, len(t.names))
	for id, sid := range t.names {
		names = append(names, TypeName{Type: id, Name: sid})
	}
	return names
}
