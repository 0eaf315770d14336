// Package bytecode implements Plotnik's on-disk compiled module format
// (spec.md §3.3, §3.4, §6.1): a single framed byte blob with a fixed
// 64-byte header, 64-byte-aligned sections, and a CRC32-checked body.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	Magic      = "PTKQ"
	Version    = 1
	HeaderSize = 64
	sectionAlign = 64
)

// Header mirrors spec.md §6.1's byte-exact layout.
type Header struct {
	Magic             [4]byte
	Version           uint32
	TotalSize         uint32
	Checksum          uint32
	StrTableCount     uint16
	RegexTableCount   uint16
	NodeTypesCount    uint16
	NodeFieldsCount   uint16
	TriviaCount       uint16
	TypeDefsCount     uint16
	TypeMembersCount  uint16
	TypeNamesCount    uint16
	EntrypointsCount  uint16
	TransitionsCount  uint16
	StrBlobSize       uint32
	RegexBlobSize     uint32
}

// NodeTypeEntry and NodeFieldEntry are the grammar symbol tables (spec.md
// §3.3): (kind_id/field_id, name) pairs, 4 bytes each.
type NodeTypeEntry struct {
	Kind KindID
	Name StringID
}

type NodeFieldEntry struct {
	Field FieldID
	Name  StringID
}

// Entrypoint is an exposed, named def (spec.md §3.3), 8 bytes on disk.
type Entrypoint struct {
	Name       StringID
	Target     StepAddr
	ResultType TypeID
}

// Module is the fully decoded in-memory form of a compiled query module.
type Module struct {
	Strings     *StringInterner
	Regexes     *RegexInterner
	NodeTypes   []NodeTypeEntry
	NodeFields  []NodeFieldEntry
	Trivia      []KindID
	Types       *TypeTable
	Entrypoints []Entrypoint
	Transitions []Step
}

func NewModule() *Module {
	strs := NewStringInterner()
	return &Module{
		Strings: strs,
		Regexes: NewRegexInterner(),
		Types:   NewTypeTable(strs),
	}
}

func alignUp(n int) int {
	if r := n % sectionAlign; r != 0 {
		return n + (sectionAlign - r)
	}
	return n
}

// Encode serializes the module to its on-disk byte form.
func (m *Module) Encode() ([]byte, error) {
	if m.Strings.Len() > 1<<16-1 {
		return nil, fmt.Errorf("bytecode: %w: %d strings exceeds 65535", errTableOverflow, m.Strings.Len())
	}
	if m.Types.Len() > 1<<16-1 {
		return nil, fmt.Errorf("bytecode: %w: %d types exceeds 65535", errTableOverflow, m.Types.Len())
	}

	strBlob, strTable := encodeBlobTable(m.Strings.All())
	regexBlob, regexTable := encodeBlobTable(m.Regexes.All())

	nodeTypes := make([]byte, len(m.NodeTypes)*4)
	for i, e := range m.NodeTypes {
		binary.LittleEndian.PutUint16(nodeTypes[i*4:], uint16(e.Kind))
		binary.LittleEndian.PutUint16(nodeTypes[i*4+2:], uint16(e.Name))
	}
	nodeFields := make([]byte, len(m.NodeFields)*4)
	for i, e := range m.NodeFields {
		binary.LittleEndian.PutUint16(nodeFields[i*4:], uint16(e.Field))
		binary.LittleEndian.PutUint16(nodeFields[i*4+2:], uint16(e.Name))
	}
	trivia := make([]byte, len(m.Trivia)*2)
	for i, k := range m.Trivia {
		binary.LittleEndian.PutUint16(trivia[i*2:], uint16(k))
	}

	defs := m.Types.AllDefs()
	typeDefs := make([]byte, len(defs)*4)
	for i, d := range defs {
		typeDefs[i*4] = byte(d.Tag)
		typeDefs[i*4+1] = d.Flags
		binary.LittleEndian.PutUint16(typeDefs[i*4+2:], d.A)
	}
	members := m.Types.AllMembers()
	typeMembers := make([]byte, len(members)*4)
	for i, mem := range members {
		binary.LittleEndian.PutUint16(typeMembers[i*4:], uint16(mem.Name))
		binary.LittleEndian.PutUint16(typeMembers[i*4+2:], encodeTypeAndFlag(mem.Type, mem.Optional))
	}
	names := m.Types.AllNames()
	typeNames := make([]byte, len(names)*4)
	for i, n := range names {
		binary.LittleEndian.PutUint16(typeNames[i*4:], uint16(n.Type))
		binary.LittleEndian.PutUint16(typeNames[i*4+2:], uint16(n.Name))
	}

	entrypoints := make([]byte, len(m.Entrypoints)*8)
	for i, e := range m.Entrypoints {
		binary.LittleEndian.PutUint16(entrypoints[i*8:], uint16(e.Name))
		binary.LittleEndian.PutUint16(entrypoints[i*8+2:], uint16(e.Target))
		binary.LittleEndian.PutUint16(entrypoints[i*8+4:], uint16(e.ResultType))
	}

	transitions := make([]byte, len(m.Transitions)*8)
	for i, s := range m.Transitions {
		copy(transitions[i*8:], s[:])
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))
	writeSectionAligned(&buf, strBlob)
	writeSectionAligned(&buf, strTable)
	writeSectionAligned(&buf, regexBlob)
	writeSectionAligned(&buf, regexTable)
	writeSectionAligned(&buf, nodeTypes)
	writeSectionAligned(&buf, nodeFields)
	writeSectionAligned(&buf, trivia)
	writeSectionAligned(&buf, typeDefs)
	writeSectionAligned(&buf, typeMembers)
	writeSectionAligned(&buf, typeNames)
	writeSectionAligned(&buf, entrypoints)
	writeSectionAligned(&buf, transitions)

	out := buf.Bytes()
	totalSize := len(out)
	if totalSize > 1<<32-1 {
		return nil, fmt.Errorf("bytecode: module too large (%d bytes)", totalSize)
	}

	copy(out[0:4], Magic)
	binary.LittleEndian.PutUint32(out[4:8], Version)
	binary.LittleEndian.PutUint32(out[8:12], uint32(totalSize))
	binary.LittleEndian.PutUint16(out[16:18], uint16(m.Strings.Len()))
	binary.LittleEndian.PutUint16(out[18:20], uint16(m.Regexes.Len()))
	binary.LittleEndian.PutUint16(out[20:22], uint16(len(m.NodeTypes)))
	binary.LittleEndian.PutUint16(out[22:24], uint16(len(m.NodeFields)))
	binary.LittleEndian.PutUint16(out[24:26], uint16(len(m.Trivia)))
	binary.LittleEndian.PutUint16(out[26:28], uint16(len(defs)))
	binary.LittleEndian.PutUint16(out[28:30], uint16(len(members)))
	binary.LittleEndian.PutUint16(out[30:32], uint16(len(names)))
	binary.LittleEndian.PutUint16(out[32:34], uint16(len(m.Entrypoints)))
	binary.LittleEndian.PutUint16(out[34:36], uint16(len(m.Transitions)))
	binary.LittleEndian.PutUint32(out[36:40], uint32(len(strBlob)))
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(regexBlob)))

	checksum := crc32.ChecksumIEEE(out[HeaderSize:])
	binary.LittleEndian.PutUint32(out[12:16], checksum)

	return out, nil
}

func writeSectionAligned(buf *bytes.Buffer, data []byte) {
	buf.Write(data)
	if pad := alignUp(buf.Len()) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

// encodeBlobTable builds a u32-offset table (count+1 entries, final entry
// the blob size) plus the concatenated UTF-8 blob, per spec.md §3.3/§6.1.
func encodeBlobTable(values []string) (blob []byte, table []byte) {
	offsets := make([]uint32, len(values)+1)
	var b bytes.Buffer
	for i, v := range values {
		offsets[i] = uint32(b.Len())
		b.WriteString(v)
	}
	offsets[len(values)] = uint32(b.Len())
	table = make([]byte, len(offsets)*4)
	for i, o := range offsets {
		binary.LittleEndian.PutUint32(table[i*4:], o)
	}
	return b.Bytes(), table
}

var errTableOverflow = fmt.Errorf("table overflow")

// ErrBadMagic, ErrBadVersion, ErrSizeMismatch are Load's fatal validation
// errors (spec.md §4.5, §7).
var (
	ErrBadMagic     = fmt.Errorf("bytecode: bad magic")
	ErrBadVersion   = fmt.Errorf("bytecode: unsupported version")
	ErrSizeMismatch = fmt.Errorf("bytecode: size mismatch")
	ErrTruncated    = fmt.Errorf("bytecode: truncated module")
)

// Load decodes a module from its on-disk byte form, validating magic,
// version, size, and checksum before trusting any section.
func Load(data []byte) (*Module, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}
	if string(data[0:4]) != Magic {
		return nil, ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, version, Version)
	}
	totalSize := binary.LittleEndian.Uint32(data[8:12])
	checksum := binary.LittleEndian.Uint32(data[12:16])
	if int(totalSize) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, got %d bytes", ErrSizeMismatch, totalSize, len(data))
	}
	if got := crc32.ChecksumIEEE(data[HeaderSize:]); got != checksum {
		return nil, fmt.Errorf("bytecode: checksum mismatch: header says %08x, computed %08x", checksum, got)
	}

	h := Header{
		StrTableCount:    binary.LittleEndian.Uint16(data[16:18]),
		RegexTableCount:  binary.LittleEndian.Uint16(data[18:20]),
		NodeTypesCount:   binary.LittleEndian.Uint16(data[20:22]),
		NodeFieldsCount:  binary.LittleEndian.Uint16(data[22:24]),
		TriviaCount:      binary.LittleEndian.Uint16(data[24:26]),
		TypeDefsCount:    binary.LittleEndian.Uint16(data[26:28]),
		TypeMembersCount: binary.LittleEndian.Uint16(data[28:30]),
		TypeNamesCount:   binary.LittleEndian.Uint16(data[30:32]),
		EntrypointsCount: binary.LittleEndian.Uint16(data[32:34]),
		TransitionsCount: binary.LittleEndian.Uint16(data[34:36]),
		StrBlobSize:      binary.LittleEndian.Uint32(data[36:40]),
		RegexBlobSize:    binary.LittleEndian.Uint32(data[40:44]),
	}

	off := HeaderSize
	readSection := func(size int) ([]byte, error) {
		if off+size > len(data) {
			return nil, ErrTruncated
		}
		s := data[off : off+size]
		off += size
		off = alignUp(off)
		return s, nil
	}

	strBlob, err := readSection(int(h.StrBlobSize))
	if err != nil {
		return nil, err
	}
	strTable, err := readSection((int(h.StrTableCount) + 1) * 4)
	if err != nil {
		return nil, err
	}
	regexBlob, err := readSection(int(h.RegexBlobSize))
	if err != nil {
		return nil, err
	}
	regexTable, err := readSection((int(h.RegexTableCount) + 1) * 4)
	if err != nil {
		return nil, err
	}
	nodeTypesRaw, err := readSection(int(h.NodeTypesCount) * 4)
	if err != nil {
		return nil, err
	}
	nodeFieldsRaw, err := readSection(int(h.NodeFieldsCount) * 4)
	if err != nil {
		return nil, err
	}
	triviaRaw, err := readSection(int(h.TriviaCount) * 2)
	if err != nil {
		return nil, err
	}
	typeDefsRaw, err := readSection(int(h.TypeDefsCount) * 4)
	if err != nil {
		return nil, err
	}
	typeMembersRaw, err := readSection(int(h.TypeMembersCount) * 4)
	if err != nil {
		return nil, err
	}
	typeNamesRaw, err := readSection(int(h.TypeNamesCount) * 4)
	if err != nil {
		return nil, err
	}
	entrypointsRaw, err := readSection(int(h.EntrypointsCount) * 8)
	if err != nil {
		return nil, err
	}
	transitionsRaw, err := readSection(int(h.TransitionsCount) * 8)
	if err != nil {
		return nil, err
	}

	if off != len(data) {
		return nil, fmt.Errorf("%w: trailing %d bytes", ErrSizeMismatch, len(data)-off)
	}

	m := &Module{}
	m.Strings = decodeBlobTableStrings(strBlob, strTable, int(h.StrTableCount))
	m.Regexes = decodeBlobTableRegexes(regexBlob, regexTable, int(h.RegexTableCount))

	m.NodeTypes = make([]NodeTypeEntry, h.NodeTypesCount)
	for i := range m.NodeTypes {
		m.NodeTypes[i] = NodeTypeEntry{
			Kind: KindID(binary.LittleEndian.Uint16(nodeTypesRaw[i*4:])),
			Name: StringID(binary.LittleEndian.Uint16(nodeTypesRaw[i*4+2:])),
		}
	}
	m.NodeFields = make([]NodeFieldEntry, h.NodeFieldsCount)
	for i := range m.NodeFields {
		m.NodeFields[i] = NodeFieldEntry{
			Field: FieldID(binary.LittleEndian.Uint16(nodeFieldsRaw[i*4:])),
			Name:  StringID(binary.LittleEndian.Uint16(nodeFieldsRaw[i*4+2:])),
		}
	}
	m.Trivia = make([]KindID, h.TriviaCount)
	for i := range m.Trivia {
		m.Trivia[i] = KindID(binary.LittleEndian.Uint16(triviaRaw[i*2:]))
	}

	defs := make([]TypeDef, h.TypeDefsCount)
	for i := range defs {
		defs[i] = TypeDef{Tag: TypeTag(typeDefsRaw[i*4]), Flags: typeDefsRaw[i*4+1], A: binary.LittleEndian.Uint16(typeDefsRaw[i*4+2:])}
	}
	members := make([]TypeMember, h.TypeMembersCount)
	for i := range members {
		name := StringID(binary.LittleEndian.Uint16(typeMembersRaw[i*4:]))
		typ, optional := decodeTypeAndFlag(binary.LittleEndian.Uint16(typeMembersRaw[i*4+2:]))
		members[i] = TypeMember{Name: name, Type: typ, Optional: optional}
	}
	names := make(map[TypeID]StringID, h.TypeNamesCount)
	for i := 0; i < int(h.TypeNamesCount); i++ {
		tid := TypeID(binary.LittleEndian.Uint16(typeNamesRaw[i*4:]))
		sid := StringID(binary.LittleEndian.Uint16(typeNamesRaw[i*4+2:]))
		names[tid] = sid
	}
	m.Types = &TypeTable{defs: defs, members: members, names: names, intern: map[string]TypeID{}, strings: m.Strings}

	m.Entrypoints = make([]Entrypoint, h.EntrypointsCount)
	for i := range m.Entrypoints {
		m.Entrypoints[i] = Entrypoint{
			Name:       StringID(binary.LittleEndian.Uint16(entrypointsRaw[i*8:])),
			Target:     StepAddr(binary.LittleEndian.Uint16(entrypointsRaw[i*8+2:])),
			ResultType: TypeID(binary.LittleEndian.Uint16(entrypointsRaw[i*8+4:])),
		}
	}

	m.Transitions = make([]Step, h.TransitionsCount)
	for i := range m.Transitions {
		copy(m.Transitions[i][:], transitionsRaw[i*8:i*8+8])
	}

	return m, nil
}

func decodeBlobTableStrings(blob, table []byte, count int) *StringInterner {
	s := &StringInterner{index: make(map[string]StringID)}
	for i := 0; i < count; i++ {
		start := binary.LittleEndian.Uint32(table[i*4:])
		end := binary.LittleEndian.Uint32(table[(i+1)*4:])
		v := string(blob[start:end])
		s.values = append(s.values, v)
		s.index[v] = StringID(i)
	}
	return s
}

func decodeBlobTableRegexes(blob, table []byte, count int) *RegexInterner {
	r := NewRegexInterner()
	for i := 0; i < count; i++ {
		start := binary.LittleEndian.Uint32(table[i*4:])
		end := binary.LittleEndian.Uint32(table[(i+1)*4:])
		r.Intern(string(blob[start:end]))
	}
	return r
}

// EntrypointByName finds a named entrypoint, or the sole synthesized
// DefaultQuery entrypoint when name is empty (spec.md §4.3).
func (m *Module) EntrypointByName(name string) (Entrypoint, bool) {
	for _, e := range m.Entrypoints {
		if m.Strings.Lookup(e.Name) == name {
			return e, true
		}
	}
	if name == "" && len(m.Entrypoints) == 1 {
		return m.Entrypoints[0], true
	}
	return Entrypoint{}, false
}
