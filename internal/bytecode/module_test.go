package bytecode

import (
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"
)

func buildSampleModule(t *testing.T) *Module {
	t.Helper()
	m := NewModule()

	name := m.Types.Struct([]TypeMember{
		{Name: m.Strings.Intern("name"), Type: m.Types.Node()},
	})
	m.Types.SetName(name, "Q")

	m.NodeTypes = append(m.NodeTypes, NodeTypeEntry{Kind: 1, Name: m.Strings.Intern("identifier")})
	m.NodeFields = append(m.NodeFields, NodeFieldEntry{Field: 1, Name: m.Strings.Intern("left")})
	m.Trivia = append(m.Trivia, 99)

	entry := StepAddr(0)
	accept, err := EncodeMatch(MatchInstr{
		Nav:       NavDown,
		NodeKind:  NodeNamed,
		HasKindID: true,
		KindID:    1,
		PostEffects: []Effect{
			{Op: EffNode},
			{Op: EffSet, Operand: 0},
		},
	})
	require.NoError(t, err)
	m.Transitions = append(m.Transitions, accept...)
	m.Transitions = append(m.Transitions, EncodeReturn())

	m.Entrypoints = append(m.Entrypoints, Entrypoint{Name: m.Strings.Intern("Q"), Target: entry, ResultType: name})
	return m
}

func TestModuleRoundTrip(t *testing.T) {
	m := buildSampleModule(t)

	encoded, err := m.Encode()
	require.NoError(t, err)
	require.Equal(t, Magic, string(encoded[0:4]))
	require.Equal(t, 0, len(encoded)%sectionAlign, "total size must end on a 64-byte boundary")

	loaded, err := Load(encoded)
	require.NoError(t, err)

	reEncoded, err := loaded.Encode()
	require.NoError(t, err)
	require.Equal(t, encoded, reEncoded, "load(emit(compile)) must reproduce identical bytes")

	require.Equal(t, Dump(m), Dump(loaded))
}

func TestModuleRoundTripStable(t *testing.T) {
	m := buildSampleModule(t)
	first, err := m.Encode()
	require.NoError(t, err)

	m2 := buildSampleModule(t)
	second, err := m2.Encode()
	require.NoError(t, err)

	if string(first) != string(second) {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(Dump(m)),
			B:        difflib.SplitLines(Dump(m2)),
			FromFile: "a",
			ToFile:   "b",
			Context:  2,
		}
		text, _ := difflib.GetUnifiedDiffString(diff)
		t.Fatalf("compiling the same module twice produced different bytes:\n%s", text)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	m := buildSampleModule(t)
	encoded, err := m.Encode()
	require.NoError(t, err)
	encoded[0] = 'X'
	_, err = Load(encoded)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	m := buildSampleModule(t)
	encoded, err := m.Encode()
	require.NoError(t, err)
	encoded[len(encoded)-1] ^= 0xFF
	_, err = Load(encoded)
	require.Error(t, err)
}

func TestLoadRejectsTruncated(t *testing.T) {
	m := buildSampleModule(t)
	encoded, err := m.Encode()
	require.NoError(t, err)
	_, err = Load(encoded[:HeaderSize-1])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestEmptyModuleHasZeroEntrypointsAndAcceptPreamble(t *testing.T) {
	m := NewModule()
	m.Transitions = append(m.Transitions, EncodeReturn())
	encoded, err := m.Encode()
	require.NoError(t, err)

	loaded, err := Load(encoded)
	require.NoError(t, err)
	require.Empty(t, loaded.Entrypoints)
	require.Len(t, loaded.Transitions, 1)
}
