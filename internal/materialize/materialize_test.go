package materialize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/materialize"
	"github.com/plotnik-lang/plotnik/internal/vm"
)

func nodeEffect(op bytecode.EffectOp, start, end uint32) vm.RuntimeEffect {
	return vm.RuntimeEffect{Op: op, Node: vm.NodeRef{Valid: true, Kind: 1, Named: true, Start: start, End: end}}
}

func TestReplaySingleTextCapture(t *testing.T) {
	strings := bytecode.NewStringInterner()
	types := bytecode.NewTypeTable(strings)
	resultType := types.String()

	source := []byte("foo bar")
	effects := []vm.RuntimeEffect{nodeEffect(bytecode.EffText, 0, 3)}

	value, err := materialize.Replay(effects, types, resultType, source)
	require.NoError(t, err)
	require.Equal(t, "foo", value)
}

func TestReplayNullCapture(t *testing.T) {
	strings := bytecode.NewStringInterner()
	types := bytecode.NewTypeTable(strings)
	resultType := types.Optional(types.Node())

	effects := []vm.RuntimeEffect{{Op: bytecode.EffNull}}
	value, err := materialize.Replay(effects, types, resultType, nil)
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestReplayArrayOfNodes(t *testing.T) {
	strings := bytecode.NewStringInterner()
	types := bytecode.NewTypeTable(strings)
	resultType := types.Array(types.Node(), false)

	source := []byte("ab cd")
	effects := []vm.RuntimeEffect{
		{Op: bytecode.EffArr},
		nodeEffect(bytecode.EffNode, 0, 2),
		{Op: bytecode.EffPush},
		nodeEffect(bytecode.EffNode, 3, 5),
		{Op: bytecode.EffPush},
		{Op: bytecode.EffEndArr},
	}

	value, err := materialize.Replay(effects, types, resultType, source)
	require.NoError(t, err)
	arr, ok := value.([]any)
	require.True(t, ok)
	require.Len(t, arr, 2)
	n0, ok := arr[0].(materialize.Node)
	require.True(t, ok)
	require.Equal(t, "ab", n0.Text)
}

func TestReplayStructObject(t *testing.T) {
	strings := bytecode.NewStringInterner()
	types := bytecode.NewTypeTable(strings)
	memberName := strings.Intern("name")
	resultType := types.Struct([]bytecode.TypeMember{{Name: memberName, Type: types.String()}})

	source := []byte("foo")
	effects := []vm.RuntimeEffect{
		{Op: bytecode.EffObj},
		nodeEffect(bytecode.EffText, 0, 3),
		{Op: bytecode.EffSet, Operand: 0},
		{Op: bytecode.EffEndObj},
	}

	value, err := materialize.Replay(effects, types, resultType, source)
	require.NoError(t, err)
	obj, ok := value.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "foo", obj["name"])
}

func TestReplayEnum(t *testing.T) {
	strings := bytecode.NewStringInterner()
	types := bytecode.NewTypeTable(strings)
	tagName := strings.Intern("Lit")
	resultType := types.Enum([]bytecode.TypeMember{{Name: tagName, Type: types.String()}})

	source := []byte("42")
	effects := []vm.RuntimeEffect{
		{Op: bytecode.EffEnum, Operand: uint16(resultType)},
		nodeEffect(bytecode.EffText, 0, 2),
		{Op: bytecode.EffSet, Operand: 0},
		{Op: bytecode.EffEndEnum},
	}

	value, err := materialize.Replay(effects, types, resultType, source)
	require.NoError(t, err)
	enum, ok := value.(materialize.Enum)
	require.True(t, ok)
	require.Equal(t, "Lit", enum.Tag)
	require.Equal(t, "42", enum.Value)
}

func TestReplayUnbalancedScopeErrors(t *testing.T) {
	strings := bytecode.NewStringInterner()
	types := bytecode.NewTypeTable(strings)
	resultType := types.Array(types.Node(), false)

	effects := []vm.RuntimeEffect{{Op: bytecode.EffArr}}
	_, err := materialize.Replay(effects, types, resultType, nil)
	require.Error(t, err)
}
