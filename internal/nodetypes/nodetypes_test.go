package nodetypes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/nodetypes"
)

func TestBuiltinLookup(t *testing.T) {
	t1 := nodetypes.Builtin()
	require.True(t, t1.Linked())

	id, ok := t1.KindID("identifier")
	require.True(t, ok)
	name, ok := t1.KindName(id)
	require.True(t, ok)
	require.Equal(t, "identifier", name)

	_, ok = t1.KindID("does-not-exist")
	require.False(t, ok)

	fid, ok := t1.FieldID("left")
	require.True(t, ok)
	fname, ok := t1.FieldName(fid)
	require.True(t, ok)
	require.Equal(t, "left", fname)
}

func TestBuiltinUnderscoreAndEmptyNeverResolve(t *testing.T) {
	tbl := nodetypes.Builtin()
	_, ok := tbl.KindID("_")
	require.False(t, ok, "_ is the wildcard kind, never a real grammar symbol")
	_, ok = tbl.KindID("")
	require.False(t, ok)
}

func TestBuiltinTrivia(t *testing.T) {
	tbl := nodetypes.Builtin()
	id, ok := tbl.KindID("comment")
	require.True(t, ok)
	require.True(t, tbl.IsTrivia(id))

	other, ok := tbl.KindID("identifier")
	require.True(t, ok)
	require.False(t, tbl.IsTrivia(other))

	require.Contains(t, tbl.TriviaKinds(), id)
}

func TestUnlinkedTableNeverResolves(t *testing.T) {
	tbl := nodetypes.Unlinked()
	require.False(t, tbl.Linked())
	_, ok := tbl.KindID("identifier")
	require.False(t, ok)
}

func TestAllKindsAndFieldsCoverWholeTable(t *testing.T) {
	tbl := nodetypes.Builtin()

	kinds := tbl.AllKinds()
	names := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		names[k.Name] = true
		gotName, ok := tbl.KindName(k.ID)
		require.True(t, ok)
		require.Equal(t, k.Name, gotName)
	}
	require.True(t, names["identifier"])
	require.True(t, names["cons"])

	fields := tbl.AllFields()
	fieldNames := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldNames[f.Name] = true
	}
	require.True(t, fieldNames["left"])
	require.True(t, fieldNames["tail"])
}
