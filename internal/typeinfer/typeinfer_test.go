package typeinfer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
)

func infer(t *testing.T, src string) (*typeinfer.Result, *resolve.Table) {
	t.Helper()
	bag := &diag.Bag{}
	file, parseBag, err := syntax.Parse(0, src, syntax.DefaultParseConfig)
	require.NoError(t, err)
	require.Empty(t, parseBag.Messages())

	table := resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.False(t, bag.HasErrors(), "%v", bag.Messages())

	strings := bytecode.NewStringInterner()
	res := typeinfer.Infer(table, strings, bag, 0)
	require.False(t, bag.HasErrors(), "%v", bag.Messages())
	return res, table
}

func TestInferSingleCaptureYieldsNodeField(t *testing.T) {
	res, table := infer(t, `Q = (identifier) @name`)
	id := table.ByName["Q"]
	ty := res.DefType[id]

	members := res.Types.Members(ty)
	require.Len(t, members, 1)
	require.Equal(t, "name", res.Types.Strings().Lookup(members[0].Name))
	require.Equal(t, res.Types.Node(), members[0].Type)
}

func TestInferNamedNodeMergesChildFields(t *testing.T) {
	res, table := infer(t, `E = (binop left: (identifier) @l right: (identifier) @r)`)
	id := table.ByName["E"]
	members := res.Types.Members(res.DefType[id])
	require.Len(t, members, 2)
	require.Equal(t, "l", res.Types.Strings().Lookup(members[0].Name))
	require.Equal(t, "r", res.Types.Strings().Lookup(members[1].Name))
}

func TestInferStarProducesArrayType(t *testing.T) {
	res, table := infer(t, `Q = (block (identifier)* @xs)`)
	id := table.ByName["Q"]
	members := res.Types.Members(res.DefType[id])
	require.Len(t, members, 1)
	arrType := members[0].Type
	require.Equal(t, bytecode.TagArray, res.Types.Def(arrType).Tag)
}

func TestInferOptionalMarksFieldOptional(t *testing.T) {
	res, table := infer(t, `Q = {(identifier) @a (identifier)? @b}`)
	id := table.ByName["Q"]
	members := res.Types.Members(res.DefType[id])
	require.Len(t, members, 2)

	var bOptional bool
	for _, m := range members {
		if res.Types.Strings().Lookup(m.Name) == "b" {
			bOptional = m.Optional
		}
	}
	require.True(t, bOptional)
}

func TestInferTaggedAlternationProducesEnum(t *testing.T) {
	res, table := infer(t, `E = [Lit: (identifier) @v :: string  Bin: (binop left: (identifier) @l right: (identifier) @r)]`)
	id := table.ByName["E"]
	ty := res.DefType[id]
	require.Equal(t, bytecode.TagEnum, res.Types.Def(ty).Tag)

	variants := res.Types.Members(ty)
	require.Len(t, variants, 2)
	require.Equal(t, "Lit", res.Types.Strings().Lookup(variants[0].Name))
	require.Equal(t, "Bin", res.Types.Strings().Lookup(variants[1].Name))
}

func TestInferDuplicateCaptureReportsError(t *testing.T) {
	bag := &diag.Bag{}
	file, parseBag, err := syntax.Parse(0, `Q = (block (identifier) @a (identifier) @a)`, syntax.DefaultParseConfig)
	require.NoError(t, err)
	require.Empty(t, parseBag.Messages())

	table := resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.False(t, bag.HasErrors())

	strings := bytecode.NewStringInterner()
	typeinfer.Infer(table, strings, bag, 0)
	require.True(t, bag.HasErrors(), "duplicate capture names within one node should be reported")
}

func TestInferSuppressedCaptureContributesNoField(t *testing.T) {
	res, table := infer(t, `Q = (block (identifier) @_ (identifier) @kept)`)
	id := table.ByName["Q"]
	members := res.Types.Members(res.DefType[id])
	require.Len(t, members, 1)
	require.Equal(t, "kept", res.Types.Strings().Lookup(members[0].Name))
}

func TestTermInfoOfRecomputesSameResult(t *testing.T) {
	res, table := infer(t, `Q = (identifier) @name`)
	id := table.ByName["Q"]
	body := table.Defs[id].Body

	info1 := res.TermInfoOf(body)
	info2 := res.TermInfoOf(body)
	require.Equal(t, info1.Arity, info2.Arity)
	require.Equal(t, info1.Flow.Kind, info2.Flow.Kind)
}
