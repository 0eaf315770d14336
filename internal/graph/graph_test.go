package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/graph"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
)

func compile(t *testing.T, src string) (*bytecode.Module, *resolve.Table, *typeinfer.Result) {
	t.Helper()
	bag := &diag.Bag{}
	file, parseBag, err := syntax.Parse(0, src, syntax.DefaultParseConfig)
	require.NoError(t, err)
	require.Empty(t, parseBag.Messages())

	table := resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.False(t, bag.HasErrors(), "%v", bag.Messages())

	module := bytecode.NewModule()
	tinfo := typeinfer.Infer(table, module.Strings, bag, 0)
	require.False(t, bag.HasErrors(), "%v", bag.Messages())
	module.Types = tinfo.Types

	nt := nodetypes.Builtin()
	require.NoError(t, graph.Compile(module, table, tinfo, nt, bag, 0))
	return module, table, tinfo
}

func TestCompileSingleCapture(t *testing.T) {
	module, _, _ := compile(t, `Q = (identifier) @name`)

	require.Len(t, module.Entrypoints, 1)
	ep := module.Entrypoints[0]
	require.Equal(t, "Q", module.Strings.Lookup(ep.Name))
	require.NotEmpty(t, module.Transitions)

	resultType := ep.ResultType
	members := module.Types.Members(resultType)
	require.Len(t, members, 1)
	require.Equal(t, "name", module.Strings.Lookup(members[0].Name))
}

func TestCompileStarArray(t *testing.T) {
	module, _, _ := compile(t, `Q = (block (statement)* @stmts)`)

	require.Len(t, module.Entrypoints, 1)
	ep := module.Entrypoints[0]
	members := module.Types.Members(ep.ResultType)
	require.Len(t, members, 1)
	require.Equal(t, "stmts", module.Strings.Lookup(members[0].Name))
}

func TestCompileTaggedAlternation(t *testing.T) {
	src := `E = [Lit: (number) @v :: string  Bin: (binop left: (E) @l right: (E) @r)]`
	module, _, _ := compile(t, src)

	require.Len(t, module.Entrypoints, 1)
}

func TestCompileOptional(t *testing.T) {
	module, _, _ := compile(t, `Q = {(identifier) @a (number)? @b}`)

	require.Len(t, module.Entrypoints, 1)
	ep := module.Entrypoints[0]
	members := module.Types.Members(ep.ResultType)
	require.Len(t, members, 2)
}

func TestCompileRecursion(t *testing.T) {
	src := `L = [End: (nil)  Cons: (cons head: (_) @h tail: (L) @t)]`
	module, _, _ := compile(t, src)

	require.Len(t, module.Entrypoints, 1)
}

func TestCompileAnchorExactness(t *testing.T) {
	module, _, _ := compile(t, `Q = (pair . (key) @k . (value) @v .)`)

	require.Len(t, module.Entrypoints, 1)
	ep := module.Entrypoints[0]
	members := module.Types.Members(ep.ResultType)
	require.Len(t, members, 2)
}

func TestCompileEmptySource(t *testing.T) {
	module, _, _ := compile(t, ``)
	require.Empty(t, module.Entrypoints)
}
