package vm_test

import (
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/cursorts"
	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/graph"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/syntax"
	"github.com/plotnik-lang/plotnik/internal/typeinfer"
	"github.com/plotnik-lang/plotnik/internal/vm"
)

func compileModule(t *testing.T, src string, nt *nodetypes.Table) *bytecode.Module {
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

	require.NoError(t, graph.Compile(module, table, tinfo, nt, bag, 0))
	return module
}

func TestRunSingleCaptureAgainstRealGoSource(t *testing.T) {
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})
	module := compileModule(t, `Q = (identifier) @name`, nt)

	source := []byte("package main\n\nvar foo int\n")
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(t.Context(), nil, source)
	require.NoError(t, err)

	var ident *sitter.Node
	var find func(n *sitter.Node)
	find = func(n *sitter.Node) {
		if ident != nil {
			return
		}
		if n.Type() == "identifier" {
			ident = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			find(n.Child(i))
		}
	}
	find(tree.RootNode())
	require.NotNil(t, ident)

	ct := cursorts.NewTree(ident, source, nt)
	machine := vm.New(module, ct.Root(), source, vm.DefaultConfig)

	ep := module.Entrypoints[0]
	effects, err := machine.Run(ep.Target)
	require.NoError(t, err)
	require.NotEmpty(t, effects)

	found := false
	for _, e := range effects {
		if e.Op == bytecode.EffNode || e.Op == bytecode.EffText {
			found = true
			require.True(t, e.Node.Valid)
			require.Equal(t, "foo", string(source[e.Node.Start:e.Node.End]))
		}
	}
	require.True(t, found, "expected a captured node effect")
}

func TestRunNoMatchFailsWithVMError(t *testing.T) {
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})
	module := compileModule(t, `Q = (import_spec) @x`, nt)

	source := []byte("package main\n\nvar foo int\n")
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(t.Context(), nil, source)
	require.NoError(t, err)

	var ident *sitter.Node
	var find func(n *sitter.Node)
	find = func(n *sitter.Node) {
		if ident != nil {
			return
		}
		if n.Type() == "identifier" {
			ident = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			find(n.Child(i))
		}
	}
	find(tree.RootNode())
	require.NotNil(t, ident)

	ct := cursorts.NewTree(ident, source, nt)
	machine := vm.New(module, ct.Root(), source, vm.DefaultConfig)

	ep := module.Entrypoints[0]
	_, err = machine.Run(ep.Target)
	require.Error(t, err)
	var vmErr *vm.Error
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, "NoMatch", vmErr.Kind)
}

func TestRunExecFuelExhaustion(t *testing.T) {
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})
	module := compileModule(t, `Q = (identifier) @name`, nt)

	source := []byte("package main\n\nvar foo int\n")
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(t.Context(), nil, source)
	require.NoError(t, err)

	ct := cursorts.NewTree(tree.RootNode(), source, nt)
	machine := vm.New(module, ct.Root(), source, vm.Config{ExecFuel: 0, RecursionLimit: 4096})

	ep := module.Entrypoints[0]
	_, err = machine.Run(ep.Target)
	require.Error(t, err)
	var vmErr *vm.Error
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, "ExecFuelExhausted", vmErr.Kind)
}
