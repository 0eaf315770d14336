package plotnik_test

import (
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/require"

	plotnik "github.com/plotnik-lang/plotnik"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
)

// findFirst walks n's subtree in pre-order for the first node of the given
// grammar kind name, the way a fixture fetching "the identifier under test"
// would in the absence of a richer query surface.
func findFirst(n *sitter.Node, kind string) *sitter.Node {
	if n.Type() == kind {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findFirst(n.Child(i), kind); found != nil {
			return found
		}
	}
	return nil
}

// TestScenarioASingleCapture exercises spec.md §8 scenario A end to end
// against a real Go grammar parse: Query `Q = (identifier) @name` run with
// its root positioned directly on an identifier node.
func TestScenarioASingleCapture(t *testing.T) {
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})

	res, err := plotnik.Compile(`Q = (identifier) @name`, nt, plotnik.DefaultCompileConfig, 0)
	require.NoError(t, err)
	require.Empty(t, res.Diags)
	require.NotNil(t, res.Module)

	source := []byte("package main\n\nvar foo int\n")
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(t.Context(), nil, source)
	require.NoError(t, err)

	ident := findFirst(tree.RootNode(), "identifier")
	require.NotNil(t, ident)
	require.Equal(t, "foo", string(source[ident.StartByte():ident.EndByte()]))

	value, err := plotnik.Run(res.Module, ident, source, nt, "", plotnik.DefaultRunConfig)
	require.NoError(t, err)

	fields, ok := value.(map[string]any)
	require.True(t, ok)
	require.Contains(t, fields, "name")
}
