package cursorts_test

import (
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
	"github.com/plotnik-lang/plotnik/internal/cursorts"
	"github.com/plotnik-lang/plotnik/internal/nodetypes"
	"github.com/plotnik-lang/plotnik/internal/vm"
)

func parseGo(t *testing.T, source string) *sitter.Node {
	t.Helper()
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(t.Context(), nil, []byte(source))
	require.NoError(t, err)
	return tree.RootNode()
}

func TestCursorGotoFirstChildAndSibling(t *testing.T) {
	source := "package main\n\nvar x int\nvar y int\n"
	root := parseGo(t, source)
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})

	tree := cursorts.NewTree(root, []byte(source), nt)
	c := tree.Root()
	require.Equal(t, 0, c.DescendantIndex())
	require.False(t, c.GotoParent(), "root has no parent")

	require.True(t, c.GotoFirstChild())
	startIdx := c.DescendantIndex()

	// Walk siblings until we can't any more, then go back via the saved index.
	for c.GotoNextSibling() {
	}
	c.GotoDescendant(startIdx)
	require.Equal(t, startIdx, c.DescendantIndex())
}

func TestCursorCheckpointRestoreIsConstantTime(t *testing.T) {
	source := "package main\n\nvar foo int\n"
	root := parseGo(t, source)
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})
	tree := cursorts.NewTree(root, []byte(source), nt)

	c := tree.Root()
	for c.GotoFirstChild() {
	}
	leaf := c.DescendantIndex()

	c.GotoDescendant(0)
	require.Equal(t, 0, c.DescendantIndex())
	c.GotoDescendant(leaf)
	require.Equal(t, leaf, c.DescendantIndex())
}

func TestNavigateNextExactAdvancesToSibling(t *testing.T) {
	source := "package main\n\nvar a int\nvar b int\n"
	root := parseGo(t, source)
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})
	tree := cursorts.NewTree(root, []byte(source), nt)

	c := tree.Root()
	require.True(t, c.GotoFirstChild())
	start := c.DescendantIndex()

	policy, ok := c.Navigate(bytecode.NavNextExact, 0)
	require.Equal(t, vm.SkipExact, policy)
	if ok {
		require.NotEqual(t, start, c.DescendantIndex())
	}
}

func TestNavigateStayIsExactAndNoop(t *testing.T) {
	source := "package main\n"
	root := parseGo(t, source)
	nt := nodetypes.FromTreeSitter(golang.GetLanguage(), []string{"comment"})
	tree := cursorts.NewTree(root, []byte(source), nt)

	c := tree.Root()
	before := c.DescendantIndex()
	_, ok := c.Navigate(bytecode.NavStay, 0)
	require.True(t, ok)
	require.Equal(t, before, c.DescendantIndex())
}
