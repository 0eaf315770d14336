package resolve_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/diag"
	"github.com/plotnik-lang/plotnik/internal/resolve"
	"github.com/plotnik-lang/plotnik/internal/syntax"
)

func parseOne(t *testing.T, src string) *syntax.File {
	t.Helper()
	file, bag, err := syntax.Parse(0, src, syntax.DefaultParseConfig)
	require.NoError(t, err)
	require.Empty(t, bag.Messages())
	return file
}

func TestResolveOrdersLeavesFirst(t *testing.T) {
	file := parseOne(t, "A = (identifier) @x\nB = (block (A) @a)")
	bag := &diag.Bag{}
	table := resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.False(t, bag.HasErrors())

	aID := table.ByName["A"]
	bID := table.ByName["B"]
	var aPos, bPos int
	for i, id := range table.Order {
		if id == aID {
			aPos = i
		}
		if id == bID {
			bPos = i
		}
	}
	require.Less(t, aPos, bPos, "leaf def A must precede its dependent B")
}

func TestResolveDuplicateDefReportsError(t *testing.T) {
	file := parseOne(t, "A = (identifier) @x\nA = (number) @y")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.True(t, bag.HasErrors())
}

func TestResolveUnresolvedRefReportsError(t *testing.T) {
	file := parseOne(t, "A = (block (Missing) @m)")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.True(t, bag.HasErrors())
}

func TestResolveGuardedRecursionIsFine(t *testing.T) {
	file := parseOne(t, "L = [End: (nil)  Cons: (cons head: (_) @h tail: (L) @t)]")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.False(t, bag.HasErrors(), "%v", bag.Messages())
}

func TestResolveDirectUnguardedRecursionErrors(t *testing.T) {
	file := parseOne(t, "A = [B1: (A) @x  B2: (identifier) @y]")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.True(t, bag.HasErrors())
}

func TestResolveNoEscapeRecursionErrors(t *testing.T) {
	file := parseOne(t, "A = (wrap (A) @x)")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.True(t, bag.HasErrors())
}

func TestResolveGuardedSequenceRecursionIsFine(t *testing.T) {
	file := parseOne(t, "Q = {(foo) (Q)}")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	for _, m := range bag.Messages() {
		require.NotEqual(t, diag.KindDirectRecursion, m.Kind, "a ref following a consuming sibling in the same sequence is guarded: %v", m)
	}
}

func TestResolveUnguardedSequenceRecursionErrors(t *testing.T) {
	file := parseOne(t, "Q = {(Q) (foo)}")
	bag := &diag.Bag{}
	resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.True(t, bag.HasErrors(), "a ref preceding every consuming sibling in the same sequence is unguarded")
}

func TestResolveDefaultDef(t *testing.T) {
	file := parseOne(t, "(identifier) @x")
	bag := &diag.Bag{}
	table := resolve.Resolve([]*syntax.File{file}, bag, 0)
	require.False(t, bag.HasErrors())
	require.True(t, table.HasDefault)
}
