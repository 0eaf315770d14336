package syntax_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/syntax"
)

func parse(t *testing.T, src string) *syntax.File {
	t.Helper()
	file, bag, err := syntax.Parse(0, src, syntax.DefaultParseConfig)
	require.NoError(t, err)
	require.Empty(t, bag.Messages(), "%v", bag.Messages())
	return file
}

func TestParseNamedNodeWithCapture(t *testing.T) {
	file := parse(t, `Q = (identifier) @name`)
	require.Len(t, file.Defs, 1)
	require.Equal(t, "Q", file.Defs[0].Name)

	captured, ok := file.Defs[0].Body.(syntax.CapturedExpr)
	require.True(t, ok)
	require.Equal(t, "name", captured.Name)
	require.False(t, captured.Suppress)

	named, ok := captured.Inner.(syntax.NamedNode)
	require.True(t, ok)
	require.Equal(t, "identifier", named.Kind)
}

func TestParseWildcardKind(t *testing.T) {
	file := parse(t, `L = (cons head: (_) @h tail: (L) @t)`)
	named, ok := file.Defs[0].Body.(syntax.NamedNode)
	require.True(t, ok)
	require.Equal(t, "cons", named.Kind)
	require.Len(t, named.Children, 2)

	headField, ok := named.Children[0].(syntax.FieldExpr)
	require.True(t, ok)
	require.Equal(t, "head", headField.Name)
	headCapture, ok := headField.Value.(syntax.CapturedExpr)
	require.True(t, ok)
	wildcard, ok := headCapture.Inner.(syntax.NamedNode)
	require.True(t, ok)
	require.Equal(t, "_", wildcard.Kind)
}

func TestParseTaggedAlternationWithTypeAnnotation(t *testing.T) {
	file := parse(t, `E = [Lit: (number) @v :: string  Bin: (binop left: (E) @l right: (E) @r)]`)
	alt, ok := file.Defs[0].Body.(syntax.AltExpr)
	require.True(t, ok)
	require.True(t, alt.Tagged)
	require.Len(t, alt.Branches, 2)
	require.Equal(t, "Lit", alt.Branches[0].Tag)
	require.Equal(t, "Bin", alt.Branches[1].Tag)

	litCapture, ok := alt.Branches[0].Value.(syntax.CapturedExpr)
	require.True(t, ok)
	require.True(t, litCapture.Annotated)
	require.Equal(t, "string", litCapture.TypeName)
}

func TestParseQuantifiers(t *testing.T) {
	file := parse(t, `Q = (block (statement)* @stmts)`)
	named := file.Defs[0].Body.(syntax.NamedNode)
	require.Len(t, named.Children, 1)

	captured, ok := named.Children[0].(syntax.CapturedExpr)
	require.True(t, ok)
	quant, ok := captured.Inner.(syntax.QuantifiedExpr)
	require.True(t, ok)
	require.Equal(t, syntax.QuantStar, quant.Quant)
	require.True(t, quant.Quant.Greedy())
	require.Equal(t, 0, quant.Quant.MinReps())
}

func TestParseAnchors(t *testing.T) {
	file := parse(t, `Q = (pair . (key) @k . (value) @v .)`)
	named := file.Defs[0].Body.(syntax.NamedNode)

	anchorCount := 0
	for _, c := range named.Children {
		if _, ok := c.(syntax.Anchor); ok {
			anchorCount++
		}
	}
	require.Equal(t, 3, anchorCount)
}

func TestParseSeqAndSuppressedCapture(t *testing.T) {
	file := parse(t, `Q = {(identifier) @_ (number)? @b}`)
	seq, ok := file.Defs[0].Body.(syntax.SeqExpr)
	require.True(t, ok)
	require.Len(t, seq.Elems, 2)

	first, ok := seq.Elems[0].(syntax.CapturedExpr)
	require.True(t, ok)
	require.True(t, first.Suppress)
}

func TestParseUnclosedDelimiterReportsDiagnostic(t *testing.T) {
	_, bag, err := syntax.Parse(0, `Q = (identifier`, syntax.DefaultParseConfig)
	require.NoError(t, err)
	require.NotEmpty(t, bag.Messages())
	require.True(t, bag.HasErrors())
}

func TestParseMultipleDefsAndDefaultEntrypoint(t *testing.T) {
	file := parse(t, "A = (identifier) @a\n(number) @n")
	require.Len(t, file.Defs, 2)
	require.Equal(t, "A", file.Defs[0].Name)
	require.Equal(t, "", file.Defs[1].Name)
}

func TestParseGreenTreeIsLosslessRoundTrip(t *testing.T) {
	src := "  # a leading comment\n  Q = (identifier) @name  # trailing\n\n"
	file := parse(t, src)
	require.NotNil(t, file.Green)
	require.Equal(t, src, file.Green.Text(), "concatenating every token's leading trivia and text must reconstruct src exactly")
}

// firstNodeChild returns n's first child that is itself a GreenNode,
// skipping any leading GreenToken siblings (punctuation, keywords).
func firstNodeChild(n *syntax.GreenNode) *syntax.GreenNode {
	for _, c := range n.Children {
		if g, ok := c.(*syntax.GreenNode); ok {
			return g
		}
	}
	return nil
}

func TestParseGreenTreeWrapsChainedQuantifierAndCapture(t *testing.T) {
	src := `Q = (block (statement)*? @stmts)`
	file := parse(t, src)
	require.Equal(t, src, file.Green.Text())

	named := file.Defs[0].Body.(syntax.NamedNode)
	captured, ok := named.Children[0].(syntax.CapturedExpr)
	require.True(t, ok)
	quant, ok := captured.Inner.(syntax.QuantifiedExpr)
	require.True(t, ok)
	require.Equal(t, syntax.QuantStarLazy, quant.Quant)

	// The green tree must nest the same way the typed AST does: a
	// GreenCapturedExpr wrapping a GreenQuantifiedExpr wrapping the
	// GreenNamedNode for `(statement)`, not three siblings — the
	// checkpoint-based wrapping reparents the operand rather than
	// appending the suffix's node next to it.
	def := firstNodeChild(file.Green)
	require.NotNil(t, def)
	require.Equal(t, syntax.GreenDef, def.Kind)

	block := firstNodeChild(def)
	require.NotNil(t, block)
	require.Equal(t, syntax.GreenNamedNode, block.Kind)

	capturedGreen := firstNodeChild(block)
	require.NotNil(t, capturedGreen)
	require.Equal(t, syntax.GreenCapturedExpr, capturedGreen.Kind)

	quantGreen := firstNodeChild(capturedGreen)
	require.NotNil(t, quantGreen)
	require.Equal(t, syntax.GreenQuantifiedExpr, quantGreen.Kind)

	stmtGreen := firstNodeChild(quantGreen)
	require.NotNil(t, stmtGreen)
	require.Equal(t, syntax.GreenNamedNode, stmtGreen.Kind)
	require.Equal(t, " (statement)", stmtGreen.Text())
}

func TestParseFuelConsumedIsPositiveAfterSuccessfulParse(t *testing.T) {
	file := parse(t, `Q = (identifier) @name`)
	require.Greater(t, file.FuelConsumed, 0)
}
