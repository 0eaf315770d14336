package diag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/diag"
)

func TestBagHasErrors(t *testing.T) {
	var bag diag.Bag
	require.False(t, bag.HasErrors())

	bag.Add(diag.Message{Kind: diag.KindFieldTypo, Text: "warning only"})
	require.False(t, bag.HasErrors(), "KindFieldTypo is a warning, not an error")

	bag.Errorf(diag.Range{Start: 0, End: 1}, diag.KindUnexpectedToken, "unexpected %s", "token")
	require.True(t, bag.HasErrors())
}

func TestMessagesStableOrder(t *testing.T) {
	var bag diag.Bag
	bag.Add(diag.Message{Kind: diag.KindUnresolvedRef, Range: diag.Range{Start: 10, End: 12}, Text: "second"})
	bag.Add(diag.Message{Kind: diag.KindUnresolvedRef, Range: diag.Range{Start: 0, End: 2}, Text: "first"})

	msgs := bag.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Text)
	require.Equal(t, "second", msgs[1].Text)
}

func TestMessagesSuppressesLowerPriorityOverlap(t *testing.T) {
	var bag diag.Bag
	overlap := diag.Range{Start: 0, End: 10}
	bag.Add(diag.Message{Kind: diag.KindUnclosedDelimiter, Range: overlap, Text: "high priority"})
	bag.Add(diag.Message{Kind: diag.KindUnresolvedRef, Range: diag.Range{Start: 5, End: 8}, Text: "low priority, overlapping"})

	msgs := bag.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "high priority", msgs[0].Text)
}

func TestMessagesKeepsNonOverlapping(t *testing.T) {
	var bag diag.Bag
	bag.Add(diag.Message{Kind: diag.KindUnclosedDelimiter, Range: diag.Range{Start: 0, End: 5}, Text: "a"})
	bag.Add(diag.Message{Kind: diag.KindUnresolvedRef, Range: diag.Range{Start: 20, End: 25}, Text: "b"})

	msgs := bag.Messages()
	require.Len(t, msgs, 2)
}

func TestRangeOverlaps(t *testing.T) {
	a := diag.Range{SourceID: 0, Start: 0, End: 5}
	b := diag.Range{SourceID: 0, Start: 4, End: 8}
	c := diag.Range{SourceID: 0, Start: 5, End: 8}
	d := diag.Range{SourceID: 1, Start: 0, End: 5}

	require.True(t, a.Overlaps(b))
	require.False(t, a.Overlaps(c), "half-open ranges touching at the boundary do not overlap")
	require.False(t, a.Overlaps(d), "different SourceID never overlaps")
}

func TestFatalError(t *testing.T) {
	err := diag.Fatal(diag.KindProgramTooLarge, "program too large: %d steps", 5000)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, diag.KindProgramTooLarge, fatal.Kind)
	require.Contains(t, fatal.Error(), "5000")
}

func TestMessageString(t *testing.T) {
	m := diag.Message{Range: diag.Range{Start: 3, End: 7}, Text: "bad token"}
	require.Equal(t, "[3:7) bad token", m.String())
}
