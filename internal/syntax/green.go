package syntax

import "strings"

// GreenKind identifies the shape of one GreenNode in the lossless
// concrete syntax tree (spec.md §4.1's "green_tree"). It mirrors Expr's
// concrete types one-for-one, plus GreenFile/GreenDef/GreenAltBranch for
// productions that have no corresponding Expr, and GreenError for the
// span a recovery sync-set swallows.
type GreenKind uint8

const (
	GreenFile GreenKind = iota
	GreenDef
	GreenNamedNode
	GreenAnonymousNode
	GreenRef
	GreenFieldExpr
	GreenNegatedField
	GreenAnchor
	GreenSeqExpr
	GreenAltExpr
	GreenAltBranch
	GreenQuantifiedExpr
	GreenCapturedExpr
	GreenError
)

// GreenElement is one child of a GreenNode: either a nested GreenNode or
// a leaf GreenToken.
type GreenElement interface{ greenElement() }

// GreenToken is one lexical token together with the trivia (whitespace,
// comments) buffered ahead of it. Concatenating every GreenToken's
// Leading texts and Text, in tree order, reconstructs the source
// exactly — the losslessness spec.md §8 tests for.
type GreenToken struct {
	Kind    TokenKind
	Text    string
	Leading []Token
	Span    Span
}

func (GreenToken) greenElement() {}

// GreenNode is one interior production: a Kind plus its ordered children.
type GreenNode struct {
	Kind     GreenKind
	Children []GreenElement
}

func (*GreenNode) greenElement() {}

// Text reconstructs the exact source slice this node was built from,
// including the leading trivia attached to its first token.
func (n *GreenNode) Text() string {
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *GreenNode) writeText(b *strings.Builder) {
	for _, c := range n.Children {
		switch e := c.(type) {
		case *GreenNode:
			e.writeText(b)
		case GreenToken:
			for _, tr := range e.Leading {
				b.WriteString(tr.Text)
			}
			b.WriteString(e.Text)
		}
	}
}

// greenBuilder assembles a GreenNode tree alongside the typed AST using
// rowan-style checkpoints: start/finish bracket a production in the
// usual nested fashion, while startAt/finish retroactively wraps every
// sibling pushed since a saved checkpoint into a new node — how a
// quantifier or `@capture` suffix, not known until after its operand is
// already built, gets its operand reparented under it without having
// rebuilt the operand (spec.md §4.1's checkpoint-based wrapping).
type greenBuilder struct {
	stack   [][]GreenElement
	leading []Token
}

func newGreenBuilder() *greenBuilder {
	return &greenBuilder{stack: [][]GreenElement{nil}}
}

// trivia buffers one whitespace/comment token to be attached as leading
// trivia on the next token pushed.
func (b *greenBuilder) trivia(t Token) {
	b.leading = append(b.leading, t)
}

// token pushes one significant lexical token, along with whatever
// trivia has been buffered since the last token, as a child of the
// currently open node.
func (b *greenBuilder) token(t Token) {
	top := len(b.stack) - 1
	b.stack[top] = append(b.stack[top], GreenToken{Kind: t.Kind, Text: t.Text, Leading: b.leading, Span: t.Span})
	b.leading = nil
}

// start opens a new, initially empty node frame.
func (b *greenBuilder) start() {
	b.stack = append(b.stack, nil)
}

// checkpoint marks the current position within the open node's children,
// to later retroactively wrap everything pushed since via startAt.
func (b *greenBuilder) checkpoint() int {
	return len(b.stack[len(b.stack)-1])
}

// startAt reopens the elements pushed since cp as a new node frame,
// removing them from their current parent so that a following finish
// gathers them (plus anything pushed since) under the wrapping kind.
func (b *greenBuilder) startAt(cp int) {
	top := len(b.stack) - 1
	tail := append([]GreenElement(nil), b.stack[top][cp:]...)
	b.stack[top] = b.stack[top][:cp]
	b.stack = append(b.stack, tail)
}

// finish closes the innermost open node frame, wrapping its children
// (built via start or startAt) in kind and appending it to its parent.
func (b *greenBuilder) finish(kind GreenKind) *GreenNode {
	top := len(b.stack) - 1
	node := &GreenNode{Kind: kind, Children: b.stack[top]}
	b.stack = b.stack[:top]
	b.stack[len(b.stack)-1] = append(b.stack[len(b.stack)-1], node)
	return node
}

// finishRoot closes the implicit root frame into the file-level node.
func (b *greenBuilder) finishRoot() *GreenNode {
	return &GreenNode{Kind: GreenFile, Children: b.stack[0]}
}
