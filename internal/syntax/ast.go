// Package syntax parses Plotnik query source into a typed AST and reports
// diagnostics through a diag.Bag (spec.md §3.1, §4.1).
package syntax

// Pos is a byte offset into the source.
type Pos = int

// Span is a half-open [Start, End) byte range.
type Span struct {
	Start Pos
	End   Pos
}

// Node is the common shape every expression node satisfies: its source
// span, for diagnostics and for reporting ranges back to a caller.
type Node interface {
	Span() Span
}

type base struct{ span Span }

func (b base) Span() Span { return b.span }

// NamedNode matches a named tree node of kind Kind ("_" for any), with an
// optional child sequence.
type NamedNode struct {
	base
	Kind     string
	Children []Expr
}

// AnonymousNode matches an anonymous (token) node: Literal == "" and Any
// true for `_`, else the exact token text.
type AnonymousNode struct {
	base
	Literal string
	Any     bool
}

// Ref calls another definition by name.
type Ref struct {
	base
	Name string
}

// FieldExpr requires the matched node to occupy field Name.
type FieldExpr struct {
	base
	Name  string
	Value Expr
}

// NegatedField requires field Name to be absent on the current node.
type NegatedField struct {
	base
	Name string
}

// Anchor is the `.` positional marker between siblings or before/after a
// child list.
type Anchor struct{ base }

// SeqExpr is a sibling sequence `{e1 e2 ...}`.
type SeqExpr struct {
	base
	Elems []Expr
}

// AltBranch is one arm of an AltExpr; Tag is "" for untagged branches.
type AltBranch struct {
	Tag   string
	Value Expr
}

// AltExpr is `[e1 e2 ...]` or `[Tag1: e1 Tag2: e2 ...]`.
type AltExpr struct {
	base
	Tagged   bool
	Branches []AltBranch
}

// Quantifier enumerates the five postfix repetition operators.
type Quantifier uint8

const (
	QuantOpt Quantifier = iota
	QuantOptLazy
	QuantStar
	QuantStarLazy
	QuantPlus
	QuantPlusLazy
)

func (q Quantifier) Greedy() bool {
	return q == QuantOpt || q == QuantStar || q == QuantPlus
}

func (q Quantifier) MinReps() int {
	if q == QuantPlus || q == QuantPlusLazy {
		return 1
	}
	return 0
}

// QuantifiedExpr is `e?`, `e*`, `e+` (and non-greedy variants).
type QuantifiedExpr struct {
	base
	Inner Expr
	Quant Quantifier
}

// CapturedExpr is `e @name` with an optional type annotation. Suppress is
// true for `@_`/`@_n` (no field emitted, but still type-checked).
type CapturedExpr struct {
	base
	Inner     Expr
	Name      string
	Suppress  bool
	Annotated bool
	TypeName  string // "" unless Annotated; "string" is the builtin String type
}

// Expr is the sum type of every surface expression.
type Expr interface {
	Node
	exprNode()
}

func (NamedNode) exprNode()      {}
func (AnonymousNode) exprNode()  {}
func (Ref) exprNode()            {}
func (FieldExpr) exprNode()      {}
func (NegatedField) exprNode()   {}
func (Anchor) exprNode()         {}
func (SeqExpr) exprNode()        {}
func (AltExpr) exprNode()        {}
func (QuantifiedExpr) exprNode() {}
func (CapturedExpr) exprNode()   {}

// Def is `Name = expr`; Name == "" marks the single allowed unnamed def,
// which synthesizes the module's default entrypoint (spec.md §4.3).
type Def struct {
	base
	Name string
	Body Expr
}

// File is the parsed, ordered list of defs from one source, plus the
// lossless green tree (spec.md §4.1's `(green_tree, diagnostics,
// fuel_consumed)` contract) it was built alongside and the amount of
// parse fuel the pass spent reaching it.
type File struct {
	Defs         []Def
	Green        *GreenNode
	FuelConsumed int
}
