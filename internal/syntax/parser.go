package syntax

import (
	"fmt"

	"github.com/plotnik-lang/plotnik/internal/diag"
)

// ParseConfig bounds parser forward progress (spec.md §4.1).
type ParseConfig struct {
	ExecFuel       int
	RecursionLimit int
}

var DefaultParseConfig = ParseConfig{ExecFuel: 1_000_000, RecursionLimit: 512}

// Parse turns source into a File plus any diagnostics. It never returns a
// nil File: recovery-first parsing means the tree is always constructible
// (spec.md §4.1 "Failure semantics"). A non-nil error is only ever fuel
// exhaustion, the sole fatal condition this stage can raise.
func Parse(sourceID int, src string, cfg ParseConfig) (*File, *diag.Bag, error) {
	p := &parser{
		src:    src,
		toks:   lex(src),
		bag:    &diag.Bag{},
		cfg:    cfg,
		fuel:   cfg.ExecFuel,
		source: sourceID,
		gb:     newGreenBuilder(),
	}
	f, err := p.parseFile()
	if err != nil {
		if f != nil {
			f.FuelConsumed = cfg.ExecFuel - p.fuel
		}
		return f, p.bag, err
	}
	p.advance() // consume EOF, flushing any trailing trivia into the green tree
	f.Green = p.gb.finishRoot()
	f.FuelConsumed = cfg.ExecFuel - p.fuel
	return f, p.bag, nil
}

type parser struct {
	src    string
	toks   []Token
	pos    int
	bag    *diag.Bag
	cfg    ParseConfig
	fuel   int
	depth  int
	source int
	gb     *greenBuilder
}

func (p *parser) charge() error {
	if p.fuel <= 0 {
		return diag.Fatal(diag.KindUnknown, "parser exec fuel exhausted")
	}
	p.fuel--
	return nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > p.cfg.RecursionLimit {
		return diag.Fatal(diag.KindUnknown, "parser recursion limit exceeded")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func isTrivia(k TokenKind) bool { return k == TokComment || k == TokWhitespace }

// cur returns the next significant (non-trivia) token, buffering any
// whitespace/comment tokens it skips as leading trivia on the green
// builder so they're attached once the next token is actually consumed.
func (p *parser) cur() Token {
	for isTrivia(p.toks[p.pos].Kind) {
		p.gb.trivia(p.toks[p.pos])
		p.pos++
	}
	return p.toks[p.pos]
}

func (p *parser) advance() Token {
	t := p.cur()
	p.pos++
	p.gb.token(t)
	return t
}

func (p *parser) at(k TokenKind) bool { return p.cur().Kind == k }

func (p *parser) rangeOf(s Span) diag.Range {
	return diag.Range{SourceID: p.source, Start: s.Start, End: s.End}
}

func (p *parser) errf(s Span, kind diag.Kind, format string, args ...any) {
	p.bag.Add(diag.Message{Kind: kind, Range: p.rangeOf(s), Text: fmt.Sprintf(format, args...)})
}

// expect consumes tok if present; otherwise reports KindUnexpectedToken and
// leaves the cursor where it is, letting the caller's recovery/sync-set
// logic decide what happens next (spec.md §4.1).
func (p *parser) expect(k TokenKind, what string) (Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	t := p.cur()
	p.errf(t.Span, diag.KindUnexpectedToken, "expected %s, found %q", what, t.Text)
	return t, false
}

// recoverUntil consumes tokens (wrapping them conceptually into an error
// node) until one of sync matches or EOF, implementing spec.md §4.1's
// per-production recovery sets.
func (p *parser) recoverUntil(sync ...TokenKind) {
	for {
		if p.at(TokEOF) {
			return
		}
		for _, s := range sync {
			if p.at(s) {
				return
			}
		}
		p.advance()
	}
}

func (p *parser) parseFile() (*File, error) {
	f := &File{}
	sawUnnamed := false
	for !p.at(TokEOF) {
		if err := p.charge(); err != nil {
			return f, err
		}
		start := p.cur().Span
		def, err := p.parseDef()
		if err != nil {
			return f, err
		}
		if def.Name == "" {
			if sawUnnamed {
				p.errf(start, diag.KindUnexpectedToken, "only the last unnamed definition may omit a name")
			}
			sawUnnamed = true
		}
		f.Defs = append(f.Defs, def)
	}
	return f, nil
}

// parseDef disambiguates `Name = expr` from a bare expr (the allowed
// single unnamed def) using one token of lookahead on TokAssign, per
// spec.md §4.1's "LL(2) lookahead disambiguates Name = expr definitions".
func (p *parser) parseDef() (Def, error) {
	p.gb.start()
	start := p.cur().Span
	name := ""
	if p.at(TokIdent) && p.toks[p.nextSignificant(p.pos+1)].Kind == TokAssign {
		name = p.advance().Text
		p.advance() // '='
	}
	body, err := p.parseExpr()
	if err != nil {
		p.gb.finish(GreenDef)
		return Def{}, err
	}
	p.gb.finish(GreenDef)
	return Def{base: base{span: Span{start.Start, p.endOf(body)}}, Name: name, Body: body}, nil
}

// nextSignificant scans ahead from from for the next non-trivia token's
// index without consuming anything, for the parser's lookahead
// disambiguation; it never buffers trivia since the tokens it passes
// over are re-examined (and buffered for real) by a later cur()/advance().
func (p *parser) nextSignificant(from int) int {
	i := from
	for i < len(p.toks) && isTrivia(p.toks[i].Kind) {
		i++
	}
	if i >= len(p.toks) {
		return len(p.toks) - 1
	}
	return i
}

func (p *parser) endOf(e Expr) Pos {
	if e == nil {
		return p.cur().Span.Start
	}
	return e.Span().End
}

// parseExpr parses one postfix-decorated expression: a primary term
// followed by any of field/anchor prefixes already consumed by the
// primary, then capture and quantifier suffixes in either order. The
// green tree realizes spec.md §4.1's checkpoint-based wrapping directly:
// a checkpoint is saved before the primary is built, and each suffix
// retroactively reparents everything since that checkpoint under the
// suffix's own green node via startAt/finish, the same checkpoint
// serving every suffix in the chain since each finish leaves exactly one
// node at that position.
func (p *parser) parseExpr() (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	cp := p.gb.checkpoint()
	e, err := p.parsePrefixed()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(TokQuestion) || p.at(TokStar) || p.at(TokPlus):
			p.gb.startAt(cp)
			e = p.parseQuantifier(e)
			p.gb.finish(GreenQuantifiedExpr)
		case p.at(TokAt):
			p.gb.startAt(cp)
			e = p.parseCapture(e)
			p.gb.finish(GreenCapturedExpr)
		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrefixed() (Expr, error) {
	start := p.cur().Span
	switch {
	case p.at(TokBang):
		p.gb.start()
		p.advance()
		name, _ := p.expect(TokIdent, "field name")
		p.gb.finish(GreenNegatedField)
		return NegatedField{base: base{Span{start.Start, name.Span.End}}, Name: name.Text}, nil
	case p.at(TokIdent) && p.toks[p.nextSignificant(p.pos+1)].Kind == TokColon:
		p.gb.start()
		name := p.advance()
		p.advance() // ':'
		val, err := p.parseExpr()
		if err != nil {
			p.gb.finish(GreenFieldExpr)
			return nil, err
		}
		p.gb.finish(GreenFieldExpr)
		return FieldExpr{base: base{Span{start.Start, p.endOf(val)}}, Name: name.Text, Value: val}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	if err := p.charge(); err != nil {
		return nil, err
	}
	t := p.cur()
	switch t.Kind {
	case TokDot:
		p.gb.start()
		p.advance()
		p.gb.finish(GreenAnchor)
		return Anchor{base{t.Span}}, nil
	case TokUnderscore:
		p.gb.start()
		p.advance()
		p.gb.finish(GreenAnonymousNode)
		return AnonymousNode{base: base{t.Span}, Any: true}, nil
	case TokString:
		p.gb.start()
		p.advance()
		p.gb.finish(GreenAnonymousNode)
		return AnonymousNode{base: base{t.Span}, Literal: unquote(t.Text)}, nil
	case TokLParen:
		return p.parseParenGroup()
	case TokLBrace:
		return p.parseSeq()
	case TokLBracket:
		return p.parseAlt()
	default:
		p.gb.start()
		p.errf(t.Span, diag.KindUnexpectedToken, "expected an expression, found %q", t.Text)
		p.recoverUntil(TokRParen, TokRBracket, TokRBrace, TokEOF)
		p.gb.finish(GreenError)
		return AnonymousNode{base: base{t.Span}, Any: true}, nil
	}
}

// parseParenGroup handles `(Name)` (a Ref) and `(Kind child...)` (a
// NamedNode), the only two forms that open with `(`.
func (p *parser) parseParenGroup() (Expr, error) {
	p.gb.start()
	open := p.advance() // '('
	kindTok := p.cur()
	var kind string
	if p.at(TokIdent) || p.at(TokUnderscore) {
		kind = p.advance().Text
	} else {
		p.errf(kindTok.Span, diag.KindUnexpectedToken, "expected a node kind or def name")
	}

	if p.at(TokRParen) {
		close := p.advance()
		if isUpperRef(kind) {
			p.gb.finish(GreenRef)
			return Ref{base: base{Span{open.Span.Start, close.Span.End}}, Name: kind}, nil
		}
		p.gb.finish(GreenNamedNode)
		return NamedNode{base: base{Span{open.Span.Start, close.Span.End}}, Kind: kind}, nil
	}

	var children []Expr
	for !p.at(TokRParen) && !p.at(TokEOF) {
		if err := p.charge(); err != nil {
			return nil, err
		}
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	close, ok := p.expect(TokRParen, "')'")
	if !ok {
		p.errf(Span{open.Span.Start, open.Span.End}, diag.KindUnclosedDelimiter, "unclosed '(' opened here")
	}
	p.gb.finish(GreenNamedNode)
	return NamedNode{base: base{Span{open.Span.Start, close.Span.End}}, Kind: kind, Children: children}, nil
}

// isUpperRef distinguishes a def-reference name from a grammar node kind
// by convention: defs are capitalized (matching every example in spec.md,
// e.g. `(Name)`), grammar kinds are the lowercase identifiers tree-sitter
// grammars use (e.g. `identifier`).
func isUpperRef(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

func (p *parser) parseSeq() (Expr, error) {
	p.gb.start()
	open := p.advance() // '{'
	var elems []Expr
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		if err := p.charge(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	close, ok := p.expect(TokRBrace, "'}'")
	if !ok {
		p.errf(open.Span, diag.KindUnclosedDelimiter, "unclosed '{' opened here")
	}
	p.gb.finish(GreenSeqExpr)
	return SeqExpr{base: base{Span{open.Span.Start, close.Span.End}}, Elems: elems}, nil
}

// parseAlt handles both untagged `[e1 e2]` and tagged `[Tag1: e1 Tag2: e2]`
// forms, deciding per branch via one token of lookahead on a following
// TokColon after an identifier (spec.md §4.1). Each branch, tagged or
// not, gets its own GreenAltBranch node so the green tree shape is
// uniform regardless of which form the source uses.
func (p *parser) parseAlt() (Expr, error) {
	p.gb.start()
	open := p.advance() // '['
	var branches []AltBranch
	tagged := false
	first := true
	for !p.at(TokRBracket) && !p.at(TokEOF) {
		if err := p.charge(); err != nil {
			return nil, err
		}
		p.gb.start()
		tag := ""
		if p.at(TokIdent) && isUpperRef(p.cur().Text) && p.toks[p.nextSignificant(p.pos+1)].Kind == TokColon {
			tag = p.advance().Text
			p.advance() // ':'
		}
		if first {
			tagged = tag != ""
			first = false
		} else if (tag != "") != tagged {
			p.errf(p.cur().Span, diag.KindUnexpectedToken, "cannot mix tagged and untagged alternation branches")
		}
		val, err := p.parseExpr()
		if err != nil {
			p.gb.finish(GreenAltBranch)
			return nil, err
		}
		p.gb.finish(GreenAltBranch)
		branches = append(branches, AltBranch{Tag: tag, Value: val})
	}
	close, ok := p.expect(TokRBracket, "']'")
	if !ok {
		p.errf(open.Span, diag.KindUnclosedDelimiter, "unclosed '[' opened here")
	}
	p.gb.finish(GreenAltExpr)
	return AltExpr{base: base{Span{open.Span.Start, close.Span.End}}, Tagged: tagged, Branches: branches}, nil
}

func (p *parser) parseQuantifier(inner Expr) Expr {
	t := p.advance()
	q := QuantOpt
	switch t.Kind {
	case TokQuestion:
		q = QuantOpt
	case TokStar:
		q = QuantStar
	case TokPlus:
		q = QuantPlus
	}
	if p.at(TokQuestion) {
		p.advance()
		switch q {
		case QuantOpt:
			q = QuantOptLazy
		case QuantStar:
			q = QuantStarLazy
		case QuantPlus:
			q = QuantPlusLazy
		}
	}
	return QuantifiedExpr{base: base{Span{inner.Span().Start, t.Span.End}}, Inner: inner, Quant: q}
}

// parseCapture handles `@name`, `@_`, `@_n`, and the `:: T` / `:: string`
// type annotation suffix.
func (p *parser) parseCapture(inner Expr) Expr {
	at := p.advance() // '@'
	suppress := false
	name := ""
	switch {
	case p.at(TokUnderscore):
		p.advance()
		suppress = true
	case p.at(TokIdent):
		name = p.advance().Text
		if name == "_" {
			suppress = true
			name = ""
		}
	default:
		p.errf(at.Span, diag.KindUnexpectedToken, "expected a capture name after '@'")
	}

	c := CapturedExpr{Inner: inner, Name: name, Suppress: suppress}
	end := p.cur().Span.End
	if p.at(TokDoubleColon) {
		p.advance()
		if p.at(TokIdent) {
			tok := p.advance()
			c.Annotated = true
			c.TypeName = tok.Text
			end = tok.Span.End
		} else {
			p.errf(p.cur().Span, diag.KindUnexpectedToken, "expected a type name after '::'")
		}
	}
	c.base = base{Span{inner.Span().Start, end}}
	return c
}
