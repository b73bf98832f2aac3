package syntax

import (
	"slices"
	"strings"
)

// Parse parses a source file. A non-nil error is a *Error.
func Parse(filename string, src []byte) (f *File, err error) {
	lines := newLineTable(src)
	p := &parser{
		src:   src,
		lines: lines,
		sc:    newScanner(src, lines, 0, len(src)),
		vars:  newVarScope(nil),
	}
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			f, err = nil, e
		}
	}()

	p.next()
	body := p.parseStmts()
	return &File{Path: filename, Src: src, Body: body, lines: lines}, nil
}

// A varScope records the names the parser has seen assigned, which decides
// whether a bare identifier followed by an operand is a local variable or
// a method call with arguments (x -1 versus puts -1).
type varScope struct {
	names  map[string]bool
	parent *varScope // nil at method and class bodies
}

func newVarScope(parent *varScope) *varScope {
	return &varScope{names: make(map[string]bool), parent: parent}
}

type parser struct {
	src   []byte
	lines *lineTable
	sc    *scanner
	tok   token
	ahead []token
	vars  *varScope
	noDo  int // >0 while a do keyword belongs to an enclosing construct
}

func (p *parser) next() {
	if len(p.ahead) > 0 {
		p.tok = p.ahead[0]
		p.ahead = p.ahead[1:]
		return
	}
	p.tok = p.sc.next()
}

func (p *parser) peek() token {
	if len(p.ahead) == 0 {
		p.ahead = append(p.ahead, p.sc.next())
	}
	return p.ahead[0]
}

func (p *parser) pos(offset int) Position { return p.lines.position(offset) }

func (p *parser) errorf(offset int, format string, args ...any) {
	p.sc.errorf(offset, format, args...)
}

func (p *parser) expect(k Token) token {
	t := p.tok
	if t.kind != k {
		p.errorf(t.pos, "got %#v, want %#v", t.kind, k)
	}
	p.next()
	return t
}

func (p *parser) skipNewlines() {
	for p.tok.kind == NEWLINE {
		p.next()
	}
}

func (p *parser) skipTerms() {
	for p.tok.kind == NEWLINE || p.tok.kind == SEMI {
		p.next()
	}
}

func isTerm(k Token) bool { return k == NEWLINE || k == SEMI || k == EOF }

func (p *parser) isLocal(name string) bool {
	for s := p.vars; s != nil; s = s.parent {
		if s.names[name] {
			return true
		}
	}
	return false
}

func (p *parser) declare(name string) { p.vars.names[name] = true }

func (p *parser) declareTarget(x Node) {
	switch x := x.(type) {
	case *Ident:
		p.declare(x.Name)
	case *MLHS:
		for _, t := range x.Targets {
			p.declareTarget(t)
		}
	case *Unary:
		if x.X != nil {
			p.declareTarget(x.X)
		}
	}
}

// parseStmts parses statements up to EOF or one of the terminators,
// which is left as the current token.
func (p *parser) parseStmts(terms ...Token) []Node {
	var body []Node
	for {
		p.skipTerms()
		if p.tok.kind == EOF || slices.Contains(terms, p.tok.kind) {
			return body
		}
		body = append(body, p.parseStmt())
		if !isTerm(p.tok.kind) && !slices.Contains(terms, p.tok.kind) {
			p.errorf(p.tok.pos, "unexpected %#v, expected end of statement", p.tok.kind)
		}
	}
}

func (p *parser) parseStmt() Node {
	var x Node
	if p.tok.kind == STAR {
		x = p.parseMultiAssign(nil)
	} else {
		x = p.parseExprStmt()
		switch {
		case p.tok.kind == COMMA && isTarget(x):
			x = p.parseMultiAssign(x)
		case p.tok.kind == EQ && isMLHS(x):
			x = p.parseMultiAssign(x)
		case p.tok.kind == COMMA && isPlainAssign(x):
			a := x.(*AssignExpr)
			a.RHS = p.parseRHSList(a.RHS)
		}
	}
	return p.parseModifiers(x)
}

func (p *parser) parseModifiers(x Node) Node {
	for {
		t := p.tok
		switch t.kind {
		case IF, UNLESS:
			p.next()
			cond := p.parseExprStmt()
			x = &IfExpr{Keyword: t.kind, KwPos: p.pos(t.pos), Cond: cond, Then: []Node{x}, EndPos: End(cond), Modifier: true}
		case WHILE, UNTIL:
			p.next()
			cond := p.parseExprStmt()
			x = &WhileExpr{Keyword: t.kind, KwPos: p.pos(t.pos), Cond: cond, Body: []Node{x}, EndPos: End(cond), Modifier: true}
		case RESCUE:
			p.next()
			y := p.parseExprStmt()
			x = &Binary{X: x, OpPos: p.pos(t.pos), Op: RESCUE, Y: y}
		default:
			return x
		}
	}
}

// parseMultiAssign parses the remaining targets and the right-hand side
// of a, b = c, d. first is the already parsed first target, if any.
func (p *parser) parseMultiAssign(first Node) Node {
	if first == nil {
		first = p.parseMLHSItem()
	}
	targets := []Node{first}
	for p.tok.kind == COMMA {
		p.next()
		if p.tok.kind == EQ {
			break // a, = list
		}
		targets = append(targets, p.parseMLHSItem())
	}
	eq := p.expect(EQ)
	for _, t := range targets {
		p.declareTarget(t)
	}
	p.skipNewlines()
	rhs := p.parseRHSList(nil)
	return &MultiAssign{LHS: targets, OpPos: p.pos(eq.pos), RHS: rhs}
}

func (p *parser) parseRHSList(first Node) Node {
	if first == nil {
		first = p.parseArg()
	}
	elems := []Node{first}
	for p.tok.kind == COMMA {
		p.next()
		p.skipNewlines()
		elems = append(elems, p.parseArg())
	}
	if len(elems) == 1 && !isSplat(elems[0]) {
		return elems[0]
	}
	return &ArrayLit{Elems: elems}
}

func (p *parser) parseMLHSItem() Node {
	t := p.tok
	switch t.kind {
	case STAR:
		p.next()
		u := &Unary{OpPos: p.pos(t.pos), Op: STAR, End: p.pos(t.end)}
		switch p.tok.kind {
		case COMMA, EQ, RPAREN, IN, PIPE:
		default:
			u.X = p.parseMLHSItem()
			u.End = End(u.X)
		}
		return u
	case LPAREN:
		p.next()
		var targets []Node
		for {
			targets = append(targets, p.parseMLHSItem())
			if p.tok.kind != COMMA {
				break
			}
			p.next()
		}
		rp := p.expect(RPAREN)
		return &MLHS{Lparen: p.pos(t.pos), Targets: targets, Rparen: p.pos(rp.pos)}
	}
	x := p.parsePostfix(p.parsePrimary())
	if !isAssignable(x) {
		p.errorf(t.pos, "cannot assign to this expression")
	}
	return x
}

func isAssignable(x Node) bool {
	switch x := x.(type) {
	case *Ident, *NonLocalVar, *Const, *IndexExpr:
		return true
	case *CallExpr:
		return x.Recv != nil && !x.Lparen.IsValid() && len(x.Args) == 0 && x.Block == nil
	}
	return false
}

func isTarget(x Node) bool { return isMLHS(x) || isSplat(x) || isAssignable(x) }

func isMLHS(x Node) bool {
	_, ok := x.(*MLHS)
	return ok
}

func isSplat(x Node) bool {
	u, ok := x.(*Unary)
	return ok && u.Op == STAR
}

func isPlainAssign(x Node) bool {
	a, ok := x.(*AssignExpr)
	return ok && a.Op == EQ
}

func isAssignOp(k Token) bool { return k >= EQ && k <= OROR_EQ }

// parseExprStmt parses an expression joined by the low-precedence
// logical keywords and, or and not.
func (p *parser) parseExprStmt() Node {
	x := p.parseNotExpr()
	for p.tok.kind == AND || p.tok.kind == OR {
		op := p.tok
		p.next()
		p.skipNewlines()
		y := p.parseNotExpr()
		x = &Binary{X: x, OpPos: p.pos(op.pos), Op: op.kind, Y: y}
	}
	return x
}

func (p *parser) parseNotExpr() Node {
	if t := p.tok; t.kind == NOT {
		p.next()
		x := p.parseNotExpr()
		return &Unary{OpPos: p.pos(t.pos), Op: NOT, X: x, End: End(x)}
	}
	return p.parseExpr()
}

// parseExpr parses an assignment or a ternary expression.
func (p *parser) parseExpr() Node {
	x := p.parseTernary()
	if !isAssignOp(p.tok.kind) || !isAssignable(x) {
		return x
	}
	op := p.tok
	p.next()
	p.skipNewlines()
	// The target is a local from here on, even within its own right-hand side.
	p.declareTarget(x)
	rhs := p.parseExpr()
	if r := p.tok; r.kind == RESCUE {
		p.next()
		y := p.parseExpr()
		rhs = &Binary{X: rhs, OpPos: p.pos(r.pos), Op: RESCUE, Y: y}
	}
	return &AssignExpr{LHS: x, OpPos: p.pos(op.pos), Op: op.kind, RHS: rhs}
}

func (p *parser) parseTernary() Node {
	cond := p.parseRange()
	if p.tok.kind != QUESTION {
		return cond
	}
	q := p.tok
	p.next()
	p.skipNewlines()
	t := p.parseExpr()
	p.skipNewlines()
	colon := p.expect(COLON)
	p.skipNewlines()
	f := p.parseExpr()
	return &IfExpr{
		Keyword: QUESTION,
		KwPos:   p.pos(q.pos),
		Cond:    cond,
		Then:    []Node{t},
		ElsePos: p.pos(colon.pos),
		Else:    []Node{f},
		EndPos:  End(f),
	}
}

func (p *parser) parseRange() Node {
	x := p.parseBinary(1)
	if op := p.tok; op.kind == DOT2 || op.kind == DOT3 {
		p.next()
		var y Node
		if canStartArg(p.tok.kind) {
			y = p.parseBinary(1)
		}
		x = &Binary{X: x, OpPos: p.pos(op.pos), Op: op.kind, Y: y}
	}
	return x
}

func precedence(k Token) int {
	switch k {
	case OROR:
		return 1
	case ANDAND:
		return 2
	case CMP, EQEQ, EQEQEQ, NEQ, MATCH, NMATCH:
		return 3
	case LT, LE, GT, GE:
		return 4
	case PIPE, CARET:
		return 5
	case AMP:
		return 6
	case LTLT, GTGT:
		return 7
	case PLUS, MINUS:
		return 8
	case STAR, SLASH, PERCENT:
		return 9
	case STARSTAR:
		return 10
	}
	return 0
}

func (p *parser) parseBinary(min int) Node {
	x := p.parseUnary()
	for {
		prec := precedence(p.tok.kind)
		if prec == 0 || prec < min {
			return x
		}
		op := p.tok
		p.next()
		p.skipNewlines()
		next := prec + 1
		if op.kind == STARSTAR {
			next = prec // right associative
		}
		y := p.parseBinary(next)
		x = &Binary{X: x, OpPos: p.pos(op.pos), Op: op.kind, Y: y}
	}
}

func (p *parser) parseUnary() Node {
	switch t := p.tok; t.kind {
	case BANG, TILDE, MINUS, PLUS:
		p.next()
		x := p.parseUnary()
		return &Unary{OpPos: p.pos(t.pos), Op: t.kind, X: x, End: End(x)}
	case DEFINED:
		return p.parseDefined()
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *parser) parseDefined() Node {
	t := p.tok
	p.next()
	if p.tok.kind == LPAREN && !p.tok.space {
		p.next()
		p.skipNewlines()
		x := p.parseExprStmt()
		p.skipNewlines()
		rp := p.expect(RPAREN)
		return &Unary{OpPos: p.pos(t.pos), Op: DEFINED, X: x, End: p.pos(rp.end)}
	}
	x := p.parseUnary()
	return &Unary{OpPos: p.pos(t.pos), Op: DEFINED, X: x, End: End(x)}
}

func (p *parser) parsePostfix(x Node) Node {
	for {
		switch p.tok.kind {
		case DOT, AMPDOT:
			dot := p.tok
			p.next()
			p.skipNewlines()
			x = p.parseMethodCall(x, dot.kind)
		case COLON2:
			if p.tok.space {
				return x
			}
			p.next()
			if c := p.tok; c.kind == CONST {
				if nt := p.peek(); nt.kind != LPAREN || nt.space {
					p.next()
					x = &Const{Scope: x, NamePos: p.pos(c.pos), Name: c.raw}
					continue
				}
			}
			x = p.parseMethodCall(x, COLON2)
		case LBRACK:
			lb := p.tok
			p.next()
			args := p.parseArgs(RBRACK)
			rb := p.expect(RBRACK)
			x = &IndexExpr{X: x, Lbrack: p.pos(lb.pos), Args: args, Rbrack: p.pos(rb.pos)}
		default:
			return x
		}
	}
}

func isOperatorMethod(k Token) bool {
	return k >= PLUS && k <= OROR
}

func (p *parser) parseMethodCall(recv Node, dot Token) Node {
	t := p.tok
	call := &CallExpr{Recv: recv, Dot: dot, NamePos: p.pos(t.pos)}
	switch {
	case t.kind == IDENT || t.kind == CONST:
		call.Name = t.raw
		p.next()
	case t.kind == LPAREN:
		call.Name = "call" // recv.(args)
	case isOperatorMethod(t.kind):
		call.Name = t.raw
		p.next()
	default:
		p.errorf(t.pos, "expected method name after %#v, got %#v", dot, t.kind)
	}
	call.EndPos = p.pos(t.end)
	if t.kind == LPAREN {
		call.EndPos = call.NamePos
	}
	p.parseCallRest(call)
	return call
}

// parseCallRest parses the arguments and block of a call whose name has
// been consumed.
func (p *parser) parseCallRest(call *CallExpr) {
	switch {
	case p.tok.kind == LPAREN && !p.tok.space:
		lp := p.tok
		p.next()
		call.Lparen = p.pos(lp.pos)
		call.Args = p.parseArgs(RPAREN)
		rp := p.expect(RPAREN)
		call.Rparen = p.pos(rp.pos)
		call.EndPos = p.pos(rp.end)
	case p.canStartCommandArg():
		call.Args = p.parseArgs(ILLEGAL)
		call.EndPos = End(call.Args[len(call.Args)-1])
	}
	if b := p.parseBlockOpt(); b != nil {
		call.Block = b
		call.EndPos = b.EndPos
	}
}

func (p *parser) parseBlockOpt() *BlockExpr {
	if p.tok.kind == LBRACE || p.tok.kind == DO && p.noDo == 0 {
		return p.parseBlock()
	}
	return nil
}

// canStartCommandArg reports whether the current token begins the first
// argument of a call written without parentheses.
func (p *parser) canStartCommandArg() bool {
	t := p.tok
	if !t.space {
		return false
	}
	switch t.kind {
	case IDENT, CONST, IVAR, CVAR, GVAR, INT, FLOAT, STRING, SYMBOL, CHAR, LABEL,
		NIL, TRUE, FALSE, SELF, NOT, DEFINED, ARROW, LBRACK, LPAREN, COLON2, DEF:
		return true
	case MINUS, STAR, STARSTAR, AMP, BANG, TILDE:
		return t.end < len(p.src) && !isSpace(p.src[t.end]) && p.src[t.end] != '\n'
	}
	return false
}

// canStartArg reports whether k can begin an argument of return, break,
// next or yield, or the end of a range.
func canStartArg(k Token) bool {
	switch k {
	case IDENT, CONST, IVAR, CVAR, GVAR, INT, FLOAT, STRING, SYMBOL, CHAR, LABEL,
		NIL, TRUE, FALSE, SELF, NOT, DEFINED, ARROW, LBRACK, LPAREN, COLON2,
		MINUS, PLUS, BANG, TILDE, STAR, STARSTAR,
		CASE, BEGIN, DEF, YIELD, SUPER:
		return true
	}
	return false
}

// parseArgs parses a comma-separated argument list. With close set to
// ILLEGAL it parses the arguments of a call without parentheses; otherwise
// it stops before close, which the caller consumes. Trailing hash pairs
// are gathered into a brace-less HashLit.
func (p *parser) parseArgs(close Token) []Node {
	saved := p.noDo
	if close == ILLEGAL {
		p.noDo++
	} else {
		p.noDo = 0
		p.skipNewlines()
	}
	var args []Node
	var hash *HashLit
	for close == ILLEGAL || p.tok.kind != close {
		arg := p.parseArg()
		if isHashArg(arg) {
			if hash == nil {
				hash = &HashLit{}
				args = append(args, hash)
			}
			hash.Pairs = append(hash.Pairs, arg)
		} else {
			hash = nil
			args = append(args, arg)
		}
		if close != ILLEGAL {
			p.skipNewlines()
		}
		if p.tok.kind != COMMA {
			break
		}
		p.next()
		p.skipNewlines()
	}
	p.noDo = saved
	return args
}

func isHashArg(x Node) bool {
	switch x := x.(type) {
	case *Pair:
		return true
	case *Unary:
		return x.Op == STARSTAR
	}
	return false
}

func (p *parser) argEnds() bool {
	switch p.tok.kind {
	case COMMA, RPAREN, RBRACK, RBRACE, NEWLINE, SEMI, EOF, PIPE:
		return true
	}
	return false
}

func (p *parser) labelValueMissing() bool {
	switch p.tok.kind {
	case COMMA, RPAREN, RBRACK, RBRACE, NEWLINE, SEMI, EOF, PIPE, IF, UNLESS, WHILE, UNTIL, DO:
		return true
	}
	return false
}

// labelRef returns the variable or constant read by the shorthand x: or X:.
func (p *parser) labelRef(t token) Node {
	if c := t.raw[0]; 'A' <= c && c <= 'Z' {
		return &Const{NamePos: p.pos(t.pos), Name: t.raw}
	}
	return &Ident{NamePos: p.pos(t.pos), Name: t.raw}
}

func (p *parser) parseArg() Node {
	t := p.tok
	switch t.kind {
	case STAR, STARSTAR, AMP:
		p.next()
		u := &Unary{OpPos: p.pos(t.pos), Op: t.kind, End: p.pos(t.end)}
		if !p.argEnds() {
			u.X = p.parseTernary()
			u.End = End(u.X)
		}
		return u
	case DOT3:
		if p.peek().kind == RPAREN {
			p.next()
			return &Unary{OpPos: p.pos(t.pos), Op: DOT3, End: p.pos(t.end)}
		}
	case LABEL:
		p.next()
		key := &Literal{Token: LABEL, ValuePos: p.pos(t.pos), Raw: t.raw + ":"}
		if p.labelValueMissing() {
			return &Pair{Key: key, Value: p.labelRef(t), Shorthand: true}
		}
		p.skipNewlines()
		return &Pair{Key: key, Value: p.parseNotExpr()}
	case STRING:
		if nt := p.peek(); nt.kind == COLON && !nt.space && t.str == PlainString {
			key := p.parseString()
			p.next()
			p.skipNewlines()
			return &Pair{Key: key, Value: p.parseNotExpr()}
		}
	}
	x := p.parseNotExpr()
	if p.tok.kind == FATARROW {
		p.next()
		p.skipNewlines()
		return &Pair{Key: x, Value: p.parseNotExpr()}
	}
	return x
}

func (p *parser) parsePrimary() Node {
	t := p.tok
	switch t.kind {
	case INT, FLOAT, SYMBOL, CHAR, NIL, TRUE, FALSE, SELF:
		p.next()
		return &Literal{Token: t.kind, ValuePos: p.pos(t.pos), Raw: t.raw}
	case STRING:
		return p.parseString()
	case IVAR, CVAR, GVAR:
		p.next()
		return &NonLocalVar{Kind: t.kind, NamePos: p.pos(t.pos), Name: t.raw}
	case IDENT:
		return p.parseIdent()
	case CONST:
		p.next()
		if p.tok.kind == LPAREN && !p.tok.space {
			call := &CallExpr{NamePos: p.pos(t.pos), Name: t.raw, EndPos: p.pos(t.end)}
			p.parseCallRest(call)
			return call
		}
		return &Const{NamePos: p.pos(t.pos), Name: t.raw}
	case COLON2:
		p.next()
		c := p.expect(CONST)
		return &Const{NamePos: p.pos(c.pos), Name: c.raw}
	case LPAREN:
		return p.parseParen()
	case LBRACK:
		p.next()
		elems := p.parseArgs(RBRACK)
		rb := p.expect(RBRACK)
		return &ArrayLit{Lbrack: p.pos(t.pos), Elems: elems, Rbrack: p.pos(rb.pos)}
	case LBRACE:
		return p.parseHash()
	case ARROW:
		return p.parseLambda()
	case DOT2, DOT3:
		p.next()
		y := p.parseBinary(1)
		return &Binary{OpPos: p.pos(t.pos), Op: t.kind, Y: y}
	case BANG, TILDE, MINUS, PLUS, DEFINED:
		return p.parseUnary()
	case NOT:
		p.next()
		x := p.parseExpr()
		return &Unary{OpPos: p.pos(t.pos), Op: NOT, X: x, End: End(x)}
	case DEF:
		return p.parseDef()
	case CLASS, MODULE:
		return p.parseClass()
	case IF, UNLESS:
		return p.parseIf()
	case WHILE, UNTIL:
		return p.parseWhile()
	case FOR:
		return p.parseFor()
	case CASE:
		return p.parseCase()
	case BEGIN:
		return p.parseBegin()
	case RETURN, BREAK, NEXT, REDO, RETRY, YIELD, SUPER:
		return p.parseKeywordExpr()
	case UNDEF:
		return p.parseUndef()
	case ALIAS:
		return p.parseAlias()
	}
	p.errorf(t.pos, "unexpected %#v", t.kind)
	return nil
}

// parseIdent parses a bare identifier, which is a local variable if one
// of that name has been assigned and a method call otherwise.
func (p *parser) parseIdent() Node {
	t := p.tok
	p.next()
	ident := &Ident{NamePos: p.pos(t.pos), Name: t.raw}
	call := &CallExpr{NamePos: ident.NamePos, Name: t.raw, EndPos: p.pos(t.end)}
	switch {
	case p.tok.kind == LPAREN && !p.tok.space:
	case p.isLocal(t.raw):
		return ident
	case p.canStartCommandArg(), p.tok.kind == LBRACE, p.tok.kind == DO && p.noDo == 0:
	case strings.HasSuffix(t.raw, "?"), strings.HasSuffix(t.raw, "!"):
		return call
	default:
		return ident
	}
	p.parseCallRest(call)
	return call
}

func (p *parser) parseString() Node {
	t := p.tok
	p.next()
	s := &StringLit{Kind: t.str, Start: p.pos(t.pos), End: p.pos(t.end)}
	s.Parts = p.parseEmbedded(t.interp)
	// adjacent literals concatenate: "a" "b"
	for p.tok.kind == STRING && t.str == PlainString && p.tok.str == PlainString {
		u := p.tok
		p.next()
		s.End = p.pos(u.end)
		s.Parts = append(s.Parts, p.parseEmbedded(u.interp)...)
	}
	return s
}

// parseEmbedded parses the code of #{...} interpolations. Assignments
// inside an interpolation declare locals of the enclosing scope.
func (p *parser) parseEmbedded(spans []span) []Node {
	var parts []Node
	for _, sp := range spans {
		sub := &parser{
			src:   p.src,
			lines: p.lines,
			sc:    newScanner(p.src, p.lines, sp.lo, sp.hi),
			vars:  p.vars,
		}
		sub.next()
		parts = append(parts, sub.parseStmts()...)
	}
	return parts
}

func (p *parser) parseParen() Node {
	lp := p.tok
	p.next()
	saved := p.noDo
	p.noDo = 0
	defer func() { p.noDo = saved }()

	p.skipTerms()
	var body []Node
	if p.tok.kind != RPAREN {
		var x Node
		if p.tok.kind == STAR {
			x = p.parseMLHSItem()
		} else {
			x = p.parseExprStmt()
		}
		if isSplat(x) || p.tok.kind == COMMA && isTarget(x) {
			targets := []Node{x}
			for p.tok.kind == COMMA {
				p.next()
				targets = append(targets, p.parseMLHSItem())
			}
			rp := p.expect(RPAREN)
			return &MLHS{Lparen: p.pos(lp.pos), Targets: targets, Rparen: p.pos(rp.pos)}
		}
		body = append(body, p.parseModifiers(x))
		body = append(body, p.parseStmts(RPAREN)...)
	}
	rp := p.expect(RPAREN)
	return &ParenExpr{Lparen: p.pos(lp.pos), Body: body, Rparen: p.pos(rp.pos)}
}

func (p *parser) parseHash() Node {
	lb := p.tok
	p.next()
	saved := p.noDo
	p.noDo = 0
	p.skipNewlines()
	h := &HashLit{Lbrace: p.pos(lb.pos)}
	for p.tok.kind != RBRACE {
		t := p.tok
		pair := p.parseArg()
		if !isHashArg(pair) {
			p.errorf(t.pos, "expected => after hash key")
		}
		h.Pairs = append(h.Pairs, pair)
		p.skipNewlines()
		if p.tok.kind != COMMA {
			break
		}
		p.next()
		p.skipNewlines()
	}
	rb := p.expect(RBRACE)
	p.noDo = saved
	h.Rbrace = p.pos(rb.pos)
	return h
}

func (p *parser) parseBlock() *BlockExpr {
	open := p.tok
	p.next()
	b := &BlockExpr{Kind: BraceBlock, Open: p.pos(open.pos)}
	closing := RBRACE
	if open.kind == DO {
		b.Kind, closing = DoBlock, END
	}
	savedVars, savedNoDo := p.vars, p.noDo
	p.vars = newVarScope(p.vars)
	p.noDo = 0

	p.skipNewlines()
	switch p.tok.kind {
	case OROR:
		p.next()
	case PIPE:
		p.next()
		b.Params = p.parseParamList(PIPE)
		p.expect(PIPE)
	}
	if b.Kind == DoBlock {
		b.Body = p.parseBodyWithRescue()
	} else {
		b.Body = p.parseStmts(RBRACE)
	}
	end := p.expect(closing)
	b.EndPos = p.pos(end.end)

	p.vars, p.noDo = savedVars, savedNoDo
	return b
}

func (p *parser) parseLambda() Node {
	a := p.tok
	p.next()
	b := &BlockExpr{Kind: Lambda, Open: p.pos(a.pos)}
	savedVars, savedNoDo := p.vars, p.noDo
	p.vars = newVarScope(p.vars)
	p.noDo = 0

	switch p.tok.kind {
	case LPAREN:
		p.next()
		b.Params = p.parseParamList(RPAREN)
		p.expect(RPAREN)
	case IDENT, STAR, STARSTAR, AMP, LABEL:
		b.Params = p.parseParamList(ILLEGAL)
	}
	var end token
	switch p.tok.kind {
	case LBRACE:
		p.next()
		b.Body = p.parseStmts(RBRACE)
		end = p.expect(RBRACE)
	case DO:
		p.next()
		b.Body = p.parseBodyWithRescue()
		end = p.expect(END)
	default:
		p.errorf(p.tok.pos, "expected lambda body, got %#v", p.tok.kind)
	}
	b.EndPos = p.pos(end.end)

	p.vars, p.noDo = savedVars, savedNoDo
	return b
}

// parseParamList parses block or lambda parameters, including the
// block-local names after a semicolon, up to close.
func (p *parser) parseParamList(close Token) []*Param {
	var params []*Param
	for p.tok.kind != close && p.tok.kind != SEMI {
		params = append(params, p.parseParam(true))
		if p.tok.kind != COMMA {
			break
		}
		p.next()
	}
	if p.tok.kind == SEMI {
		p.next()
		for {
			t := p.expect(IDENT)
			params = append(params, &Param{Kind: BlockLocalParam, NamePos: p.pos(t.pos), Name: t.raw, EndPos: p.pos(t.end)})
			p.declare(t.raw)
			if p.tok.kind != COMMA {
				break
			}
			p.next()
		}
	}
	return params
}

func (p *parser) parseMethodParams() []*Param {
	var params []*Param
	if p.tok.kind == LPAREN {
		p.next()
		p.skipNewlines()
		for p.tok.kind != RPAREN {
			params = append(params, p.parseParam(false))
			p.skipNewlines()
			if p.tok.kind != COMMA {
				break
			}
			p.next()
			p.skipNewlines()
		}
		p.expect(RPAREN)
		return params
	}
	for !isTerm(p.tok.kind) && p.tok.kind != EQ {
		params = append(params, p.parseParam(false))
		if p.tok.kind != COMMA {
			break
		}
		p.next()
	}
	return params
}

func (p *parser) paramEnds() bool {
	switch p.tok.kind {
	case COMMA, RPAREN, PIPE, NEWLINE, SEMI, EOF:
		return true
	}
	return false
}

// parseParamDefault parses a default value. Block parameter defaults
// stop before binary operators so that the closing | is not consumed.
func (p *parser) parseParamDefault(block bool) Node {
	if block {
		return p.parseUnary()
	}
	return p.parseTernary()
}

func (p *parser) parseParam(block bool) *Param {
	t := p.tok
	prm := &Param{NamePos: p.pos(t.pos), EndPos: p.pos(t.end)}
	named := func(kind ParamKind) {
		prm.Kind = kind
		p.next()
		if n := p.tok; n.kind == IDENT {
			prm.NamePos, prm.Name, prm.EndPos = p.pos(n.pos), n.raw, p.pos(n.end)
			p.next()
		}
	}
	switch t.kind {
	case STAR:
		named(RestParam)
	case STARSTAR:
		named(KeywordRestParam)
		if prm.Name == "" && p.tok.kind == NIL {
			p.next() // **nil
		}
	case AMP:
		named(BlockParam)
	case DOT3:
		p.next()
		prm.Kind = ForwardParam
	case LPAREN:
		if !block {
			p.errorf(t.pos, "unexpected %#v in parameter list", t.kind)
		}
		p.next()
		prm.Kind = DestructureParam
		for {
			prm.Sub = append(prm.Sub, p.parseParam(true))
			if p.tok.kind != COMMA {
				break
			}
			p.next()
		}
		rp := p.expect(RPAREN)
		prm.EndPos = p.pos(rp.end)
		return prm
	case LABEL:
		p.next()
		prm.Kind, prm.Name = KeywordParam, t.raw
		prm.EndPos = p.pos(t.pos + len(t.raw))
		if !p.paramEnds() {
			prm.Default = p.parseParamDefault(block)
		}
	case IDENT:
		p.next()
		prm.Kind, prm.Name = RequiredParam, t.raw
		if p.tok.kind == EQ {
			p.next()
			prm.Kind = OptionalParam
			prm.Default = p.parseParamDefault(block)
		}
	default:
		p.errorf(t.pos, "unexpected %#v in parameter list", t.kind)
	}
	if prm.Name != "" {
		p.declare(prm.Name)
	}
	return prm
}

func (p *parser) parseDef() Node {
	def := p.tok
	p.next()
	d := &MethodDef{Def: p.pos(def.pos)}

	// def self.name, def obj.name
	if r := p.tok; r.kind == IDENT || r.kind == CONST {
		if nt := p.peek(); nt.kind == DOT && !nt.space {
			switch {
			case r.raw == "self":
				d.Recv = &Literal{Token: SELF, ValuePos: p.pos(r.pos), Raw: r.raw}
			case r.kind == CONST:
				d.Recv = &Const{NamePos: p.pos(r.pos), Name: r.raw}
			default:
				d.Recv = &Ident{NamePos: p.pos(r.pos), Name: r.raw}
			}
			p.next()
			p.next()
		}
	}

	t := p.tok
	d.NamePos = p.pos(t.pos)
	switch {
	case t.kind == IDENT || t.kind == CONST:
		d.Name = t.raw
		p.next()
		if p.tok.kind == EQ && !p.tok.space && p.peek().kind == LPAREN {
			d.Name += "="
			p.next()
		}
	case t.kind == LBRACK:
		p.next()
		p.expect(RBRACK)
		d.Name = "[]"
		if p.tok.kind == EQ && !p.tok.space {
			d.Name = "[]="
			p.next()
		}
	case isOperatorMethod(t.kind):
		d.Name = t.raw
		p.next()
	default:
		p.errorf(t.pos, "expected method name, got %#v", t.kind)
	}

	saved := p.vars
	p.vars = newVarScope(nil)
	defer func() { p.vars = saved }()

	d.Params = p.parseMethodParams()
	if p.tok.kind == EQ {
		p.next()
		p.skipNewlines()
		body := p.parseStmt()
		d.Body = []Node{body}
		d.EndPos = End(body)
		d.Endless = true
		return d
	}
	d.Body = p.parseBodyWithRescue()
	end := p.expect(END)
	d.EndPos = p.pos(end.end)
	return d
}

func (p *parser) parseClass() Node {
	kw := p.tok
	p.next()
	c := &ClassDef{Keyword: kw.kind, KwPos: p.pos(kw.pos)}
	if kw.kind == CLASS && p.tok.kind == LTLT {
		p.next()
		c.Singleton = p.parseExpr()
	} else {
		t := p.tok
		c.Name = p.parsePostfix(p.parsePrimary())
		if _, ok := c.Name.(*Const); !ok {
			p.errorf(t.pos, "expected %s name", kw.kind)
		}
		if kw.kind == CLASS && p.tok.kind == LT {
			p.next()
			c.Super = p.parseExpr()
		}
	}

	saved := p.vars
	p.vars = newVarScope(nil)
	c.Body = p.parseBodyWithRescue()
	p.vars = saved

	end := p.expect(END)
	c.EndPos = p.pos(end.end)
	return c
}

func (p *parser) parseThen() {
	p.skipTerms()
	if p.tok.kind == THEN {
		p.next()
	}
}

func (p *parser) parseIf() Node {
	x := p.parseIfClause()
	end := p.expect(END)
	for n := x; n != nil; n = ElsifOf(n) {
		n.EndPos = p.pos(end.end)
	}
	return x
}

func (p *parser) parseIfClause() *IfExpr {
	kw := p.tok
	p.next()
	cond := p.parseExprStmt()
	p.parseThen()
	x := &IfExpr{Keyword: kw.kind, KwPos: p.pos(kw.pos), Cond: cond}
	x.Then = p.parseStmts(ELSIF, ELSE, END)
	switch t := p.tok; t.kind {
	case ELSIF:
		if kw.kind == UNLESS {
			p.errorf(t.pos, "unless cannot have elsif")
		}
		x.ElsePos = p.pos(t.pos)
		x.Else = []Node{p.parseIfClause()}
	case ELSE:
		x.ElsePos = p.pos(t.pos)
		p.next()
		x.Else = p.parseStmts(END)
	}
	return x
}

// ElsifOf returns the elsif clause chained to x, or nil.
func ElsifOf(x *IfExpr) *IfExpr {
	if len(x.Else) == 1 {
		if e, ok := x.Else[0].(*IfExpr); ok && e.Keyword == ELSIF {
			return e
		}
	}
	return nil
}

func (p *parser) parseWhile() Node {
	kw := p.tok
	p.next()
	p.noDo++
	cond := p.parseExprStmt()
	p.noDo--
	p.skipTerms()
	if p.tok.kind == DO {
		p.next()
	}
	body := p.parseStmts(END)
	end := p.expect(END)
	return &WhileExpr{Keyword: kw.kind, KwPos: p.pos(kw.pos), Cond: cond, Body: body, EndPos: p.pos(end.end)}
}

func (p *parser) parseFor() Node {
	f := p.tok
	p.next()
	var vars []Node
	for {
		vars = append(vars, p.parseMLHSItem())
		if p.tok.kind != COMMA {
			break
		}
		p.next()
	}
	p.expect(IN)
	for _, v := range vars {
		p.declareTarget(v)
	}
	p.noDo++
	iter := p.parseExprStmt()
	p.noDo--
	p.skipTerms()
	if p.tok.kind == DO {
		p.next()
	}
	body := p.parseStmts(END)
	end := p.expect(END)
	return &ForExpr{For: p.pos(f.pos), Vars: vars, Iter: iter, Body: body, EndPos: p.pos(end.end)}
}

func (p *parser) parseCase() Node {
	c := p.tok
	p.next()
	x := &CaseExpr{Case: p.pos(c.pos)}
	if !isTerm(p.tok.kind) {
		x.Subject = p.parseExprStmt()
	}
	p.skipTerms()
	if p.tok.kind == IN {
		p.errorf(p.tok.pos, "pattern matching is not supported")
	}
	for p.tok.kind == WHEN {
		w := &WhenClause{When: p.pos(p.tok.pos)}
		p.next()
		for {
			w.Conds = append(w.Conds, p.parseArg())
			if p.tok.kind != COMMA {
				break
			}
			p.next()
			p.skipNewlines()
		}
		p.parseThen()
		w.Body = p.parseStmts(WHEN, ELSE, END)
		x.Whens = append(x.Whens, w)
	}
	if len(x.Whens) == 0 {
		p.errorf(p.tok.pos, "case without when")
	}
	if t := p.tok; t.kind == ELSE {
		x.ElsePos = p.pos(t.pos)
		p.next()
		x.Else = p.parseStmts(END)
	}
	end := p.expect(END)
	x.EndPos = p.pos(end.end)
	return x
}

func (p *parser) parseBegin() Node {
	b := p.tok
	p.next()
	x := p.parseBeginBody(b.pos)
	end := p.expect(END)
	x.EndPos = p.pos(end.end)
	return x
}

// parseBeginBody parses a body with optional rescue, else and ensure
// clauses, stopping before the closing end.
func (p *parser) parseBeginBody(start int) *BeginExpr {
	x := &BeginExpr{Begin: p.pos(start)}
	x.Body = p.parseStmts(RESCUE, ELSE, ENSURE, END)
	for p.tok.kind == RESCUE {
		rc := &RescueClause{Rescue: p.pos(p.tok.pos)}
		p.next()
		if k := p.tok.kind; !isTerm(k) && k != FATARROW && k != THEN {
			for {
				rc.Classes = append(rc.Classes, p.parseRescueClass())
				if p.tok.kind != COMMA {
					break
				}
				p.next()
				p.skipNewlines()
			}
		}
		if p.tok.kind == FATARROW {
			p.next()
			rc.Var = p.parseMLHSItem()
			p.declareTarget(rc.Var)
		}
		p.parseThen()
		rc.Body = p.parseStmts(RESCUE, ELSE, ENSURE, END)
		rc.EndPos = p.pos(p.tok.pos)
		x.Rescues = append(x.Rescues, rc)
	}
	if t := p.tok; t.kind == ELSE {
		x.ElsePos = p.pos(t.pos)
		p.next()
		x.Else = p.parseStmts(ENSURE, END)
	}
	if t := p.tok; t.kind == ENSURE {
		x.EnsurePos = p.pos(t.pos)
		p.next()
		x.Ensure = p.parseStmts(END)
	}
	return x
}

func (p *parser) parseRescueClass() Node {
	if t := p.tok; t.kind == STAR {
		p.next()
		x := p.parseTernary()
		return &Unary{OpPos: p.pos(t.pos), Op: STAR, X: x, End: End(x)}
	}
	return p.parseTernary()
}

// parseBodyWithRescue parses the body of a def, class or do-block, which
// may carry rescue clauses without an explicit begin.
func (p *parser) parseBodyWithRescue() []Node {
	x := p.parseBeginBody(p.tok.pos)
	if len(x.Rescues) == 0 && !x.ElsePos.IsValid() && !x.EnsurePos.IsValid() {
		return x.Body
	}
	x.Implicit = true
	x.EndPos = p.pos(p.tok.pos)
	return []Node{x}
}

func (p *parser) parseKeywordExpr() Node {
	t := p.tok
	p.next()
	x := &KeywordExpr{Keyword: t.kind, KwPos: p.pos(t.pos), EndPos: p.pos(t.end)}
	if t.kind == REDO || t.kind == RETRY {
		return x
	}
	switch {
	case p.tok.kind == LPAREN && !p.tok.space:
		p.next()
		x.Args = p.parseArgs(RPAREN)
		rp := p.expect(RPAREN)
		x.EndPos = p.pos(rp.end)
	case p.tok.space && canStartArg(p.tok.kind):
		x.Args = p.parseArgs(ILLEGAL)
		x.EndPos = End(x.Args[len(x.Args)-1])
	}
	if t.kind == SUPER {
		if b := p.parseBlockOpt(); b != nil {
			x.Block = b
			x.EndPos = b.EndPos
		}
	}
	return x
}

// methodNameLiteral parses a method name operand of alias or undef.
func (p *parser) methodNameLiteral() Node {
	t := p.tok
	switch t.kind {
	case IDENT, CONST, SYMBOL, GVAR:
		p.next()
		return &Literal{Token: t.kind, ValuePos: p.pos(t.pos), Raw: t.raw}
	}
	if t.kind >= ALIAS || isOperatorMethod(t.kind) {
		p.next()
		return &Literal{Token: IDENT, ValuePos: p.pos(t.pos), Raw: t.raw}
	}
	p.errorf(t.pos, "expected method name, got %#v", t.kind)
	return nil
}

func (p *parser) parseAlias() Node {
	a := p.tok
	p.next()
	x := &AliasExpr{Alias: p.pos(a.pos)}
	x.New = p.methodNameLiteral()
	x.Old = p.methodNameLiteral()
	return x
}

func (p *parser) parseUndef() Node {
	u := p.tok
	p.next()
	x := &KeywordExpr{Keyword: UNDEF, KwPos: p.pos(u.pos)}
	for {
		x.Args = append(x.Args, p.methodNameLiteral())
		if p.tok.kind != COMMA {
			break
		}
		p.next()
	}
	x.EndPos = End(x.Args[len(x.Args)-1])
	return x
}
