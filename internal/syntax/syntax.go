// Package syntax provides a parser and syntax tree for the subset of Ruby
// needed to reason about local variables.
//
// The tree keeps every construct that can declare, read or write a local
// variable, and enough of the rest of the language (calls, literals,
// definitions, control flow) to locate those constructs precisely.
package syntax

import "fmt"

// A Position describes a location in a source file.
// Offset is a 0-based byte offset; Line and Col are 1-based, Col counting bytes.
type Position struct {
	Offset int
	Line   int32
	Col    int32
}

// IsValid reports whether the position has been set.
func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// add returns the position n bytes to the right of p on the same line.
func (p Position) add(n int) Position {
	return Position{Offset: p.Offset + n, Line: p.Line, Col: p.Col + int32(n)}
}

// A Node is a node in a syntax tree.
type Node interface {
	// Span returns the start and end position of the node.
	// The end position is exclusive.
	Span() (start, end Position)
}

// Start returns the start position of the node.
func Start(n Node) Position {
	start, _ := n.Span()
	return start
}

// End returns the end position of the node.
func End(n Node) Position {
	_, end := n.Span()
	return end
}

// A File is a parsed source file.
type File struct {
	Path string
	Src  []byte
	Body []Node

	lines *lineTable
}

func (x *File) lineTable() *lineTable {
	if x.lines != nil {
		return x.lines
	}
	return newLineTable(x.Src)
}

// Position returns the position of a byte offset within the file.
func (x *File) Position(offset int) Position {
	return x.lineTable().position(offset)
}

// Offset returns the byte offset of a 1-based line and byte column.
// It reports false if the line does not exist.
func (x *File) Offset(line, col int) (int, bool) {
	return x.lineTable().offset(line, col)
}

func (x *File) Span() (start, end Position) {
	if len(x.Body) == 0 {
		return Position{Line: 1, Col: 1}, Position{Line: 1, Col: 1}
	}
	start, _ = x.Body[0].Span()
	_, end = x.Body[len(x.Body)-1].Span()
	return start, end
}

// An Ident is a bare identifier: a local variable read, or a call
// of a method with no receiver and no arguments.
type Ident struct {
	NamePos Position
	Name    string
}

func (x *Ident) Span() (start, end Position) {
	return x.NamePos, x.NamePos.add(len(x.Name))
}

// A Const is a constant reference, optionally scoped: Foo, A::B, ::C.
type Const struct {
	Scope   Node // may be nil
	NamePos Position
	Name    string
}

func (x *Const) Span() (start, end Position) {
	start = x.NamePos
	if x.Scope != nil {
		start = Start(x.Scope)
	}
	return start, x.NamePos.add(len(x.Name))
}

// A NonLocalVar is an instance, class or global variable: @x, @@x, $x.
type NonLocalVar struct {
	Kind    Token // IVAR, CVAR or GVAR
	NamePos Position
	Name    string // including sigil
}

func (x *NonLocalVar) Span() (start, end Position) {
	return x.NamePos, x.NamePos.add(len(x.Name))
}

// A Literal is a literal with no embedded code: numbers, symbols,
// character literals, nil, true, false and self.
type Literal struct {
	Token    Token // INT, FLOAT, SYMBOL, CHAR, LABEL, NIL, TRUE, FALSE or SELF
	ValuePos Position
	Raw      string
}

func (x *Literal) Span() (start, end Position) {
	return x.ValuePos, x.ValuePos.add(len(x.Raw))
}

// A StringLit is a string-like literal that may embed code:
// "..", '..', `..`, %-literals, heredocs, dynamic symbols and regexps.
type StringLit struct {
	Kind  StringKind
	Start Position
	End   Position
	Parts []Node // embedded expressions, in source order
}

func (x *StringLit) Span() (start, end Position) { return x.Start, x.End }

// StringKind distinguishes the flavours of StringLit.
type StringKind uint8

const (
	PlainString StringKind = iota
	SymbolString
	RegexpString
	CommandString
	WordsString
	HeredocString
)

// An ArrayLit is [a, b, *c] or the implicit array on the right of a = 1, 2.
type ArrayLit struct {
	Lbrack Position // invalid for an implicit array
	Elems  []Node
	Rbrack Position
}

func (x *ArrayLit) Span() (start, end Position) {
	if !x.Lbrack.IsValid() && len(x.Elems) > 0 {
		return Start(x.Elems[0]), End(x.Elems[len(x.Elems)-1])
	}
	return x.Lbrack, x.Rbrack.add(1)
}

// A HashLit is {k => v, l: v, **h}, or the brace-less trailing hash of a call.
type HashLit struct {
	Lbrace Position // invalid for a brace-less hash
	Pairs  []Node   // *Pair or a double-splat *Unary
	Rbrace Position
}

func (x *HashLit) Span() (start, end Position) {
	if !x.Lbrace.IsValid() && len(x.Pairs) > 0 {
		return Start(x.Pairs[0]), End(x.Pairs[len(x.Pairs)-1])
	}
	return x.Lbrace, x.Rbrace.add(1)
}

// A Pair is one key/value entry of a hash.
// In the shorthand form {x:} Shorthand is set and Value is the
// Ident x positioned on the label.
type Pair struct {
	Key       Node
	Value     Node
	Shorthand bool
}

func (x *Pair) Span() (start, end Position) {
	start = Start(x.Key)
	end = End(x.Key)
	if !x.Shorthand {
		end = End(x.Value)
	}
	return start, end
}

// A ParenExpr is a parenthesized statement sequence: (a; b).
type ParenExpr struct {
	Lparen Position
	Body   []Node
	Rparen Position
}

func (x *ParenExpr) Span() (start, end Position) { return x.Lparen, x.Rparen.add(1) }

// A Unary is a prefix operation. Besides the arithmetic and logical
// operators, Op may be STAR (splat), STARSTAR (double splat),
// AMP (block pass), NOT or DEFINED.
type Unary struct {
	OpPos Position
	Op    Token
	X     Node // nil for anonymous forwarding: foo(*), foo(&)
	End   Position
}

func (x *Unary) Span() (start, end Position) { return x.OpPos, x.End }

// A Binary is an infix operation, including && || and or .. ... and the
// rescue modifier. X or Y is nil for beginless and endless ranges.
type Binary struct {
	X     Node
	OpPos Position
	Op    Token
	Y     Node
}

func (x *Binary) Span() (start, end Position) {
	start, end = x.OpPos, x.OpPos.add(len(x.Op.String()))
	if x.X != nil {
		start = Start(x.X)
	}
	if x.Y != nil {
		end = End(x.Y)
	}
	return start, end
}

// An AssignExpr is a single assignment, plain or compound:
//
//	x = 1
//	x += 1
//	a.b ||= c
type AssignExpr struct {
	LHS   Node
	OpPos Position
	Op    Token // EQ or one of the *_EQ tokens
	RHS   Node
}

func (x *AssignExpr) Span() (start, end Position) { return Start(x.LHS), End(x.RHS) }

// A MultiAssign is a, (b, c), *d = rhs.
type MultiAssign struct {
	LHS   []Node
	OpPos Position
	RHS   Node
}

func (x *MultiAssign) Span() (start, end Position) { return Start(x.LHS[0]), End(x.RHS) }

// An MLHS is a parenthesized group of assignment targets.
type MLHS struct {
	Lparen  Position
	Targets []Node
	Rparen  Position
}

func (x *MLHS) Span() (start, end Position) { return x.Lparen, x.Rparen.add(1) }

// A CallExpr is a method call. Recv is nil for receiverless calls.
//
//	foo(1)
//	puts x
//	a.b { |y| y }
//	Foo::bar
type CallExpr struct {
	Recv    Node
	Dot     Token // DOT, AMPDOT or COLON2; ILLEGAL when Recv is nil
	NamePos Position
	Name    string
	Lparen  Position // invalid for calls without parentheses
	Args    []Node
	Rparen  Position
	Block   *BlockExpr
	EndPos  Position
}

func (x *CallExpr) Span() (start, end Position) {
	start = x.NamePos
	if x.Recv != nil {
		start = Start(x.Recv)
	}
	return start, x.EndPos
}

// An IndexExpr is x[args].
type IndexExpr struct {
	X      Node
	Lbrack Position
	Args   []Node
	Rbrack Position
}

func (x *IndexExpr) Span() (start, end Position) { return Start(x.X), x.Rbrack.add(1) }

// A KeywordExpr is a keyword that behaves like a call:
// return, break, next, redo, retry, yield, super and undef.
type KeywordExpr struct {
	Keyword Token
	KwPos   Position
	Args    []Node
	Block   *BlockExpr // super only
	EndPos  Position
}

func (x *KeywordExpr) Span() (start, end Position) { return x.KwPos, x.EndPos }

// An AliasExpr is alias new old. Both names are literals.
type AliasExpr struct {
	Alias Position
	New   Node
	Old   Node
}

func (x *AliasExpr) Span() (start, end Position) { return x.Alias, End(x.Old) }

// An IfExpr is a two-way conditional. It represents if/unless statements,
// elsif links, the modifier forms and the ternary operator.
//
// An elsif chain is a sequence of IfExprs, each in the Else slice of its
// predecessor with Keyword ELSIF.
type IfExpr struct {
	Keyword  Token // IF, UNLESS, ELSIF or QUESTION
	KwPos    Position
	Cond     Node
	Then     []Node
	ElsePos  Position // invalid when there is no else or elsif
	Else     []Node
	EndPos   Position
	Modifier bool // body if cond
}

func (x *IfExpr) Span() (start, end Position) {
	switch {
	case x.Modifier:
		return Start(x.Then[0]), End(x.Cond)
	case x.Keyword == QUESTION:
		return Start(x.Cond), End(x.Else[0])
	}
	return x.KwPos, x.EndPos
}

// A CaseExpr is case subject; when ...; else ...; end.
type CaseExpr struct {
	Case    Position
	Subject Node // may be nil
	Whens   []*WhenClause
	ElsePos Position
	Else    []Node
	EndPos  Position
}

func (x *CaseExpr) Span() (start, end Position) { return x.Case, x.EndPos }

// A WhenClause is one arm of a CaseExpr.
type WhenClause struct {
	When  Position
	Conds []Node
	Body  []Node
}

func (x *WhenClause) Span() (start, end Position) {
	end = End(x.Conds[len(x.Conds)-1])
	if len(x.Body) > 0 {
		end = End(x.Body[len(x.Body)-1])
	}
	return x.When, end
}

// A WhileExpr is a while or until loop, in block or modifier form.
type WhileExpr struct {
	Keyword  Token // WHILE or UNTIL
	KwPos    Position
	Cond     Node
	Body     []Node
	EndPos   Position
	Modifier bool
}

func (x *WhileExpr) Span() (start, end Position) {
	if x.Modifier {
		return Start(x.Body[0]), End(x.Cond)
	}
	return x.KwPos, x.EndPos
}

// A ForExpr is for a, b in xs; ...; end.
type ForExpr struct {
	For    Position
	Vars   []Node
	Iter   Node
	Body   []Node
	EndPos Position
}

func (x *ForExpr) Span() (start, end Position) { return x.For, x.EndPos }

// A BeginExpr is a body with exception handlers. Implicit begin blocks
// (def, do-block and class bodies with rescue or ensure) have Implicit set.
type BeginExpr struct {
	Begin     Position
	Body      []Node
	Rescues   []*RescueClause
	ElsePos   Position
	Else      []Node
	EnsurePos Position
	Ensure    []Node
	EndPos    Position
	Implicit  bool
}

func (x *BeginExpr) Span() (start, end Position) { return x.Begin, x.EndPos }

// A RescueClause is rescue Classes => Var; Body.
type RescueClause struct {
	Rescue  Position
	Classes []Node
	Var     Node // assignment target, may be nil
	Body    []Node
	EndPos  Position
}

func (x *RescueClause) Span() (start, end Position) { return x.Rescue, x.EndPos }

// A MethodDef is a method definition, including singleton methods
// (def self.x) and endless definitions (def x = 1).
type MethodDef struct {
	Def     Position
	Recv    Node // may be nil
	NamePos Position
	Name    string
	Params  []*Param
	Body    []Node
	EndPos  Position
	Endless bool
}

func (x *MethodDef) Span() (start, end Position) { return x.Def, x.EndPos }

// ParamKind classifies a formal parameter.
type ParamKind uint8

const (
	RequiredParam ParamKind = iota
	OptionalParam           // a = 1
	RestParam               // *a
	KeywordParam            // a: or a: 1
	KeywordRestParam        // **a
	BlockParam              // &a
	ForwardParam            // ...
	DestructureParam        // (a, b), block parameters only
	BlockLocalParam         // the x in |a; x|
)

// A Param is a formal parameter of a method, block or lambda.
// Name is empty for anonymous parameters (*, **, &, ...) and for
// DestructureParam, whose components are in Sub.
type Param struct {
	Kind    ParamKind
	NamePos Position
	Name    string
	Default Node // OptionalParam or KeywordParam, may be nil
	Sub     []*Param
	EndPos  Position
}

func (x *Param) Span() (start, end Position) { return x.NamePos, x.EndPos }

// BlockKind distinguishes the three closure syntaxes.
type BlockKind uint8

const (
	DoBlock BlockKind = iota
	BraceBlock
	Lambda // ->(x) { }
)

// A BlockExpr is a block literal or a stabby lambda.
type BlockExpr struct {
	Kind   BlockKind
	Open   Position // position of do, { or ->
	Params []*Param
	Body   []Node
	EndPos Position
}

func (x *BlockExpr) Span() (start, end Position) { return x.Open, x.EndPos }

// A ClassDef is a class or module definition, or a singleton class
// body (class << self) when Singleton is set.
type ClassDef struct {
	Keyword   Token // CLASS or MODULE
	KwPos     Position
	Name      Node // *Const, nil for singleton classes
	Super     Node // may be nil
	Singleton Node // the object of class << obj, may be nil
	Body      []Node
	EndPos    Position
}

func (x *ClassDef) Span() (start, end Position) { return x.KwPos, x.EndPos }
