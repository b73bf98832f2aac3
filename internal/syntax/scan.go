package syntax

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// A Token represents a lexical token.
type Token int8

const (
	ILLEGAL Token = iota
	EOF

	NEWLINE
	SEMI

	// Tokens with values
	IDENT  // x
	CONST  // X
	LABEL  // x: (the value excludes the colon)
	IVAR   // @x
	CVAR   // @@x
	GVAR   // $x
	INT    // 123
	FLOAT  // 1.23
	STRING // "x", 'x', %w[x], /x/, :"x", <<~X
	SYMBOL // :x
	CHAR   // ?x

	// Punctuation
	LPAREN   // (
	RPAREN   // )
	LBRACK   // [
	RBRACK   // ]
	LBRACE   // {
	RBRACE   // }
	COMMA    // ,
	DOT      // .
	AMPDOT   // &.
	COLON2   // ::
	COLON    // :
	QUESTION // ?
	ARROW    // ->
	FATARROW // =>
	DOT2     // ..
	DOT3     // ...

	// Operators
	PLUS     // +
	MINUS    // -
	STAR     // *
	STARSTAR // **
	SLASH    // /
	PERCENT  // %
	AMP      // &
	PIPE     // |
	CARET    // ^
	TILDE    // ~
	BANG     // !
	LT       // <
	GT       // >
	LE       // <=
	GE       // >=
	EQEQ     // ==
	EQEQEQ   // ===
	NEQ      // !=
	CMP      // <=>
	MATCH    // =~
	NMATCH   // !~
	LTLT     // <<
	GTGT     // >>
	ANDAND   // &&
	OROR     // ||

	// Assignment
	EQ          // =
	PLUS_EQ     // +=
	MINUS_EQ    // -=
	STAR_EQ     // *=
	STARSTAR_EQ // **=
	SLASH_EQ    // /=
	PERCENT_EQ  // %=
	AMP_EQ      // &=
	PIPE_EQ     // |=
	CARET_EQ    // ^=
	LTLT_EQ     // <<=
	GTGT_EQ     // >>=
	ANDAND_EQ   // &&=
	OROR_EQ     // ||=

	// Keywords
	ALIAS
	AND
	BEGIN
	BREAK
	CASE
	CLASS
	DEF
	DEFINED
	DO
	ELSE
	ELSIF
	END
	ENSURE
	FALSE
	FOR
	IF
	IN
	MODULE
	NEXT
	NIL
	NOT
	OR
	REDO
	RESCUE
	RETRY
	RETURN
	SELF
	SUPER
	THEN
	TRUE
	UNDEF
	UNLESS
	UNTIL
	WHEN
	WHILE
	YIELD

	maxToken
)

func (tok Token) String() string { return tokenNames[tok] }

// GoString is like String but quotes punctuation tokens.
// Use Sprintf("%#v", tok) when constructing error messages.
func (tok Token) GoString() string {
	if tok >= LPAREN && tok <= OROR_EQ {
		return "'" + tokenNames[tok] + "'"
	}
	return tokenNames[tok]
}

var tokenNames = [...]string{
	ILLEGAL:     "illegal token",
	EOF:         "end of file",
	NEWLINE:     "newline",
	SEMI:        ";",
	IDENT:       "identifier",
	CONST:       "constant",
	LABEL:       "label",
	IVAR:        "instance variable",
	CVAR:        "class variable",
	GVAR:        "global variable",
	INT:         "int literal",
	FLOAT:       "float literal",
	STRING:      "string literal",
	SYMBOL:      "symbol",
	CHAR:        "character literal",
	LPAREN:      "(",
	RPAREN:      ")",
	LBRACK:      "[",
	RBRACK:      "]",
	LBRACE:      "{",
	RBRACE:      "}",
	COMMA:       ",",
	DOT:         ".",
	AMPDOT:      "&.",
	COLON2:      "::",
	COLON:       ":",
	QUESTION:    "?",
	ARROW:       "->",
	FATARROW:    "=>",
	DOT2:        "..",
	DOT3:        "...",
	PLUS:        "+",
	MINUS:       "-",
	STAR:        "*",
	STARSTAR:    "**",
	SLASH:       "/",
	PERCENT:     "%",
	AMP:         "&",
	PIPE:        "|",
	CARET:       "^",
	TILDE:       "~",
	BANG:        "!",
	LT:          "<",
	GT:          ">",
	LE:          "<=",
	GE:          ">=",
	EQEQ:        "==",
	EQEQEQ:      "===",
	NEQ:         "!=",
	CMP:         "<=>",
	MATCH:       "=~",
	NMATCH:      "!~",
	LTLT:        "<<",
	GTGT:        ">>",
	ANDAND:      "&&",
	OROR:        "||",
	EQ:          "=",
	PLUS_EQ:     "+=",
	MINUS_EQ:    "-=",
	STAR_EQ:     "*=",
	STARSTAR_EQ: "**=",
	SLASH_EQ:    "/=",
	PERCENT_EQ:  "%=",
	AMP_EQ:      "&=",
	PIPE_EQ:     "|=",
	CARET_EQ:    "^=",
	LTLT_EQ:     "<<=",
	GTGT_EQ:     ">>=",
	ANDAND_EQ:   "&&=",
	OROR_EQ:     "||=",
	ALIAS:       "alias",
	AND:         "and",
	BEGIN:       "begin",
	BREAK:       "break",
	CASE:        "case",
	CLASS:       "class",
	DEF:         "def",
	DEFINED:     "defined?",
	DO:          "do",
	ELSE:        "else",
	ELSIF:       "elsif",
	END:         "end",
	ENSURE:      "ensure",
	FALSE:       "false",
	FOR:         "for",
	IF:          "if",
	IN:          "in",
	MODULE:      "module",
	NEXT:        "next",
	NIL:         "nil",
	NOT:         "not",
	OR:          "or",
	REDO:        "redo",
	RESCUE:      "rescue",
	RETRY:       "retry",
	RETURN:      "return",
	SELF:        "self",
	SUPER:       "super",
	THEN:        "then",
	TRUE:        "true",
	UNDEF:       "undef",
	UNLESS:      "unless",
	UNTIL:       "until",
	WHEN:        "when",
	WHILE:       "while",
	YIELD:       "yield",
}

var keywordToken = make(map[string]Token)

func init() {
	for t := ALIAS; t < maxToken; t++ {
		keywordToken[t.String()] = t
	}
}

// reserved words that are not keywords of this grammar but can never
// name a local variable.
var reserved = map[string]bool{
	"__FILE__":     true,
	"__LINE__":     true,
	"__ENCODING__": true,
	"BEGIN":        true,
	"END":          true,
}

// IsKeyword reports whether s is a reserved word.
func IsKeyword(s string) bool {
	_, ok := keywordToken[s]
	return ok || reserved[s]
}

// An Error describes a syntax error.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string { return e.Pos.String() + ": " + e.Msg }

// A lineTable maps byte offsets to line and column numbers.
type lineTable struct {
	starts []int
}

func newLineTable(src []byte) *lineTable {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineTable{starts: starts}
}

func (lt *lineTable) position(offset int) Position {
	i := sort.SearchInts(lt.starts, offset+1) - 1
	return Position{Offset: offset, Line: int32(i + 1), Col: int32(offset - lt.starts[i] + 1)}
}

// offset returns the byte offset of a 1-based line and column.
func (lt *lineTable) offset(line, col int) (int, bool) {
	if line < 1 || line > len(lt.starts) || col < 1 {
		return 0, false
	}
	return lt.starts[line-1] + col - 1, true
}

// A span is a half-open byte range [lo, hi) of code embedded in a literal.
type span struct {
	lo, hi int
}

type token struct {
	kind   Token
	pos    int // offset of first byte
	end    int // offset just past the last byte
	raw    string
	space  bool // preceded by whitespace
	str    StringKind
	interp []span
}

// A scanner tokenizes src[pos:end]. Embedded code in string literals is
// scanned later by a fresh scanner over the embedded range.
type scanner struct {
	src    []byte
	lines  *lineTable
	pos    int
	end    int
	last   Token // kind of the previous token
	resume int   // where scanning continues after the current line's heredoc bodies, or -1
}

func newScanner(src []byte, lines *lineTable, lo, hi int) *scanner {
	sc := &scanner{src: src, lines: lines, pos: lo, end: hi, last: NEWLINE, resume: -1}
	if lo == 0 {
		sc.lineStart()
	}
	return sc
}

func (sc *scanner) errorf(offset int, format string, args ...any) {
	panic(&Error{Pos: sc.lines.position(offset), Msg: fmt.Sprintf(format, args...)})
}

func (sc *scanner) at(i int) byte {
	if i < sc.end {
		return sc.src[i]
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c >= 0x80
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

// next returns the next token.
func (sc *scanner) next() token {
	tok := sc.scan()
	sc.last = tok.kind
	return tok
}

func (sc *scanner) scan() token {
	space := false
	for {
		if sc.pos >= sc.end {
			return token{kind: EOF, pos: sc.end, end: sc.end, space: space}
		}
		c := sc.src[sc.pos]
		switch {
		case isSpace(c):
			sc.pos++
			space = true
			continue
		case c == '\\' && sc.at(sc.pos+1) == '\n':
			sc.pos += 2
			space = true
			continue
		case c == '#':
			for sc.pos < sc.end && sc.src[sc.pos] != '\n' {
				sc.pos++
			}
			continue
		case c == '\n':
			nl := sc.pos
			sc.pos++
			if sc.resume >= 0 {
				sc.pos = sc.resume
				sc.resume = -1
			}
			sc.lineStart()
			if sc.continues() {
				space = true
				continue
			}
			return token{kind: NEWLINE, pos: nl, end: nl + 1, space: space}
		}
		break
	}

	start := sc.pos
	c := sc.src[start]
	tok := token{pos: start, space: space}

	switch {
	case isDigit(c):
		tok.kind = sc.scanNumber()
	case isIdentStart(c):
		return sc.scanIdent(tok)
	case c == '@':
		sc.pos++
		tok.kind = IVAR
		if sc.at(sc.pos) == '@' {
			sc.pos++
			tok.kind = CVAR
		}
		if !isIdentStart(sc.at(sc.pos)) {
			sc.errorf(start, "invalid %s name", tok.kind)
		}
		sc.skipIdentChars()
	case c == '$':
		sc.pos++
		sc.scanGlobalName(start)
		tok.kind = GVAR
	case c == '"' || c == '`':
		end, parts := sc.scanDelimited(start+1, c, c, true)
		sc.pos = end
		tok.kind, tok.interp = STRING, parts
		if c == '`' {
			tok.str = CommandString
		}
	case c == '\'':
		end, _ := sc.scanDelimited(start+1, c, c, false)
		sc.pos = end
		tok.kind = STRING
	default:
		sc.scanPunct(&tok)
	}
	tok.end = sc.pos
	tok.raw = string(sc.src[start:sc.pos])
	return tok
}

// lineStart handles constructs that are only recognized at the start of a line.
func (sc *scanner) lineStart() {
	rest := sc.src[sc.pos:sc.end]
	if bytes.HasPrefix(rest, []byte("=begin")) && (len(rest) == 6 || isSpace(rest[6]) || rest[6] == '\n') {
		i := bytes.Index(rest, []byte("\n=end"))
		if i < 0 {
			sc.errorf(sc.pos, "unterminated =begin comment")
		}
		j := sc.pos + i + len("\n=end")
		for j < sc.end && sc.src[j] != '\n' {
			j++
		}
		sc.pos = j
		return
	}
	if bytes.HasPrefix(rest, []byte("__END__")) && (len(rest) == 7 || rest[7] == '\n' || rest[7] == '\r') {
		sc.end = sc.pos
	}
}

// continues reports whether the newline just consumed is insignificant,
// either because the previous token cannot end an expression or because
// the next line continues a method chain with a leading dot.
func (sc *scanner) continues() bool {
	switch sc.last {
	case NEWLINE, SEMI, COMMA, LPAREN, LBRACK, LBRACE, DOT, AMPDOT, COLON2,
		QUESTION, COLON, FATARROW, AND, OR, NOT, BANG,
		PLUS, MINUS, STAR, STARSTAR, SLASH, PERCENT, AMP, CARET, TILDE,
		LT, GT, LE, GE, EQEQ, EQEQEQ, NEQ, CMP, MATCH, NMATCH, LTLT, GTGT, ANDAND, OROR:
		return true
	}
	if sc.last >= EQ && sc.last <= OROR_EQ {
		return true
	}
	i := sc.pos
	for i < sc.end {
		c := sc.src[i]
		switch {
		case isSpace(c) || c == '\n':
			i++
			continue
		case c == '#':
			for i < sc.end && sc.src[i] != '\n' {
				i++
			}
			continue
		case c == '.':
			return sc.at(i+1) != '.'
		case c == '&':
			return sc.at(i+1) == '.'
		}
		return false
	}
	return false
}

// valueEnd reports whether the previous token ends an operand, so that an
// ambiguous character such as / or % is a binary operator.
func (sc *scanner) valueEnd() bool {
	switch sc.last {
	case IDENT, CONST, IVAR, CVAR, GVAR, INT, FLOAT, STRING, SYMBOL, CHAR,
		RPAREN, RBRACK, RBRACE, END, SELF, NIL, TRUE, FALSE:
		return true
	}
	return false
}

// argStart reports whether an ambiguous character at sc.pos begins an
// operand: either no operand precedes it, or it follows a method name
// with a space before and none after (puts -x, foo /re/).
func (sc *scanner) argStart(space bool, next int) bool {
	if !sc.valueEnd() {
		return true
	}
	return sc.last == IDENT && space && !isSpace(sc.at(next)) && sc.at(next) != '\n'
}

func (sc *scanner) skipIdentChars() {
	for sc.pos < sc.end && isIdentChar(sc.src[sc.pos]) {
		sc.pos++
	}
}

func (sc *scanner) scanIdent(tok token) token {
	start := sc.pos
	sc.skipIdentChars()
	if c := sc.at(sc.pos); (c == '?' || c == '!') && sc.at(sc.pos+1) != '=' {
		sc.pos++
	} else if (c == '?' || c == '!') && sc.at(sc.pos+1) == '=' && sc.at(sc.pos+2) == '=' {
		sc.pos++
	}
	name := string(sc.src[start:sc.pos])
	tok.end = sc.pos
	tok.raw = name

	// label: name followed directly by a single colon
	if sc.at(sc.pos) == ':' && sc.at(sc.pos+1) != ':' && sc.last != DOT && sc.last != AMPDOT && sc.last != QUESTION {
		sc.pos++
		tok.kind = LABEL
		tok.end = sc.pos
		return tok
	}

	if k, ok := keywordToken[name]; ok && sc.last != DOT && sc.last != AMPDOT && sc.last != DEF && sc.last != COLON2 {
		tok.kind = k
		return tok
	}
	if c := name[0]; 'A' <= c && c <= 'Z' {
		tok.kind = CONST
	} else {
		tok.kind = IDENT
	}
	return tok
}

func (sc *scanner) scanGlobalName(start int) {
	c := sc.at(sc.pos)
	switch {
	case isIdentStart(c):
		sc.skipIdentChars()
	case isDigit(c):
		for isDigit(sc.at(sc.pos)) {
			sc.pos++
		}
	case c == '-':
		sc.pos += 2
	case strings.IndexByte("~*$?!@/\\;,.=:<>\"&'`+0", c) >= 0 && c != 0:
		sc.pos++
	default:
		sc.errorf(start, "invalid global variable name")
	}
}

func (sc *scanner) scanNumber() Token {
	kind := INT
	if sc.src[sc.pos] == '0' {
		switch sc.at(sc.pos + 1) {
		case 'x', 'X', 'b', 'B', 'o', 'O', 'd', 'D':
			sc.pos += 2
			for isIdentChar(sc.at(sc.pos)) {
				sc.pos++
			}
			return INT
		}
	}
	digits := func() {
		for isDigit(sc.at(sc.pos)) || sc.at(sc.pos) == '_' {
			sc.pos++
		}
	}
	digits()
	if sc.at(sc.pos) == '.' && isDigit(sc.at(sc.pos+1)) {
		kind = FLOAT
		sc.pos++
		digits()
	}
	if c := sc.at(sc.pos); c == 'e' || c == 'E' {
		n := sc.pos + 1
		if sc.at(n) == '+' || sc.at(n) == '-' {
			n++
		}
		if isDigit(sc.at(n)) {
			kind = FLOAT
			sc.pos = n
			digits()
		}
	}
	if c := sc.at(sc.pos); (c == 'r' || c == 'i') && !isIdentChar(sc.at(sc.pos+1)) {
		sc.pos++
	}
	return kind
}

// scanDelimited scans a literal body starting at i up to and including the
// closing delimiter, returning the offset after it and the spans of any
// #{...} interpolations.
func (sc *scanner) scanDelimited(i int, open, close byte, interp bool) (int, []span) {
	start := i - 1
	depth := 0
	var parts []span
	for {
		if i >= sc.end {
			sc.errorf(start, "unterminated literal")
		}
		c := sc.src[i]
		switch {
		case c == '\\':
			i += 2
			continue
		case interp && c == '#' && sc.at(i+1) == '{':
			hi := sc.skipCode(i + 2)
			parts = append(parts, span{i + 2, hi})
			i = hi + 1
			continue
		case open != close && c == open:
			depth++
		case c == close:
			if depth == 0 {
				return i + 1, parts
			}
			depth--
		}
		i++
	}
}

// skipCode returns the offset of the brace closing an interpolation
// whose code starts at i.
func (sc *scanner) skipCode(i int) int {
	start := i
	depth := 0
	for i < sc.end {
		switch c := sc.src[i]; c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		case '"', '`':
			i, _ = sc.scanDelimited(i+1, c, c, true)
			continue
		case '\'':
			i, _ = sc.scanDelimited(i+1, c, c, false)
			continue
		}
		i++
	}
	sc.errorf(start-2, "unterminated string interpolation")
	return 0
}

func closingDelim(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	case '<':
		return '>'
	}
	return open
}

func (sc *scanner) regexpFlags() {
	for c := sc.at(sc.pos); 'a' <= c && c <= 'z'; c = sc.at(sc.pos) {
		sc.pos++
	}
}

// scanPercent scans a %-literal starting at sc.pos.
func (sc *scanner) scanPercent(tok *token) {
	i := sc.pos + 1
	var kind byte
	if c := sc.at(i); 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' {
		kind = c
		i++
	}
	open := sc.at(i)
	interp := kind == 0 || strings.IndexByte("QWIrx", kind) >= 0
	end, parts := sc.scanDelimited(i+1, open, closingDelim(open), interp)
	sc.pos = end
	tok.kind, tok.interp = STRING, parts
	switch kind {
	case 'w', 'W', 'i', 'I':
		tok.str = WordsString
	case 'r':
		tok.str = RegexpString
		sc.regexpFlags()
	case 's':
		tok.str = SymbolString
	case 'x':
		tok.str = CommandString
	}
}

// isPercentLiteral reports whether the % at sc.pos starts a literal.
func (sc *scanner) isPercentLiteral() bool {
	c := sc.at(sc.pos + 1)
	if strings.IndexByte("wWiIqQrsx", c) >= 0 && c != 0 {
		d := sc.at(sc.pos + 2)
		return d != 0 && !isIdentChar(d) && !isSpace(d) && d != '\n'
	}
	return c != 0 && strings.IndexByte("([{<|!/^", c) >= 0
}

// scanHeredoc scans a heredoc opener (<<ID, <<-ID, <<~ID, optionally
// quoted) at sc.pos. The body lines are consumed now and skipped when the
// scanner reaches the end of the current line.
func (sc *scanner) scanHeredoc(tok *token) {
	start := sc.pos
	i := start + 2
	indented := false
	if c := sc.at(i); c == '~' || c == '-' {
		indented = true
		i++
	}
	var quote byte
	if c := sc.at(i); c == '"' || c == '\'' || c == '`' {
		quote = c
		i++
	}
	idStart := i
	for isIdentChar(sc.at(i)) {
		i++
	}
	id := string(sc.src[idStart:i])
	if quote != 0 {
		if sc.at(i) != quote {
			sc.errorf(start, "unterminated heredoc identifier")
		}
		i++
	}
	sc.pos = i

	body := sc.resume
	if body < 0 {
		nl := bytes.IndexByte(sc.src[i:sc.end], '\n')
		if nl < 0 {
			sc.errorf(start, "unterminated heredoc %s", id)
		}
		body = i + nl + 1
	}
	var parts []span
	for j := body; ; {
		if j >= sc.end {
			sc.errorf(start, "unterminated heredoc %s", id)
		}
		lineEnd := j + bytes.IndexByte(sc.src[j:sc.end], '\n')
		if lineEnd < j {
			lineEnd = sc.end
		}
		line := sc.src[j:lineEnd]
		if indented {
			line = bytes.TrimLeft(line, " \t")
		}
		if string(bytes.TrimRight(line, "\r")) == id {
			sc.resume = min(lineEnd+1, sc.end)
			break
		}
		if quote != '\'' {
			for k := j; k < lineEnd; k++ {
				switch {
				case sc.src[k] == '\\':
					k++
				case sc.src[k] == '#' && sc.at(k+1) == '{':
					hi := sc.skipCode(k + 2)
					parts = append(parts, span{k + 2, hi})
					k = hi
				}
			}
		}
		j = lineEnd + 1
	}
	tok.kind, tok.str, tok.interp = STRING, HeredocString, parts
}

func (sc *scanner) scanSymbol(tok *token) {
	start := sc.pos
	i := start + 1
	c := sc.at(i)
	switch {
	case c == '"' || c == '\'':
		end, parts := sc.scanDelimited(i+1, c, c, c == '"')
		sc.pos = end
		tok.kind, tok.str, tok.interp = STRING, SymbolString, parts
		return
	case isIdentStart(c):
		sc.pos = i
		sc.skipIdentChars()
		switch sc.at(sc.pos) {
		case '?', '!':
			if sc.at(sc.pos+1) != '=' {
				sc.pos++
			}
		case '=':
			if n := sc.at(sc.pos + 1); n != '=' && n != '~' && n != '>' {
				sc.pos++
			}
		}
	case c == '@' || c == '$':
		sc.pos = i + 1
		if sc.at(sc.pos) == '@' {
			sc.pos++
		}
		sc.skipIdentChars()
	default:
		for _, op := range symbolOperators {
			if bytes.HasPrefix(sc.src[i:sc.end], []byte(op)) {
				sc.pos = i + len(op)
				break
			}
		}
		if sc.pos == start {
			sc.errorf(start, "invalid symbol")
		}
	}
	tok.kind = SYMBOL
}

// symbolOperators lists operator method names, longest first.
var symbolOperators = []string{
	"[]=", "<=>", "===", "[]", "==", "=~", "!=", "!~", "**", "+@", "-@", "<<", ">>", "<=", ">=",
	"+", "-", "*", "/", "%", "<", ">", "!", "~", "^", "&", "|",
}

// isSymbolStart reports whether the character after a colon starts a symbol.
func isSymbolStart(c byte) bool {
	return isIdentStart(c) || c != 0 && strings.IndexByte("\"'@$[<=!+-*/%>~^&|", c) >= 0
}

func (sc *scanner) scanPunct(tok *token) {
	start := sc.pos
	c := sc.src[start]
	n := sc.at(start + 1)
	n2 := sc.at(start + 2)

	// emit sets the token kind and consumes width bytes.
	emit := func(kind Token, width int) {
		tok.kind = kind
		sc.pos = start + width
	}

	switch c {
	case '(':
		emit(LPAREN, 1)
	case ')':
		emit(RPAREN, 1)
	case '[':
		emit(LBRACK, 1)
	case ']':
		emit(RBRACK, 1)
	case '{':
		emit(LBRACE, 1)
	case '}':
		emit(RBRACE, 1)
	case ',':
		emit(COMMA, 1)
	case ';':
		emit(SEMI, 1)
	case '~':
		emit(TILDE, 1)
	case '.':
		switch {
		case n == '.' && n2 == '.':
			emit(DOT3, 3)
		case n == '.':
			emit(DOT2, 2)
		default:
			emit(DOT, 1)
		}
	case ':':
		switch {
		case n == ':':
			emit(COLON2, 2)
		case isSymbolStart(n) && (!sc.valueEnd() || tok.space):
			sc.scanSymbol(tok)
		default:
			emit(COLON, 1)
		}
	case '?':
		if sc.argStart(tok.space, start+1) && n != 0 && !isSpace(n) && n != '\n' {
			w := 2
			if n == '\\' {
				w = 3
			}
			if !isIdentChar(sc.at(start+w)) || n == '\\' {
				emit(CHAR, w)
				return
			}
		}
		emit(QUESTION, 1)
	case '+':
		if n == '=' {
			emit(PLUS_EQ, 2)
		} else {
			emit(PLUS, 1)
		}
	case '-':
		switch n {
		case '>':
			emit(ARROW, 2)
		case '=':
			emit(MINUS_EQ, 2)
		default:
			emit(MINUS, 1)
		}
	case '*':
		switch {
		case n == '*' && n2 == '=':
			emit(STARSTAR_EQ, 3)
		case n == '*':
			emit(STARSTAR, 2)
		case n == '=':
			emit(STAR_EQ, 2)
		default:
			emit(STAR, 1)
		}
	case '/':
		switch {
		case n == '=' && sc.valueEnd():
			emit(SLASH_EQ, 2)
		case sc.argStart(tok.space, start+1):
			end, parts := sc.scanDelimited(start+1, '/', '/', true)
			sc.pos = end
			sc.regexpFlags()
			tok.kind, tok.str, tok.interp = STRING, RegexpString, parts
		case n == '=':
			emit(SLASH_EQ, 2)
		default:
			emit(SLASH, 1)
		}
	case '%':
		switch {
		case sc.argStart(tok.space, start+1) && sc.isPercentLiteral():
			sc.scanPercent(tok)
		case n == '=':
			emit(PERCENT_EQ, 2)
		default:
			emit(PERCENT, 1)
		}
	case '=':
		switch {
		case n == '=' && n2 == '=':
			emit(EQEQEQ, 3)
		case n == '=':
			emit(EQEQ, 2)
		case n == '~':
			emit(MATCH, 2)
		case n == '>':
			emit(FATARROW, 2)
		default:
			emit(EQ, 1)
		}
	case '!':
		switch n {
		case '=':
			emit(NEQ, 2)
		case '~':
			emit(NMATCH, 2)
		default:
			emit(BANG, 1)
		}
	case '<':
		switch {
		case n == '=' && n2 == '>':
			emit(CMP, 3)
		case n == '=':
			emit(LE, 2)
		case n == '<' && n2 == '=':
			emit(LTLT_EQ, 3)
		case n == '<' && sc.last != CLASS && sc.argStart(tok.space, start+2) && sc.isHeredoc(start+2):
			sc.scanHeredoc(tok)
		case n == '<':
			emit(LTLT, 2)
		default:
			emit(LT, 1)
		}
	case '>':
		switch {
		case n == '=':
			emit(GE, 2)
		case n == '>' && n2 == '=':
			emit(GTGT_EQ, 3)
		case n == '>':
			emit(GTGT, 2)
		default:
			emit(GT, 1)
		}
	case '&':
		switch {
		case n == '&' && n2 == '=':
			emit(ANDAND_EQ, 3)
		case n == '&':
			emit(ANDAND, 2)
		case n == '=':
			emit(AMP_EQ, 2)
		case n == '.':
			emit(AMPDOT, 2)
		default:
			emit(AMP, 1)
		}
	case '|':
		switch {
		case n == '|' && n2 == '=':
			emit(OROR_EQ, 3)
		case n == '|':
			emit(OROR, 2)
		case n == '=':
			emit(PIPE_EQ, 2)
		default:
			emit(PIPE, 1)
		}
	case '^':
		if n == '=' {
			emit(CARET_EQ, 2)
		} else {
			emit(CARET, 1)
		}
	default:
		sc.errorf(start, "unexpected character %q", c)
	}
}

// isHeredoc reports whether the text at i, just after <<, is a heredoc
// identifier: an optional ~ or -, an optional quote, then a name.
func (sc *scanner) isHeredoc(i int) bool {
	if c := sc.at(i); c == '~' || c == '-' {
		i++
	}
	if c := sc.at(i); c == '"' || c == '\'' || c == '`' {
		i++
	}
	return isIdentStart(sc.at(i))
}
