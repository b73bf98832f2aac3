package syntax

import (
	"testing"

	"github.com/nalgeon/be"
)

func scanKinds(src string) []Token {
	b := []byte(src)
	sc := newScanner(b, newLineTable(b), 0, len(b))
	var kinds []Token
	for {
		t := sc.next()
		if t.kind == EOF {
			return kinds
		}
		kinds = append(kinds, t.kind)
	}
}

func TestScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		want []Token
	}{
		{"a / b", []Token{IDENT, SLASH, IDENT}},
		{"split /,/", []Token{IDENT, STRING}},
		{"x = /re/", []Token{IDENT, EQ, STRING}},
		{"x % 2", []Token{IDENT, PERCENT, INT}},
		{"%w[a b]", []Token{STRING}},
		{"x ? y : z", []Token{IDENT, QUESTION, IDENT, COLON, IDENT}},
		{"puts ?a", []Token{IDENT, CHAR}},
		{"{a: 1}", []Token{LBRACE, LABEL, INT, RBRACE}},
		{"foo.class", []Token{IDENT, DOT, IDENT}},
		{"def end", []Token{DEF, IDENT}},
		{"valid?(x)", []Token{IDENT, LPAREN, IDENT, RPAREN}},
		{"x!=y", []Token{IDENT, NEQ, IDENT}},
		{"a ||= b", []Token{IDENT, OROR_EQ, IDENT}},
		{"a <=> b", []Token{IDENT, CMP, IDENT}},
		{"arr << x", []Token{IDENT, LTLT, IDENT}},
		{"class << self", []Token{CLASS, LTLT, SELF}},
		{"list.map(&:to_s)", []Token{IDENT, DOT, IDENT, LPAREN, AMP, SYMBOL, RPAREN}},
		{"a &.b", []Token{IDENT, AMPDOT, IDENT}},
		{"1..2", []Token{INT, DOT2, INT}},
		{"1.5", []Token{FLOAT}},
		{"3.times", []Token{INT, DOT, IDENT}},
		{"@a @@b $c $0", []Token{IVAR, CVAR, GVAR, GVAR}},
		{"defined?(x)", []Token{DEFINED, LPAREN, IDENT, RPAREN}},
		{"a &&\nb", []Token{IDENT, ANDAND, IDENT}},
		{"a\n  .b", []Token{IDENT, DOT, IDENT}},
		{"a\n\n\nb", []Token{IDENT, NEWLINE, IDENT}},
		{"a # comment\nb", []Token{IDENT, NEWLINE, IDENT}},
		{"=begin\nnot code\n=end\nx", []Token{IDENT}},
		{"x\n__END__\nnot code", []Token{IDENT, NEWLINE}},
		{"x = <<~A\n  body\nA\ny", []Token{IDENT, EQ, STRING, NEWLINE, IDENT}},
		{"f(<<~A, <<~B)\na\nA\nb\nB\nz", []Token{IDENT, LPAREN, STRING, COMMA, STRING, RPAREN, NEWLINE, IDENT}},
	}
	for _, test := range tests {
		t.Run(test.src, func(t *testing.T) {
			be.Equal(t, scanKinds(test.src), test.want)
		})
	}
}

func TestScanInterpolationSpans(t *testing.T) {
	t.Parallel()

	src := []byte(`"a#{b}c#{"#{d}"}"`)
	sc := newScanner(src, newLineTable(src), 0, len(src))
	tok := sc.next()
	be.Equal(t, tok.kind, STRING)
	be.Equal(t, len(tok.interp), 2)
	be.Equal(t, string(src[tok.interp[0].lo:tok.interp[0].hi]), "b")
	be.Equal(t, string(src[tok.interp[1].lo:tok.interp[1].hi]), `"#{d}"`)
}

func TestLabelToken(t *testing.T) {
	t.Parallel()

	src := []byte("foo(key: 1)")
	sc := newScanner(src, newLineTable(src), 0, len(src))
	sc.next() // foo
	sc.next() // (
	tok := sc.next()
	be.Equal(t, tok.kind, LABEL)
	be.Equal(t, tok.raw, "key")
	be.Equal(t, tok.end, 8)
}
