package syntax_test

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

func mustParse(t *testing.T, src string) *syntax.File {
	t.Helper()
	f, err := syntax.Parse("test.rb", []byte(src))
	be.Err(t, err, nil)
	return f
}

func TestParseLocalOrCall(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "x = 1\nx -1\nputs -1\n")
	be.Equal(t, len(f.Body), 3)

	bin, ok := f.Body[1].(*syntax.Binary)
	be.True(t, ok)
	be.Equal(t, bin.Op, syntax.MINUS)
	_, ok = bin.X.(*syntax.Ident)
	be.True(t, ok)

	call, ok := f.Body[2].(*syntax.CallExpr)
	be.True(t, ok)
	be.Equal(t, call.Name, "puts")
	be.Equal(t, len(call.Args), 1)
}

func TestParseAssignmentDeclaresBeforeRHS(t *testing.T) {
	t.Parallel()

	// The x on the right is a local (nil), not a call of x with argument -1.
	f := mustParse(t, "x = x -1\n")
	a, ok := f.Body[0].(*syntax.AssignExpr)
	be.True(t, ok)
	bin, ok := a.RHS.(*syntax.Binary)
	be.True(t, ok)
	be.Equal(t, bin.Op, syntax.MINUS)
}

func TestParseShorthandPair(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "x = 1\nfoo(x:)\n")
	call := f.Body[1].(*syntax.CallExpr)
	be.Equal(t, len(call.Args), 1)
	hash, ok := call.Args[0].(*syntax.HashLit)
	be.True(t, ok)
	pair := hash.Pairs[0].(*syntax.Pair)
	be.True(t, pair.Shorthand)
	id, ok := pair.Value.(*syntax.Ident)
	be.True(t, ok)
	be.Equal(t, id.Name, "x")
	be.Equal(t, id.NamePos.String(), "2:5")
}

func TestParseMultiAssign(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "a, (b, *c), d = 1, 2, 3\n")
	m, ok := f.Body[0].(*syntax.MultiAssign)
	be.True(t, ok)
	be.Equal(t, len(m.LHS), 3)
	mlhs, ok := m.LHS[1].(*syntax.MLHS)
	be.True(t, ok)
	be.Equal(t, len(mlhs.Targets), 2)
	rhs, ok := m.RHS.(*syntax.ArrayLit)
	be.True(t, ok)
	be.Equal(t, len(rhs.Elems), 3)
}

func TestParseBlockParams(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "items.each_with_index do |(a, b), i = 0, *rest, k:, &blk; tmp|\nend\n")
	call := f.Body[0].(*syntax.CallExpr)
	be.True(t, call.Block != nil)
	be.Equal(t, call.Block.Kind, syntax.DoBlock)

	var kinds []syntax.ParamKind
	for _, p := range call.Block.Params {
		kinds = append(kinds, p.Kind)
	}
	be.Equal(t, kinds, []syntax.ParamKind{
		syntax.DestructureParam,
		syntax.OptionalParam,
		syntax.RestParam,
		syntax.KeywordParam,
		syntax.BlockParam,
		syntax.BlockLocalParam,
	})
	be.Equal(t, call.Block.Params[0].Sub[1].Name, "b")
}

func TestParseMethodDef(t *testing.T) {
	t.Parallel()

	src := `def self.build(a, b = a, *rest, key: 1, **opts, &blk)
  a + b
rescue ArgumentError => e
  e
end
`
	f := mustParse(t, src)
	d, ok := f.Body[0].(*syntax.MethodDef)
	be.True(t, ok)
	be.Equal(t, d.Name, "build")
	be.Equal(t, len(d.Params), 6)
	be.Equal(t, d.EndPos.String(), "5:4")

	begin, ok := d.Body[0].(*syntax.BeginExpr)
	be.True(t, ok)
	be.True(t, begin.Implicit)
	_, ok = begin.Rescues[0].Var.(*syntax.Ident)
	be.True(t, ok)
}

func TestParseEndlessDef(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "def double(x) = x * 2\n")
	d := f.Body[0].(*syntax.MethodDef)
	be.True(t, d.Endless)
	_, ok := d.Body[0].(*syntax.Binary)
	be.True(t, ok)
}

func TestParseIfChain(t *testing.T) {
	t.Parallel()

	src := `if a
  1
elsif b
  2
else
  3
end
`
	f := mustParse(t, src)
	x := f.Body[0].(*syntax.IfExpr)
	be.Equal(t, x.Keyword, syntax.IF)
	elsif := syntax.ElsifOf(x)
	be.True(t, elsif != nil)
	be.Equal(t, len(elsif.Else), 1)
	be.Equal(t, x.EndPos, elsif.EndPos)
}

func TestParseModifiers(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "x = 1 if cond\ny += 1 while y < 10\nz = risky rescue nil\n")
	be.Equal(t, len(f.Body), 3)

	x, ok := f.Body[0].(*syntax.IfExpr)
	be.True(t, ok)
	be.True(t, x.Modifier)

	w, ok := f.Body[1].(*syntax.WhileExpr)
	be.True(t, ok)
	be.True(t, w.Modifier)

	a := f.Body[2].(*syntax.AssignExpr)
	r, ok := a.RHS.(*syntax.Binary)
	be.True(t, ok)
	be.Equal(t, r.Op, syntax.RESCUE)
}

func TestParseTernary(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "v = n > 0 ? n : -n\n")
	a := f.Body[0].(*syntax.AssignExpr)
	x, ok := a.RHS.(*syntax.IfExpr)
	be.True(t, ok)
	be.Equal(t, x.Keyword, syntax.QUESTION)
	be.Equal(t, len(x.Then), 1)
	be.Equal(t, len(x.Else), 1)
}

func TestParseInterpolation(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "x = 1\ns = \"a#{x}b\"\n")
	a := f.Body[1].(*syntax.AssignExpr)
	s, ok := a.RHS.(*syntax.StringLit)
	be.True(t, ok)
	be.Equal(t, len(s.Parts), 1)
	id := s.Parts[0].(*syntax.Ident)
	be.Equal(t, id.NamePos.String(), "2:9")
}

func TestParseHeredoc(t *testing.T) {
	t.Parallel()

	src := "x = 1\ny = <<~EOS\n  #{x}\nEOS\nz = x\n"
	f := mustParse(t, src)
	be.Equal(t, len(f.Body), 3)
	a := f.Body[1].(*syntax.AssignExpr)
	s := a.RHS.(*syntax.StringLit)
	be.Equal(t, s.Kind, syntax.HeredocString)
	id := s.Parts[0].(*syntax.Ident)
	be.Equal(t, id.NamePos.String(), "3:5")

	last := f.Body[2].(*syntax.AssignExpr)
	be.Equal(t, syntax.Start(last).Line, int32(5))
}

func TestParseLambda(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "f = ->(a, b = 2) { a + b }\n")
	a := f.Body[0].(*syntax.AssignExpr)
	l, ok := a.RHS.(*syntax.BlockExpr)
	be.True(t, ok)
	be.Equal(t, l.Kind, syntax.Lambda)
	be.Equal(t, len(l.Params), 2)
}

func TestParseCommandCallWithDoBlock(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "describe Widget do\n  it \"works\" do\n  end\nend\n")
	call := f.Body[0].(*syntax.CallExpr)
	be.Equal(t, call.Name, "describe")
	be.Equal(t, len(call.Args), 1)
	be.True(t, call.Block != nil)
	inner := call.Block.Body[0].(*syntax.CallExpr)
	be.Equal(t, inner.Name, "it")
	be.True(t, inner.Block != nil)
}

func TestParseWhileDoBelongsToLoop(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "while queue.any? do\n  queue.pop\nend\n")
	w, ok := f.Body[0].(*syntax.WhileExpr)
	be.True(t, ok)
	cond := w.Cond.(*syntax.CallExpr)
	be.True(t, cond.Block == nil)
	be.Equal(t, len(w.Body), 1)
}

func TestParseLeadingDotContinuation(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "list\n  .map { |x| x }\n  .compact\n")
	be.Equal(t, len(f.Body), 1)
	call := f.Body[0].(*syntax.CallExpr)
	be.Equal(t, call.Name, "compact")
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		pos  string
		want string
	}{
		{"x = (1", "1:7", "got end of file, want ')'"},
		{"def foo\n", "2:1", "got end of file, want end"},
		{"case x\nin 1\nend\n", "2:1", "pattern matching is not supported"},
		{"1 2\n", "1:3", "expected end of statement"},
		{"s = \"abc\n", "1:5", "unterminated"},
	}
	for _, test := range tests {
		t.Run(test.src, func(t *testing.T) {
			_, err := syntax.Parse("test.rb", []byte(test.src))
			be.Err(t, err, test.want)
			var serr *syntax.Error
			be.True(t, errors.As(err, &serr))
			be.Equal(t, serr.Pos.String(), test.pos)
		})
	}
}

func TestFileOffsetPosition(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "a = 1\nbb = 2\n")
	off, ok := f.Offset(2, 2)
	be.True(t, ok)
	be.Equal(t, off, 7)
	be.Equal(t, f.Position(off).String(), "2:2")

	_, ok = f.Offset(9, 1)
	be.True(t, !ok)
}
