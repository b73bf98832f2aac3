package syntax_test

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

func TestWalk(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "x = 1\nfoo(x, y: x) { |z| z + x }\n")
	var names []string
	syntax.Walk(f, func(n syntax.Node) bool {
		if id, ok := n.(*syntax.Ident); ok {
			names = append(names, id.Name+"@"+id.NamePos.String())
		}
		return true
	})
	be.Equal(t, names, []string{"x@1:1", "x@2:5", "x@2:11", "z@2:20", "x@2:24"})
}

func TestWalkSkipsSubtree(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "def m(a)\n  a\nend\nb = 1\n")
	var count int
	syntax.Walk(f, func(n syntax.Node) bool {
		if _, ok := n.(*syntax.MethodDef); ok {
			return false
		}
		if _, ok := n.(*syntax.Ident); ok {
			count++
		}
		return true
	})
	be.Equal(t, count, 1)
}
