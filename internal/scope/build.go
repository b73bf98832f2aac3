package scope

import (
	"fmt"
	"reflect"

	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// A StructuralError reports a syntax tree that cannot be analysed:
// a missing required child, an identifier without a name or position,
// or a node whose span ends before it starts.
type StructuralError struct {
	Pos syntax.Position
	Msg string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("malformed syntax tree at %s: %s", e.Pos, e.Msg)
}

// BuildTree builds the scope tree of f. The root is a Top scope; each
// method and class body is a scope attached to the root, and each block or
// lambda is a scope attached to the innermost enclosing scope. Conditionals
// and loops do not introduce scopes.
//
// The returned table has no bindings yet; see Resolve.
func BuildTree(f *syntax.File) (*Table, error) {
	if f == nil {
		return nil, &StructuralError{Msg: "nil file"}
	}
	b := &builder{t: &Table{File: f, scopeOf: make(map[syntax.Node]ScopeID)}}
	root := b.newScope(ScopeTop, NoScope, f, syntax.Position{Offset: 0, Line: 1, Col: 1}, f.Position(len(f.Src)))
	if b.checkList(f.Body, syntax.Position{}) {
		for _, n := range f.Body {
			b.visit(n, root)
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.t, nil
}

type builder struct {
	t   *Table
	err *StructuralError
}

func (b *builder) newScope(kind ScopeKind, parent ScopeID, n syntax.Node, start, end syntax.Position) ScopeID {
	id := ScopeID(len(b.t.Scopes))
	b.t.Scopes = append(b.t.Scopes, Scope{
		Kind:   kind,
		Parent: parent,
		Decls:  make(map[string][]BindingID),
		Node:   n,
		Start:  start,
		End:    end,
	})
	if parent != NoScope {
		p := &b.t.Scopes[parent]
		p.Children = append(p.Children, id)
	}
	b.t.scopeOf[n] = id
	return id
}

func (b *builder) errorf(pos syntax.Position, format string, args ...any) {
	if b.err == nil {
		b.err = &StructuralError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}
}

func (b *builder) visit(n syntax.Node, cur ScopeID) {
	if b.err != nil || !b.check(n) {
		return
	}
	switch n := n.(type) {
	case *syntax.MethodDef:
		if n.Recv != nil {
			b.visit(n.Recv, cur)
		}
		s := b.newScope(ScopeMethod, b.t.Root(), n, n.Def, n.EndPos)
		b.visitChildren(n, s, n.Recv)
	case *syntax.ClassDef:
		for _, c := range []syntax.Node{n.Name, n.Super, n.Singleton} {
			if !isNil(c) {
				b.visit(c, cur)
			}
		}
		s := b.newScope(ScopeClass, b.t.Root(), n, n.KwPos, n.EndPos)
		for _, c := range n.Body {
			b.visit(c, s)
		}
	case *syntax.BlockExpr:
		s := b.newScope(ScopeBlock, cur, n, n.Open, n.EndPos)
		b.visitChildren(n, s, nil)
	default:
		b.visitChildren(n, cur, nil)
	}
}

// visitChildren visits the children of n other than skip.
func (b *builder) visitChildren(n syntax.Node, cur ScopeID, skip syntax.Node) {
	for _, c := range syntax.Children(n) {
		if skip != nil && c == skip {
			continue
		}
		b.visit(c, cur)
	}
}

// check validates one node and reports whether its children may be visited.
func (b *builder) check(n syntax.Node) bool {
	if isNil(n) {
		b.errorf(syntax.Position{}, "nil node")
		return false
	}
	if pos, msg := missing(n); msg != "" {
		b.errorf(pos, "%T: %s", n, msg)
		return false
	}
	for _, list := range lists(n) {
		if !b.checkList(list, syntax.Position{}) {
			return false
		}
	}
	start, end := n.Span()
	if start.IsValid() && end.IsValid() && end.Offset < start.Offset {
		b.errorf(start, "%T ends at %s before it starts", n, end)
		return false
	}
	return true
}

func (b *builder) checkList(list []syntax.Node, pos syntax.Position) bool {
	for _, x := range list {
		if isNil(x) {
			b.errorf(pos, "nil element in statement or argument list")
			return false
		}
	}
	return true
}

// missing returns a description of the first required field of n that is
// absent, and a position to report it at.
func missing(n syntax.Node) (syntax.Position, string) {
	switch n := n.(type) {
	case *syntax.Ident:
		if n.Name == "" {
			return n.NamePos, "empty name"
		}
		if !n.NamePos.IsValid() {
			return n.NamePos, fmt.Sprintf("identifier %s has no position", n.Name)
		}
	case *syntax.Param:
		if n.Name != "" && !n.NamePos.IsValid() {
			return n.NamePos, fmt.Sprintf("parameter %s has no position", n.Name)
		}
		if n.Kind == syntax.DestructureParam && len(n.Sub) == 0 {
			return n.NamePos, "empty destructuring parameter"
		}
		for _, p := range n.Sub {
			if p == nil {
				return n.NamePos, "nil sub-parameter"
			}
		}
	case *syntax.AssignExpr:
		if isNil(n.LHS) || isNil(n.RHS) {
			return n.OpPos, "missing operand"
		}
	case *syntax.MultiAssign:
		if len(n.LHS) == 0 || isNil(n.RHS) {
			return n.OpPos, "missing operand"
		}
	case *syntax.IndexExpr:
		if isNil(n.X) {
			return n.Lbrack, "missing receiver"
		}
	case *syntax.AliasExpr:
		if isNil(n.New) || isNil(n.Old) {
			return n.Alias, "missing name"
		}
	case *syntax.MLHS:
		if len(n.Targets) == 0 {
			return n.Lparen, "no targets"
		}
	case *syntax.Pair:
		if isNil(n.Key) || isNil(n.Value) {
			return syntax.Position{}, "missing key or value"
		}
	case *syntax.Binary:
		if isNil(n.X) && isNil(n.Y) {
			return n.OpPos, "missing operands"
		}
	case *syntax.IfExpr:
		switch {
		case isNil(n.Cond):
			return n.KwPos, "missing condition"
		case n.Modifier && len(n.Then) == 0:
			return n.KwPos, "modifier without body"
		case n.Keyword == syntax.QUESTION && (len(n.Then) != 1 || len(n.Else) != 1):
			return n.KwPos, "ternary needs exactly two branches"
		}
	case *syntax.WhileExpr:
		if isNil(n.Cond) {
			return n.KwPos, "missing condition"
		}
		if n.Modifier && len(n.Body) == 0 {
			return n.KwPos, "modifier without body"
		}
	case *syntax.ForExpr:
		if len(n.Vars) == 0 || isNil(n.Iter) {
			return n.For, "missing variable or iterable"
		}
	case *syntax.CaseExpr:
		for _, w := range n.Whens {
			if w == nil {
				return n.Case, "nil when clause"
			}
		}
	case *syntax.WhenClause:
		if len(n.Conds) == 0 {
			return n.When, "when without conditions"
		}
	case *syntax.BeginExpr:
		for _, r := range n.Rescues {
			if r == nil {
				return n.Begin, "nil rescue clause"
			}
		}
	case *syntax.MethodDef:
		if n.Name == "" {
			return n.Def, "method without name"
		}
		for _, p := range n.Params {
			if p == nil {
				return n.Def, "nil parameter"
			}
		}
	case *syntax.BlockExpr:
		for _, p := range n.Params {
			if p == nil {
				return n.Open, "nil parameter"
			}
		}
	case *syntax.ClassDef:
		if isNil(n.Name) && isNil(n.Singleton) {
			return n.KwPos, "class without name"
		}
	}
	return syntax.Position{}, ""
}

// lists returns the node lists of n that must not hold nil elements.
func lists(n syntax.Node) [][]syntax.Node {
	switch n := n.(type) {
	case *syntax.StringLit:
		return [][]syntax.Node{n.Parts}
	case *syntax.ArrayLit:
		return [][]syntax.Node{n.Elems}
	case *syntax.HashLit:
		return [][]syntax.Node{n.Pairs}
	case *syntax.ParenExpr:
		return [][]syntax.Node{n.Body}
	case *syntax.MultiAssign:
		return [][]syntax.Node{n.LHS}
	case *syntax.MLHS:
		return [][]syntax.Node{n.Targets}
	case *syntax.CallExpr:
		return [][]syntax.Node{n.Args}
	case *syntax.IndexExpr:
		return [][]syntax.Node{n.Args}
	case *syntax.KeywordExpr:
		return [][]syntax.Node{n.Args}
	case *syntax.IfExpr:
		return [][]syntax.Node{n.Then, n.Else}
	case *syntax.CaseExpr:
		return [][]syntax.Node{n.Else}
	case *syntax.WhenClause:
		return [][]syntax.Node{n.Conds, n.Body}
	case *syntax.WhileExpr:
		return [][]syntax.Node{n.Body}
	case *syntax.ForExpr:
		return [][]syntax.Node{n.Vars, n.Body}
	case *syntax.BeginExpr:
		return [][]syntax.Node{n.Body, n.Else, n.Ensure}
	case *syntax.RescueClause:
		return [][]syntax.Node{n.Classes, n.Body}
	case *syntax.MethodDef:
		return [][]syntax.Node{n.Body}
	case *syntax.BlockExpr:
		return [][]syntax.Node{n.Body}
	case *syntax.ClassDef:
		return [][]syntax.Node{n.Body}
	}
	return nil
}

// isNil reports whether n is nil or a typed nil pointer.
func isNil(n syntax.Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
