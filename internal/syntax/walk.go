package syntax

// Walk traverses a syntax tree in depth-first order.
// It starts by calling f(n); n must not be nil.
// If f returns true, Walk calls itself recursively for each non-nil
// child of n, in source order. Walk then calls f(nil).
func Walk(n Node, f func(Node) bool) {
	if n == nil {
		panic("nil")
	}
	if !f(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, f)
	}
	f(nil)
}

// Children returns the non-nil immediate children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(xs ...Node) {
		for _, x := range xs {
			if !isNil(x) {
				out = append(out, x)
			}
		}
	}
	switch n := n.(type) {
	case *File:
		add(n.Body...)
	case *Ident, *NonLocalVar, *Literal:
	case *Const:
		add(n.Scope)
	case *StringLit:
		add(n.Parts...)
	case *ArrayLit:
		add(n.Elems...)
	case *HashLit:
		add(n.Pairs...)
	case *Pair:
		add(n.Key)
		if !n.Shorthand {
			add(n.Value)
		}
	case *ParenExpr:
		add(n.Body...)
	case *Unary:
		add(n.X)
	case *Binary:
		add(n.X, n.Y)
	case *AssignExpr:
		add(n.LHS, n.RHS)
	case *MultiAssign:
		add(n.LHS...)
		add(n.RHS)
	case *MLHS:
		add(n.Targets...)
	case *CallExpr:
		add(n.Recv)
		add(n.Args...)
		add(n.Block)
	case *IndexExpr:
		add(n.X)
		add(n.Args...)
	case *KeywordExpr:
		add(n.Args...)
		add(n.Block)
	case *AliasExpr:
		add(n.New, n.Old)
	case *IfExpr:
		if n.Modifier {
			add(n.Then...)
			add(n.Cond)
			break
		}
		add(n.Cond)
		add(n.Then...)
		add(n.Else...)
	case *CaseExpr:
		add(n.Subject)
		for _, w := range n.Whens {
			add(w)
		}
		add(n.Else...)
	case *WhenClause:
		add(n.Conds...)
		add(n.Body...)
	case *WhileExpr:
		if n.Modifier {
			add(n.Body...)
			add(n.Cond)
			break
		}
		add(n.Cond)
		add(n.Body...)
	case *ForExpr:
		add(n.Vars...)
		add(n.Iter)
		add(n.Body...)
	case *BeginExpr:
		add(n.Body...)
		for _, r := range n.Rescues {
			add(r)
		}
		add(n.Else...)
		add(n.Ensure...)
	case *RescueClause:
		add(n.Classes...)
		add(n.Var)
		add(n.Body...)
	case *MethodDef:
		add(n.Recv)
		for _, p := range n.Params {
			add(p)
		}
		add(n.Body...)
	case *Param:
		for _, p := range n.Sub {
			add(p)
		}
		add(n.Default)
	case *BlockExpr:
		for _, p := range n.Params {
			add(p)
		}
		add(n.Body...)
	case *ClassDef:
		add(n.Name, n.Super, n.Singleton)
		add(n.Body...)
	}
	return out
}

// isNil reports whether x is nil or a typed nil pointer, as held by
// optional fields such as CallExpr.Block.
func isNil(x Node) bool {
	switch x := x.(type) {
	case nil:
		return true
	case *BlockExpr:
		return x == nil
	case *WhenClause:
		return x == nil
	case *RescueClause:
		return x == nil
	case *Param:
		return x == nil
	}
	return false
}
