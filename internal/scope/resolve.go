package scope

import (
	"context"

	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// An Option configures Resolve.
type Option func(*resolver)

// WithRenamed resolves the file as if the identifiers starting at the
// given byte offsets were spelled newName. It is used to predict the
// effect of a rename without rewriting the source.
func WithRenamed(offsets []int, newName string) Option {
	return func(r *resolver) {
		if r.renamed == nil {
			r.renamed = make(map[int]string)
		}
		for _, off := range offsets {
			r.renamed[off] = newName
		}
	}
}

// Resolve builds the scope tree of f and resolves every local variable
// occurrence in it.
//
// Resolution is a single pass in source order over an explicit stack of
// frames. Each scope pushes a frame; each arm of a conditional pushes an
// arm frame on top of it. A frame maps names to the bindings declared
// while it was on top. Lookup searches the stack downward and stops after
// the frame of a gate scope (top, class, method), so blocks see the locals
// of their enclosing scope and nothing else does.
//
// Resolve returns ctx.Err() if ctx is cancelled before it completes.
func Resolve(ctx context.Context, f *syntax.File, opts ...Option) (*Table, error) {
	t, err := BuildTree(f)
	if err != nil {
		return nil, err
	}
	r := &resolver{ctx: ctx, t: t}
	for _, opt := range opts {
		opt(r)
	}
	r.pushScope(t.Root())
	r.stmts(f.Body)
	r.pop()
	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}

type frame struct {
	scope ScopeID
	arm   bool
	armID int // index+1 into Table.arms, for an arm frame
	vars  map[string]BindingID

	// branchLocal holds, for an arm frame, the names whose first
	// assignment in this arm declares a BranchLocal binding.
	branchLocal map[string]bool
}

type resolver struct {
	ctx     context.Context
	t       *Table
	frames  []*frame
	renamed map[int]string
	err     error
}

func (r *resolver) top() *frame { return r.frames[len(r.frames)-1] }

func (r *resolver) scope() ScopeID { return r.top().scope }

func (r *resolver) pushScope(id ScopeID) {
	if r.err == nil {
		r.err = r.ctx.Err()
	}
	r.frames = append(r.frames, &frame{scope: id, vars: make(map[string]BindingID)})
}

func (r *resolver) pop() { r.frames = r.frames[:len(r.frames)-1] }

// nameAt returns the name of the identifier at pos, as renamed.
func (r *resolver) nameAt(pos syntax.Position, name string) string {
	if n, ok := r.renamed[pos.Offset]; ok {
		return n
	}
	return name
}

func (r *resolver) lookup(name string) BindingID {
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		if id, ok := f.vars[name]; ok {
			return id
		}
		if !f.arm && r.t.Scopes[f.scope].Kind.Gate() {
			break
		}
	}
	return NoBinding
}

// isBranchLocal reports whether an enclosing arm of the current scope
// marks name as branch-local.
func (r *resolver) isBranchLocal(name string) bool {
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		if !f.arm {
			return false
		}
		if f.branchLocal[name] {
			return true
		}
	}
	return false
}

// innermostArm returns the arm that confines declarations made now, or
// 0 outside any arm of the current scope.
func (r *resolver) innermostArm() int {
	if f := r.top(); f.arm {
		return f.armID
	}
	return 0
}

func (r *resolver) declare(name string, origin Origin, start, end syntax.Position) BindingID {
	sid := r.scope()
	id := BindingID(len(r.t.Bindings))
	r.t.Bindings = append(r.t.Bindings, Binding{
		ID:     id,
		Name:   name,
		Scope:  sid,
		Origin: origin,
		Start:  start,
		End:    end,
		arm:    r.innermostArm(),
	})
	s := &r.t.Scopes[sid]
	s.Decls[name] = append(s.Decls[name], id)
	r.top().vars[name] = id
	r.occur(id, start, end, Declare, false)
	return id
}

func (r *resolver) occur(id BindingID, start, end syntax.Position, access Access, shorthand bool) {
	oid := OccurrenceID(len(r.t.Occs))
	r.t.Occs = append(r.t.Occs, Occurrence{
		Start:     start,
		End:       end,
		Access:    access,
		Binding:   id,
		Shorthand: shorthand,
	})
	b := &r.t.Bindings[id]
	b.occs = append(b.occs, oid)
}

func (r *resolver) read(id *syntax.Ident, shorthand bool) {
	name := r.nameAt(id.NamePos, id.Name)
	start, end := id.Span()
	if b := r.lookup(name); b != NoBinding {
		r.occur(b, start, end, Read, shorthand)
		return
	}
	r.t.Unresolved = append(r.t.Unresolved, Unresolved{Name: name, Start: start, End: end, Scope: r.scope()})
}

// assign records an assignment to a bare identifier: a write if a binding
// is visible, a new binding otherwise.
func (r *resolver) assign(id *syntax.Ident) {
	name := r.nameAt(id.NamePos, id.Name)
	start, end := id.Span()
	if b := r.lookup(name); b != NoBinding {
		r.occur(b, start, end, Write, false)
		return
	}
	origin := PlainLocal
	if r.isBranchLocal(name) {
		origin = BranchLocal
	}
	r.declare(name, origin, start, end)
}

func (r *resolver) stmts(list []syntax.Node) {
	for _, n := range list {
		r.expr(n)
	}
}

func (r *resolver) expr(n syntax.Node) {
	if n == nil || r.err != nil {
		return
	}
	switch n := n.(type) {
	case *syntax.Ident:
		r.read(n, false)

	case *syntax.Const:
		r.expr(n.Scope)

	case *syntax.NonLocalVar, *syntax.Literal, *syntax.AliasExpr:
		// no locals

	case *syntax.StringLit:
		r.stmts(n.Parts)

	case *syntax.ArrayLit:
		r.stmts(n.Elems)

	case *syntax.HashLit:
		r.stmts(n.Pairs)

	case *syntax.Pair:
		if n.Shorthand {
			if id, ok := n.Value.(*syntax.Ident); ok {
				r.read(id, true)
			}
			return
		}
		r.expr(n.Key)
		r.expr(n.Value)

	case *syntax.ParenExpr:
		r.stmts(n.Body)

	case *syntax.Unary:
		r.expr(n.X)

	case *syntax.Binary:
		r.expr(n.X)
		r.expr(n.Y)

	case *syntax.AssignExpr:
		// The target is bound before the right-hand side is evaluated,
		// so x = x reads the new (nil) binding.
		r.target(n.LHS)
		r.expr(n.RHS)

	case *syntax.MultiAssign:
		for _, t := range n.LHS {
			r.target(t)
		}
		r.expr(n.RHS)

	case *syntax.MLHS:
		for _, t := range n.Targets {
			r.target(t)
		}

	case *syntax.CallExpr:
		r.expr(n.Recv)
		r.stmts(n.Args)
		if n.Block != nil {
			r.block(n.Block)
		}

	case *syntax.IndexExpr:
		r.expr(n.X)
		r.stmts(n.Args)

	case *syntax.KeywordExpr:
		r.stmts(n.Args)
		if n.Block != nil {
			r.block(n.Block)
		}

	case *syntax.IfExpr:
		r.ifExpr(n)

	case *syntax.CaseExpr:
		r.expr(n.Subject)
		arms := make([]arm, 0, len(n.Whens)+1)
		for _, w := range n.Whens {
			arms = append(arms, arm{start: w.When, guards: w.Conds, body: w.Body})
		}
		if n.ElsePos.IsValid() || len(n.Else) > 0 {
			arms = append(arms, arm{start: n.ElsePos, body: n.Else})
		}
		r.conditional(arms, n.EndPos)

	case *syntax.WhileExpr:
		if n.Modifier {
			r.stmts(n.Body)
			r.expr(n.Cond)
			return
		}
		r.expr(n.Cond)
		r.stmts(n.Body)

	case *syntax.ForExpr:
		for _, v := range n.Vars {
			r.target(v)
		}
		r.expr(n.Iter)
		r.stmts(n.Body)

	case *syntax.BeginExpr:
		r.stmts(n.Body)
		for _, rc := range n.Rescues {
			r.stmts(rc.Classes)
			if rc.Var != nil {
				r.target(rc.Var)
			}
			r.stmts(rc.Body)
		}
		r.stmts(n.Else)
		r.stmts(n.Ensure)

	case *syntax.BlockExpr:
		r.block(n)

	case *syntax.MethodDef:
		r.expr(n.Recv)
		r.pushScope(r.t.scopeOf[n])
		r.params(n.Params, MethodParameter)
		r.stmts(n.Body)
		r.pop()

	case *syntax.ClassDef:
		r.expr(n.Name)
		r.expr(n.Super)
		r.expr(n.Singleton)
		r.pushScope(r.t.scopeOf[n])
		r.stmts(n.Body)
		r.pop()

	default:
		for _, c := range syntax.Children(n) {
			r.expr(c)
		}
	}
}

func (r *resolver) block(b *syntax.BlockExpr) {
	r.pushScope(r.t.scopeOf[b])
	r.params(b.Params, BlockParameter)
	r.stmts(b.Body)
	r.pop()
}

// params declares parameters in order. A default value is resolved before
// its own parameter is declared, so it sees the parameters to its left.
func (r *resolver) params(list []*syntax.Param, origin Origin) {
	for _, p := range list {
		if p.Kind == syntax.DestructureParam {
			r.params(p.Sub, origin)
			continue
		}
		r.expr(p.Default)
		if p.Name == "" {
			continue
		}
		name := r.nameAt(p.NamePos, p.Name)
		end := syntax.Position{Offset: p.NamePos.Offset + len(p.Name), Line: p.NamePos.Line, Col: p.NamePos.Col + int32(len(p.Name))}
		r.declare(name, origin, p.NamePos, end)
	}
}

// target resolves an assignment target.
func (r *resolver) target(n syntax.Node) {
	switch n := n.(type) {
	case *syntax.Ident:
		r.assign(n)
	case *syntax.MLHS:
		for _, t := range n.Targets {
			r.target(t)
		}
	case *syntax.Unary:
		if n.X != nil {
			r.target(n.X)
		}
	case *syntax.CallExpr:
		// attribute assignment: recv.name = v
		r.expr(n.Recv)
		r.stmts(n.Args)
	default:
		// index, constant and non-local targets
		r.expr(n)
	}
}

// An arm is one mutually exclusive branch of a conditional. Guards are
// evaluated on entry to the arm, such as the conditions of an elsif or
// a when clause.
type arm struct {
	start  syntax.Position // where the arm's text begins
	guards []syntax.Node
	body   []syntax.Node
}

func (r *resolver) ifExpr(n *syntax.IfExpr) {
	if n.Modifier {
		// A single arm can only declare plain locals.
		r.stmts(n.Then)
		r.expr(n.Cond)
		return
	}
	r.expr(n.Cond)
	arms := []arm{{start: syntax.End(n.Cond), body: n.Then}}
	for x := n; ; {
		e := syntax.ElsifOf(x)
		if e == nil {
			if x.ElsePos.IsValid() || len(x.Else) > 0 {
				arms = append(arms, arm{start: x.ElsePos, body: x.Else})
			}
			break
		}
		arms = append(arms, arm{start: e.KwPos, guards: []syntax.Node{e.Cond}, body: e.Then})
		x = e
	}
	_, end := n.Span()
	r.conditional(arms, end)
}

// conditional resolves the arms of a conditional. A name with no visible
// binding that is first assigned in two or more arms gets an independent
// BranchLocal binding in each of them. Arms do not see each other's
// bindings; afterwards the binding from the last arm that declared a name
// is the visible one. end is where the whole conditional ends.
func (r *resolver) conditional(arms []arm, end syntax.Position) {
	counts := make(map[string]int)
	for _, a := range arms {
		names := make(map[string]bool)
		for _, n := range a.guards {
			r.assignedNames(n, names)
		}
		for _, n := range a.body {
			r.assignedNames(n, names)
		}
		for name := range names {
			if r.lookup(name) == NoBinding {
				counts[name]++
			}
		}
	}
	branchLocal := make(map[string]bool)
	for name, c := range counts {
		if c >= 2 {
			branchLocal[name] = true
		}
	}

	outer := r.top()
	parent := r.innermostArm()
	armFrames := make([]*frame, 0, len(arms))
	for i, a := range arms {
		ext := armExtent{start: armStart(a, end), end: end.Offset, condEnd: end.Offset, parent: parent}
		if i+1 < len(arms) {
			ext.end = armStart(arms[i+1], end)
		}
		r.t.arms = append(r.t.arms, ext)
		f := &frame{
			scope:       outer.scope,
			arm:         true,
			armID:       len(r.t.arms),
			vars:        make(map[string]BindingID),
			branchLocal: branchLocal,
		}
		r.frames = append(r.frames, f)
		r.stmts(a.guards)
		r.stmts(a.body)
		r.pop()
		armFrames = append(armFrames, f)
	}
	for _, f := range armFrames {
		for name, id := range f.vars {
			outer.vars[name] = id
		}
	}
}

// armStart returns the offset where a begins. An arm without a recorded
// start begins at its first node; an empty one at the conditional's end.
func armStart(a arm, end syntax.Position) int {
	if a.start.IsValid() {
		return a.start.Offset
	}
	for _, list := range [][]syntax.Node{a.guards, a.body} {
		if len(list) > 0 {
			return syntax.Start(list[0]).Offset
		}
	}
	return end.Offset
}

// assignedNames adds to names the local names assigned by n outside any
// nested block, method or class.
func (r *resolver) assignedNames(n syntax.Node, names map[string]bool) {
	var add func(t syntax.Node)
	add = func(t syntax.Node) {
		switch t := t.(type) {
		case *syntax.Ident:
			names[r.nameAt(t.NamePos, t.Name)] = true
		case *syntax.MLHS:
			for _, x := range t.Targets {
				add(x)
			}
		case *syntax.Unary:
			if t.X != nil {
				add(t.X)
			}
		}
	}
	syntax.Walk(n, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.BlockExpr, *syntax.MethodDef, *syntax.ClassDef:
			return false
		case *syntax.AssignExpr:
			add(n.LHS)
		case *syntax.MultiAssign:
			for _, t := range n.LHS {
				add(t)
			}
		case *syntax.ForExpr:
			for _, v := range n.Vars {
				add(v)
			}
		case *syntax.RescueClause:
			if n.Var != nil {
				add(n.Var)
			}
		}
		return true
	})
}
