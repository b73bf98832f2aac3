// Package query selects bindings with CEL expressions.
//
// A filter is evaluated once per binding with these variables:
//
//	name    string  the variable name
//	origin  string  PlainLocal, MethodParameter, BlockParameter or BranchLocal
//	scope   string  kind of the owning scope: top, class, method or block
//	reads   int     number of reads
//	writes  int     number of writes after the declaration
//	line    int     line of the declaration
//
// For example:
//
//	origin == "BlockParameter" && reads == 0
//	name.startsWith("tmp") || writes > 2
package query

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/stefanvanburen/rbrename/internal/scope"
)

var env = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("origin", cel.StringType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("reads", cel.IntType),
		cel.Variable("writes", cel.IntType),
		cel.Variable("line", cel.IntType),
	)
})

// A Filter is a compiled binding filter.
type Filter struct {
	src string
	prg cel.Program
}

// Compile parses and type-checks expr, which must evaluate to a bool.
func Compile(expr string) (*Filter, error) {
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, iss := e.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("invalid filter: result has type %s, want bool", ast.OutputType())
	}
	prg, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return &Filter{src: expr, prg: prg}, nil
}

func (f *Filter) String() string { return f.src }

// Match reports whether binding id of t satisfies the filter.
func (f *Filter) Match(t *scope.Table, id scope.BindingID) (bool, error) {
	b := t.Binding(id)
	out, _, err := f.prg.Eval(map[string]any{
		"name":   b.Name,
		"origin": b.Origin.String(),
		"scope":  t.Scope(b.Scope).Kind.String(),
		"reads":  t.Reads(id),
		"writes": t.Writes(id),
		"line":   int(b.Start.Line),
	})
	if err != nil {
		return false, fmt.Errorf("evaluating %q for %s: %w", f.src, b.Name, err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluating %q: got %T, want bool", f.src, out.Value())
	}
	return match, nil
}

// Select returns the bindings of t that satisfy the filter, in
// declaration order. A nil filter selects every binding.
func (f *Filter) Select(t *scope.Table) ([]scope.BindingID, error) {
	var out []scope.BindingID
	for i := range t.Bindings {
		id := scope.BindingID(i)
		if f != nil {
			ok, err := f.Match(t, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, id)
	}
	return out, nil
}
