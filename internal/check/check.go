// Package check reports problems with the local variables of a Ruby file.
package check

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// Severity ranks a Problem.
type Severity uint8

const (
	Error Severity = iota + 1
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	}
	return fmt.Sprintf("Severity(%d)", s)
}

// A Problem is one finding, located at [Start, End).
type Problem struct {
	Start    syntax.Position
	End      syntax.Position
	Severity Severity
	Message  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Start, p.Severity, p.Message)
}

// Source parses and resolves src and reports its problems, sorted by
// position. A file that fails to parse yields a single Error problem.
// The returned error is non-nil only if ctx is done.
func Source(ctx context.Context, filename string, src []byte) ([]Problem, error) {
	f, err := syntax.Parse(filename, src)
	if err != nil {
		return FromError(err)
	}
	return File(ctx, f)
}

// FromError turns a parse error or a structural error into a single
// Error problem. Any other error is returned unchanged.
func FromError(err error) ([]Problem, error) {
	var (
		perr *syntax.Error
		serr *scope.StructuralError
	)
	switch {
	case errors.As(err, &perr):
		return []Problem{{Start: perr.Pos, End: perr.Pos, Severity: Error, Message: perr.Msg}}, nil
	case errors.As(err, &serr):
		return []Problem{{Start: serr.Pos, End: serr.Pos, Severity: Error, Message: serr.Error()}}, nil
	}
	return nil, err
}

// File reports the problems of a parsed file.
func File(ctx context.Context, f *syntax.File) ([]Problem, error) {
	t, err := scope.Resolve(ctx, f)
	if err != nil {
		return FromError(err)
	}
	return Resolved(t), nil
}

// Resolved reports the problems of an already resolved file.
func Resolved(t *scope.Table) []Problem {
	problems := append(readBeforeAssignment(t), unused(t)...)
	slices.SortFunc(problems, func(a, b Problem) int {
		return cmp.Compare(a.Start.Offset, b.Start.Offset)
	})
	return problems
}

// readBeforeAssignment finds bare identifiers that Ruby treats as method
// calls only because the local of the same name is assigned later on.
func readBeforeAssignment(t *scope.Table) []Problem {
	var out []Problem
	for _, u := range t.Unresolved {
		if !assignedLater(t, u) {
			continue
		}
		out = append(out, Problem{
			Start:    u.Start,
			End:      u.End,
			Severity: Warning,
			Message:  fmt.Sprintf("%s is read before it is assigned, so it calls a method named %s", u.Name, u.Name),
		})
	}
	return out
}

func assignedLater(t *scope.Table, u scope.Unresolved) bool {
	for id := u.Scope; id != scope.NoScope; id = t.Scope(id).Parent {
		s := t.Scope(id)
		for _, b := range s.Decls[u.Name] {
			if t.Binding(b).Start.Offset > u.Start.Offset {
				return true
			}
		}
		if s.Kind.Gate() {
			break
		}
	}
	return false
}

// unused finds locals that are assigned once and never mentioned again.
// Parameters and names starting with an underscore are exempt.
func unused(t *scope.Table) []Problem {
	var out []Problem
	for i := range t.Bindings {
		b := &t.Bindings[i]
		if b.Origin != scope.PlainLocal || strings.HasPrefix(b.Name, "_") {
			continue
		}
		if len(t.Occurrences(b.ID)) > 1 {
			continue
		}
		out = append(out, Problem{
			Start:    b.Start,
			End:      b.End,
			Severity: Warning,
			Message:  "assigned but unused variable - " + b.Name,
		})
	}
	return out
}
