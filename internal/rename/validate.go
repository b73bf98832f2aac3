package rename

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// Options control validation.
type Options struct {
	// ConflictsFatal turns conflict warnings into a *ConflictError.
	ConflictsFatal bool
}

// Validate checks that binding id of t may be renamed to newName.
// It returns a *SameNameError or *InvalidIdentifierError for names that
// cannot be used, and otherwise the conflicts the rename would cause.
//
// Conflicts are found by resolving f again as if the binding's
// occurrences were spelled newName and comparing the two results.
func Validate(ctx context.Context, f *syntax.File, t *scope.Table, id scope.BindingID, newName string, opts Options) ([]*ConflictWarning, error) {
	b := t.Binding(id)
	if newName == b.Name {
		return nil, &SameNameError{Name: newName}
	}
	if !IsLocalName(newName) {
		return nil, &InvalidIdentifierError{Name: newName}
	}
	warnings, err := conflicts(ctx, f, t, id, newName)
	if err != nil {
		return nil, err
	}
	if opts.ConflictsFatal && len(warnings) > 0 {
		return warnings, &ConflictError{Warnings: warnings}
	}
	return warnings, nil
}

// IsLocalName reports whether s can name a local variable: a lowercase
// letter, underscore or non-ASCII letter, followed by letters, digits and
// underscores, and not a reserved word.
func IsLocalName(s string) bool {
	if s == "" || syntax.IsKeyword(s) {
		return false
	}
	for i, r := range s {
		if r == utf8.RuneError {
			return false
		}
		switch {
		case r == '_', 'a' <= r && r <= 'z':
		case r >= utf8.RuneSelf && unicode.IsLetter(r):
		case i > 0 && ('A' <= r && r <= 'Z' || '0' <= r && r <= '9'):
		case i > 0 && r >= utf8.RuneSelf && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func conflicts(ctx context.Context, f *syntax.File, t *scope.Table, id scope.BindingID, newName string) ([]*ConflictWarning, error) {
	var renamed []int
	for _, o := range t.Occurrences(id) {
		renamed = append(renamed, o.Start.Offset)
	}
	after, err := scope.Resolve(ctx, f, scope.WithRenamed(renamed, newName))
	if err != nil {
		return nil, err
	}
	bindingAfter := make(map[int]scope.BindingID, len(after.Occs))
	for _, o := range after.Occs {
		bindingAfter[o.Start.Offset] = o.Binding
	}

	var warnings []*ConflictWarning
	warn := func(name string, pos syntax.Position, format string, args ...any) {
		warnings = append(warnings, &ConflictWarning{Name: name, Pos: pos, Message: fmt.Sprintf(format, args...)})
	}

	target := bindingAfter[renamed[0]]
	for i := range t.Bindings {
		other := &t.Bindings[i]
		if other.ID == id {
			continue
		}
		occs := t.Occurrences(other.ID)
		group := make(map[scope.BindingID]bool)
		for _, o := range occs {
			group[bindingAfter[o.Start.Offset]] = true
		}
		if len(group) != 1 {
			warn(other.Name, other.Start, "references to %s would resolve to different variables", other.Name)
			continue
		}
		var b scope.BindingID
		for x := range group {
			b = x
		}
		switch {
		case b == target:
			warn(other.Name, other.Start, "%s would be merged with the existing variable %s", t.Binding(id).Name, newName)
		case len(after.Occurrences(b)) != len(occs):
			warn(other.Name, other.Start, "%s would capture references to the renamed variable", other.Name)
		}
	}
	if len(warnings) == 0 {
		for _, o := range t.Occurrences(id)[1:] {
			if bindingAfter[o.Start.Offset] != target {
				warn(newName, o.Start, "this reference would resolve to a different %s", newName)
			}
		}
	}

	for _, u := range t.Unresolved {
		if u.Name != newName {
			continue
		}
		if _, ok := bindingAfter[u.Start.Offset]; ok {
			warn(u.Name, u.Start, "call of method %s would become a reference to the renamed variable", u.Name)
		}
	}

	if p := keywordParam(t, id); p != nil {
		warn(p.Name, p.NamePos, "renaming keyword parameter %s changes the keyword callers pass", p.Name)
	}
	return warnings, nil
}

// keywordParam returns the keyword parameter declaring id, if any.
func keywordParam(t *scope.Table, id scope.BindingID) *syntax.Param {
	b := t.Binding(id)
	var params []*syntax.Param
	switch n := t.Scope(b.Scope).Node.(type) {
	case *syntax.MethodDef:
		params = n.Params
	case *syntax.BlockExpr:
		params = n.Params
	}
	for _, p := range params {
		if p.Kind == syntax.KeywordParam && p.NamePos.Offset == b.Start.Offset {
			return p
		}
	}
	return nil
}
