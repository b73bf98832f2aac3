// Package rename computes the edits that rename a local variable, method
// parameter or block parameter throughout one Ruby file.
package rename

import (
	"context"

	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// A Request asks to rename the variable at Offset to NewName.
type Request struct {
	Offset  int
	NewName string
}

// A Result is a validated rename plan.
type Result struct {
	Binding  scope.BindingID
	OldName  string
	Edits    []TextEdit
	Warnings []*ConflictWarning
}

// Target resolves f and returns the binding under the cursor.
func Target(ctx context.Context, f *syntax.File, offset int) (*scope.Table, scope.BindingID, error) {
	t, err := scope.Resolve(ctx, f)
	if err != nil {
		return nil, scope.NoBinding, err
	}
	id, err := bindingAt(t, offset)
	return t, id, err
}

func bindingAt(t *scope.Table, offset int) (scope.BindingID, error) {
	id, ok := t.BindingAt(offset)
	if !ok {
		return scope.NoBinding, &NoBindingAtCursorError{Pos: t.File.Position(offset)}
	}
	return id, nil
}

// ComputeRename renames the variable at offset in f to newName.
// It does not modify f; apply the returned edits with Apply.
func ComputeRename(ctx context.Context, f *syntax.File, offset int, newName string, opts Options) (*Result, error) {
	t, err := scope.Resolve(ctx, f)
	if err != nil {
		return nil, err
	}
	return ComputeRenameIn(ctx, t, offset, newName, opts)
}

// ComputeRenameIn is ComputeRename for a file that is already resolved:
// t must be the result of scope.Resolve on t.File with no options.
func ComputeRenameIn(ctx context.Context, t *scope.Table, offset int, newName string, opts Options) (*Result, error) {
	id, err := bindingAt(t, offset)
	if err != nil {
		return nil, err
	}
	warnings, err := Validate(ctx, t.File, t, id, newName, opts)
	if err != nil {
		return nil, err
	}
	edits, err := Plan(t.Occurrences(id), newName)
	if err != nil {
		return nil, err
	}
	return &Result{
		Binding:  id,
		OldName:  t.Binding(id).Name,
		Edits:    edits,
		Warnings: warnings,
	}, nil
}

// Do performs req on f and returns the rewritten source.
func Do(ctx context.Context, f *syntax.File, req Request, opts Options) ([]byte, *Result, error) {
	res, err := ComputeRename(ctx, f, req.Offset, req.NewName, opts)
	if err != nil {
		return nil, nil, err
	}
	out, err := Apply(f.Src, res.Edits)
	if err != nil {
		return nil, nil, err
	}
	return out, res, nil
}
