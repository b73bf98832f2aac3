package rename

import (
	"fmt"

	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// NoBindingAtCursorError is returned when the cursor is not on a local
// variable, method parameter or block parameter.
type NoBindingAtCursorError struct {
	Pos syntax.Position
}

func (e *NoBindingAtCursorError) Error() string {
	return fmt.Sprintf("%s: no local variable at cursor", e.Pos)
}

// SameNameError is returned when the new name equals the old one.
type SameNameError struct {
	Name string
}

func (e *SameNameError) Error() string {
	return "The new name cannot be the same as the old name."
}

// InvalidIdentifierError is returned when the new name cannot spell a
// Ruby local variable.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("%q is not a valid local variable name", e.Name)
}

// A ConflictWarning describes a change of meaning the rename would cause.
// It does not stop the rename unless conflicts are configured fatal.
type ConflictWarning struct {
	Name    string          // the other variable or method involved
	Pos     syntax.Position // where it is declared or used
	Message string
}

func (w *ConflictWarning) Error() string {
	return fmt.Sprintf("%s: %s", w.Pos, w.Message)
}

// ConflictError is returned instead of edits when conflicts are fatal.
type ConflictError struct {
	Warnings []*ConflictWarning
}

func (e *ConflictError) Error() string {
	switch len(e.Warnings) {
	case 0:
		return "rename conflict"
	case 1:
		return "rename conflict: " + e.Warnings[0].Error()
	}
	return fmt.Sprintf("rename conflict: %s (and %d more)", e.Warnings[0], len(e.Warnings)-1)
}
