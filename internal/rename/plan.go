package rename

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// A TextEdit replaces the bytes between Start and End with NewText.
type TextEdit struct {
	Start   syntax.Position
	End     syntax.Position
	NewText string
}

// Plan returns one edit per occurrence, sorted by offset.
//
// Each edit replaces the identifier span, except for the implicit value
// of a hash shorthand {x:}. There the key must keep its name, so the
// value is spelled out after the colon instead: {x: new_name}.
func Plan(occs []scope.Occurrence, newName string) ([]TextEdit, error) {
	edits := make([]TextEdit, 0, len(occs))
	for _, o := range occs {
		if o.Shorthand {
			at := syntax.Position{Offset: o.End.Offset + 1, Line: o.End.Line, Col: o.End.Col + 1}
			edits = append(edits, TextEdit{Start: at, End: at, NewText: " " + newName})
			continue
		}
		edits = append(edits, TextEdit{Start: o.Start, End: o.End, NewText: newName})
	}
	slices.SortFunc(edits, func(a, b TextEdit) int { return cmp.Compare(a.Start.Offset, b.Start.Offset) })
	if err := checkDisjoint(edits); err != nil {
		return nil, err
	}
	return edits, nil
}

func checkDisjoint(edits []TextEdit) error {
	for i := 1; i < len(edits); i++ {
		prev, e := edits[i-1], edits[i]
		if e.Start.Offset < prev.End.Offset || e.Start.Offset == prev.Start.Offset {
			return fmt.Errorf("overlapping edits at %s and %s", prev.Start, e.Start)
		}
	}
	return nil
}

// Apply returns src with the edits applied. The edits must be sorted,
// disjoint and within src.
func Apply(src []byte, edits []TextEdit) ([]byte, error) {
	if err := checkDisjoint(edits); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	last := 0
	for _, e := range edits {
		if e.Start.Offset < last || e.End.Offset < e.Start.Offset || e.End.Offset > len(src) {
			return nil, fmt.Errorf("edit %d:%d out of range", e.Start.Offset, e.End.Offset)
		}
		buf.Write(src[last:e.Start.Offset])
		buf.WriteString(e.NewText)
		last = e.End.Offset
	}
	buf.Write(src[last:])
	return buf.Bytes(), nil
}
