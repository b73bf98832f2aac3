// Package scope builds the lexical scope tree of a Ruby file and resolves
// every local variable occurrence to the binding it denotes.
//
// Scopes, bindings and occurrences are stored in flat slices of a Table
// and refer to one another by index.
package scope

import (
	"cmp"
	"slices"

	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// Handles into the arenas of a Table.
type (
	ScopeID      int32
	BindingID    int32
	OccurrenceID int32
)

const (
	NoScope   ScopeID   = -1
	NoBinding BindingID = -1
)

// ScopeKind classifies a lexical scope.
type ScopeKind uint8

const (
	ScopeTop ScopeKind = iota
	ScopeClass
	ScopeMethod
	ScopeBlock
)

var scopeKindNames = [...]string{
	ScopeTop:    "top",
	ScopeClass:  "class",
	ScopeMethod: "method",
	ScopeBlock:  "block",
}

func (k ScopeKind) String() string { return scopeKindNames[k] }

// Gate reports whether name lookup stops at scopes of this kind.
// Only blocks see the locals of their enclosing scope.
func (k ScopeKind) Gate() bool { return k != ScopeBlock }

// A Scope is a lexical region that can declare bindings.
type Scope struct {
	Kind     ScopeKind
	Parent   ScopeID // NoScope for the root
	Children []ScopeID
	Decls    map[string][]BindingID // declared directly in this scope, in order
	Node     syntax.Node            // *syntax.File, *syntax.ClassDef, *syntax.MethodDef or *syntax.BlockExpr
	Start    syntax.Position
	End      syntax.Position
}

// contains reports whether offset lies within the scope's extent.
func (s *Scope) contains(offset int) bool {
	return s.Start.Offset <= offset && offset < s.End.Offset
}

// Origin records how a binding came into existence.
type Origin uint8

const (
	PlainLocal Origin = iota
	MethodParameter
	BlockParameter
	BranchLocal
)

var originNames = [...]string{
	PlainLocal:      "PlainLocal",
	MethodParameter: "MethodParameter",
	BlockParameter:  "BlockParameter",
	BranchLocal:     "BranchLocal",
}

func (o Origin) String() string { return originNames[o] }

// Access classifies an occurrence.
type Access uint8

const (
	Declare Access = iota
	Read
	Write
)

var accessNames = [...]string{
	Declare: "declare",
	Read:    "read",
	Write:   "write",
}

func (a Access) String() string { return accessNames[a] }

// A Binding is one logical variable.
type Binding struct {
	ID     BindingID
	Name   string
	Scope  ScopeID
	Origin Origin
	Start  syntax.Position // span of the declaring identifier
	End    syntax.Position

	occs []OccurrenceID
	arm  int // index+1 into Table.arms of the confining arm, or 0
}

// An Occurrence is one use of a binding's name.
type Occurrence struct {
	Start   syntax.Position
	End     syntax.Position
	Access  Access
	Binding BindingID

	// Shorthand is set for the implicit value of a hash shorthand {x:},
	// whose text is shared with the hash key.
	Shorthand bool
}

// An Unresolved is a bare identifier read with no visible binding.
// In Ruby such a read is a call of a method with no arguments.
type Unresolved struct {
	Name  string
	Start syntax.Position
	End   syntax.Position
	Scope ScopeID
}

// A Table holds the scope tree of a file and the result of resolving it.
type Table struct {
	File       *syntax.File
	Scopes     []Scope
	Bindings   []Binding
	Occs       []Occurrence // every occurrence, in resolution order
	Unresolved []Unresolved

	scopeOf map[syntax.Node]ScopeID
	arms    []armExtent
}

// An armExtent is the byte range [start, end) of one arm of a
// conditional whose text ends at condEnd. A local first assigned in an
// arm is not visible in its sibling arms, only inside the arm and after
// the conditional.
type armExtent struct {
	start, end int
	condEnd    int
	parent     int // index+1 of the enclosing arm in the same scope, or 0
}

// armVisible reports whether a binding confined to arm (index+1) can be
// seen at offset, given that offset follows its declaration.
func (t *Table) armVisible(arm, offset int) bool {
	for ; arm != 0; arm = t.arms[arm-1].parent {
		a := t.arms[arm-1]
		if a.start <= offset && offset < a.end {
			return true
		}
		if offset < a.condEnd {
			return false
		}
	}
	return true
}

// Root returns the file's top-level scope.
func (t *Table) Root() ScopeID { return 0 }

func (t *Table) Scope(id ScopeID) *Scope { return &t.Scopes[id] }

func (t *Table) Binding(id BindingID) *Binding { return &t.Bindings[id] }

// Occurrences returns every occurrence of the binding, sorted by offset.
func (t *Table) Occurrences(id BindingID) []Occurrence {
	b := &t.Bindings[id]
	out := make([]Occurrence, 0, len(b.occs))
	for _, o := range b.occs {
		out = append(out, t.Occs[o])
	}
	slices.SortFunc(out, func(a, b Occurrence) int { return cmp.Compare(a.Start.Offset, b.Start.Offset) })
	return out
}

// OccurrenceAt returns the occurrence whose span contains offset. A cursor
// just past the end of a name still selects it, unless another occurrence
// starts there.
func (t *Table) OccurrenceAt(offset int) (Occurrence, bool) {
	var (
		edge  Occurrence
		found bool
	)
	for _, o := range t.Occs {
		if o.Start.Offset <= offset && offset < o.End.Offset {
			return o, true
		}
		if o.End.Offset == offset && !found {
			edge, found = o, true
		}
	}
	return edge, found
}

// BindingAt returns the binding of the occurrence at offset.
func (t *Table) BindingAt(offset int) (BindingID, bool) {
	o, ok := t.OccurrenceAt(offset)
	if !ok {
		return NoBinding, false
	}
	return o.Binding, true
}

// ScopeAt returns the innermost scope whose extent contains offset.
func (t *Table) ScopeAt(offset int) ScopeID {
	best := t.Root()
	for i := range t.Scopes {
		s := &t.Scopes[i]
		if !s.contains(offset) {
			continue
		}
		if b := &t.Scopes[best]; s.End.Offset-s.Start.Offset < b.End.Offset-b.Start.Offset {
			best = ScopeID(i)
		}
	}
	return best
}

// VisibleAt returns the bindings whose names are in scope at offset: for
// each name, the latest binding declared before offset in the innermost
// scope that declares it, walking outward up to the nearest gate.
// A binding first assigned in one arm of a conditional is not visible in
// the other arms. The result is sorted by name.
func (t *Table) VisibleAt(offset int) []BindingID {
	seen := make(map[string]bool)
	var out []BindingID
	for id := t.ScopeAt(offset); id != NoScope; id = t.Scopes[id].Parent {
		s := &t.Scopes[id]
		for name, ids := range s.Decls {
			if seen[name] {
				continue
			}
			latest := NoBinding
			for _, b := range ids {
				if t.Bindings[b].Start.Offset < offset && t.armVisible(t.Bindings[b].arm, offset) {
					latest = b
				}
			}
			if latest != NoBinding {
				seen[name] = true
				out = append(out, latest)
			}
		}
		if s.Kind.Gate() {
			break
		}
	}
	slices.SortFunc(out, func(a, b BindingID) int {
		return cmp.Compare(t.Bindings[a].Name, t.Bindings[b].Name)
	})
	return out
}

// Reads returns the number of read occurrences of a binding.
func (t *Table) Reads(id BindingID) int {
	n := 0
	for _, o := range t.Bindings[id].occs {
		if t.Occs[o].Access == Read {
			n++
		}
	}
	return n
}

// Writes returns the number of write occurrences of a binding.
func (t *Table) Writes(id BindingID) int {
	n := 0
	for _, o := range t.Bindings[id].occs {
		if t.Occs[o].Access == Write {
			n++
		}
	}
	return n
}
