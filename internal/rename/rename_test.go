package rename_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/rename"
	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

func parse(t *testing.T, src string) *syntax.File {
	t.Helper()
	f, err := syntax.Parse("test.rb", []byte(src))
	be.Err(t, err, nil)
	return f
}

func words(src, name string) []int {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	var out []int
	for _, m := range re.FindAllStringIndex(src, -1) {
		out = append(out, m[0])
	}
	return out
}

// replaced returns src with the name at each offset replaced by newName.
func replaced(src, name string, offsets []int, newName string) string {
	var b strings.Builder
	last := 0
	for _, off := range offsets {
		b.WriteString(src[last:off])
		b.WriteString(newName)
		last = off + len(name)
	}
	b.WriteString(src[last:])
	return b.String()
}

func TestComputeRenameFixture(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile(filepath.Join("testdata", "locals.rb"))
	be.Err(t, err, nil)
	src := string(data)
	f := parse(t, src)

	tests := []struct {
		name    string
		word    string
		at      int
		newName string
		want    []int
	}{
		{"method local leaves other method alone", "my_local_variable", 0, "my_new_local_variable", []int{0, 1, 2}},
		{"outer variable skips shadowing block parameter", "variable", 0, "new_variable", []int{0, 3}},
		{"block local", "local", 0, "new_local", []int{0, 1}},
		{"branch local in then arm", "x", 0, "y", []int{0}},
		{"mutated through block", "higher", 0, "new_higher", []int{0, 1, 2}},
		{"local after block with same name", "local", 2, "new_local", []int{2, 3}},
		{"method parameter", "a", 1, "c", []int{1, 2}},
		{"block parameter at declaration", "variable", 1, "new_variable", []int{1, 2}},
		{"block parameter at read", "variable", 2, "new_variable", []int{1, 2}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pos := words(src, test.word)
			res, err := rename.ComputeRename(t.Context(), f, pos[test.at], test.newName, rename.Options{})
			be.Err(t, err, nil)
			be.Equal(t, res.OldName, test.word)
			be.Equal(t, len(res.Warnings), 0)

			var want []int
			for _, i := range test.want {
				want = append(want, pos[i])
			}
			var got []int
			for _, e := range res.Edits {
				got = append(got, e.Start.Offset)
				be.Equal(t, e.End.Offset-e.Start.Offset, len(test.word))
				be.Equal(t, e.NewText, test.newName)
			}
			be.Equal(t, got, want)

			out, err := rename.Apply(f.Src, res.Edits)
			be.Err(t, err, nil)
			be.Equal(t, string(out), replaced(src, test.word, want, test.newName))
		})
	}
}

func TestComputeRenameSameName(t *testing.T) {
	t.Parallel()

	src := "class Bar\n  def foo\n    a = \"hello\"\n  end\nend\n"
	f := parse(t, src)
	_, err := rename.ComputeRename(t.Context(), f, words(src, "a")[0], "a", rename.Options{})
	var serr *rename.SameNameError
	be.True(t, errors.As(err, &serr))
	be.Equal(t, err.Error(), "The new name cannot be the same as the old name.")
}

func TestComputeRenameInvalidIdentifier(t *testing.T) {
	t.Parallel()

	src := "x = 1\nx\n"
	f := parse(t, src)
	for _, name := range []string{"", "Foo", "1x", "end", "self", "x?", "x!", "a-b", "@x", "__FILE__"} {
		t.Run(name, func(t *testing.T) {
			_, err := rename.ComputeRename(t.Context(), f, 0, name, rename.Options{})
			var ierr *rename.InvalidIdentifierError
			be.True(t, errors.As(err, &ierr))
			be.Equal(t, ierr.Name, name)
		})
	}
}

func TestIsLocalName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"_", "_x", "x1", "snake_Case", "ñame", "été"} {
		be.True(t, rename.IsLocalName(name))
	}
	for _, name := range []string{"X", "9", "a b", "if", "nil"} {
		be.True(t, !rename.IsLocalName(name))
	}
}

func TestComputeRenameNoBinding(t *testing.T) {
	t.Parallel()

	src := "x = 1\nputs x\n"
	f := parse(t, src)
	_, err := rename.ComputeRename(t.Context(), f, words(src, "puts")[0], "y", rename.Options{})
	var nerr *rename.NoBindingAtCursorError
	be.True(t, errors.As(err, &nerr))
	be.Equal(t, nerr.Pos.String(), "2:1")
}

func TestComputeRenameCursorAfterName(t *testing.T) {
	t.Parallel()

	src := "count = 1\ncount\n"
	f := parse(t, src)
	res, err := rename.ComputeRename(t.Context(), f, len("count = 1\ncount"), "total", rename.Options{})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Edits), 2)
}

func TestComputeRenameIsStable(t *testing.T) {
	t.Parallel()

	src := "total = 0\n[1, 2].each do |n|\n  total += n\nend\nputs \"#{total}\"\n"
	f := parse(t, src)

	first, err := rename.ComputeRename(t.Context(), f, 0, "sum", rename.Options{})
	be.Err(t, err, nil)
	second, err := rename.ComputeRename(t.Context(), f, 0, "sum", rename.Options{})
	be.Err(t, err, nil)
	if diff := cmp.Diff(first.Edits, second.Edits); diff != "" {
		t.Errorf("edits differ (-first +second):\n%s", diff)
	}

	out, err := rename.Apply(f.Src, first.Edits)
	be.Err(t, err, nil)
	be.Equal(t, string(out), "sum = 0\n[1, 2].each do |n|\n  sum += n\nend\nputs \"#{sum}\"\n")

	// Renaming back restores the original source.
	back, _, err := rename.Do(t.Context(), parse(t, string(out)), rename.Request{Offset: 0, NewName: "total"}, rename.Options{})
	be.Err(t, err, nil)
	be.Equal(t, string(back), src)
}

func TestComputeRenameShorthandHash(t *testing.T) {
	t.Parallel()

	src := "x = 1\nfoo(x:)\n"
	out, _, err := rename.Do(t.Context(), parse(t, src), rename.Request{Offset: 0, NewName: "y"}, rename.Options{})
	be.Err(t, err, nil)
	be.Equal(t, string(out), "y = 1\nfoo(x: y)\n")
}

func TestComputeRenameConflicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		word     string
		newName  string
		wantName string
	}{
		{"merge with existing local", "a = 1\nb = 2\nputs a, b\n", "a", "b", "b"},
		{"captured by block parameter", "a = 1\n[1].each { |b| puts a }\n", "a", "b", "b"},
		{"method call becomes local", "def m\n  x = 1\n  foo\n  x\nend\n", "x", "foo", "foo"},
		{"keyword parameter", "def m(k: 1)\n  k\nend\n", "k", "j", "k"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := parse(t, test.src)
			offset := words(test.src, test.word)[0]

			res, err := rename.ComputeRename(t.Context(), f, offset, test.newName, rename.Options{})
			be.Err(t, err, nil)
			be.Equal(t, len(res.Warnings), 1)
			be.Equal(t, res.Warnings[0].Name, test.wantName)

			_, err = rename.ComputeRename(t.Context(), f, offset, test.newName, rename.Options{ConflictsFatal: true})
			var cerr *rename.ConflictError
			be.True(t, errors.As(err, &cerr))
			be.Equal(t, len(cerr.Warnings), 1)
		})
	}
}

func TestComputeRenameNoConflictAcrossMethods(t *testing.T) {
	t.Parallel()

	src := "def a\n  x = 1\nend\n\ndef b\n  y = 1\n  y\nend\n"
	f := parse(t, src)
	res, err := rename.ComputeRename(t.Context(), f, words(src, "x")[0], "y", rename.Options{ConflictsFatal: true})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Warnings), 0)
}

func TestComputeRenameIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src     string
		word    string
		newName string
	}{
		{"x = 1\nputs x\n", "x", "y"},
		{"a = 1\nb = 2\nputs a, b\n", "a", "b"},
		{"def m(k: 1)\n  k\nend\n", "k", "j"},
	}
	for _, test := range tests {
		f := parse(t, test.src)
		tab, err := scope.Resolve(t.Context(), f)
		be.Err(t, err, nil)
		offset := words(test.src, test.word)[0]

		want, err := rename.ComputeRename(t.Context(), f, offset, test.newName, rename.Options{})
		be.Err(t, err, nil)
		got, err := rename.ComputeRenameIn(t.Context(), tab, offset, test.newName, rename.Options{})
		be.Err(t, err, nil)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%q: result mismatch (-ComputeRename +ComputeRenameIn):\n%s", test.src, diff)
		}
		be.Equal(t, tab.Binding(got.Binding).Name, test.word)
	}

	f := parse(t, "x = 1\nputs x\n")
	tab, err := scope.Resolve(t.Context(), f)
	be.Err(t, err, nil)
	_, err = rename.ComputeRenameIn(t.Context(), tab, len("x = 1\n"), "y", rename.Options{})
	var nerr *rename.NoBindingAtCursorError
	be.True(t, errors.As(err, &nerr))
	be.Equal(t, nerr.Pos.String(), "2:1")
}

func TestComputeRenameCancelled(t *testing.T) {
	t.Parallel()

	f := parse(t, "x = 1\n")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := rename.ComputeRename(ctx, f, 0, "y", rename.Options{})
	be.True(t, errors.Is(err, context.Canceled))
}

func TestPlan(t *testing.T) {
	t.Parallel()

	pos := func(off int) syntax.Position { return syntax.Position{Offset: off, Line: 1, Col: int32(off + 1)} }
	occs := []scope.Occurrence{
		{Start: pos(8), End: pos(9), Access: scope.Read},
		{Start: pos(0), End: pos(1), Access: scope.Declare},
	}
	edits, err := rename.Plan(occs, "yy")
	be.Err(t, err, nil)
	want := []rename.TextEdit{
		{Start: pos(0), End: pos(1), NewText: "yy"},
		{Start: pos(8), End: pos(9), NewText: "yy"},
	}
	if diff := cmp.Diff(want, edits); diff != "" {
		t.Errorf("Plan mismatch (-want +got):\n%s", diff)
	}

	_, err = rename.Plan(append(occs, scope.Occurrence{Start: pos(0), End: pos(1)}), "yy")
	be.Err(t, err, "overlapping edits")
}

func TestApplyRejectsBadEdits(t *testing.T) {
	t.Parallel()

	pos := func(off int) syntax.Position { return syntax.Position{Offset: off, Line: 1, Col: int32(off + 1)} }
	src := []byte("abc")

	_, err := rename.Apply(src, []rename.TextEdit{{Start: pos(1), End: pos(5), NewText: "x"}})
	be.Err(t, err, "out of range")

	_, err = rename.Apply(src, []rename.TextEdit{
		{Start: pos(0), End: pos(2), NewText: "x"},
		{Start: pos(1), End: pos(3), NewText: "y"},
	})
	be.Err(t, err, "overlapping edits")

	out, err := rename.Apply(src, []rename.TextEdit{{Start: pos(1), End: pos(2), NewText: "XYZ"}})
	be.Err(t, err, nil)
	be.Equal(t, string(out), "aXYZc")
}
