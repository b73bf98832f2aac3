package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pressly/cli"
	"github.com/stefanvanburen/rbrename/internal/check"
	"github.com/stefanvanburen/rbrename/internal/config"
	"github.com/stefanvanburen/rbrename/internal/query"
	"github.com/stefanvanburen/rbrename/internal/rename"
	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
	"golang.org/x/sync/errgroup"
)

// A location is a file position given as path:line:col, with 1-based
// line and byte column.
type location struct {
	path      string
	line, col int
}

func parseLocation(arg string) (location, error) {
	rest, colStr, ok := cutLast(arg, ":")
	if !ok {
		return location{}, fmt.Errorf("invalid location %q, want file:line:col", arg)
	}
	path, lineStr, ok := cutLast(rest, ":")
	if !ok || path == "" {
		return location{}, fmt.Errorf("invalid location %q, want file:line:col", arg)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return location{}, fmt.Errorf("invalid line in %q", arg)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return location{}, fmt.Errorf("invalid column in %q", arg)
	}
	return location{path: path, line: line, col: col}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// load parses the file at loc and returns it with the byte offset of loc.
func load(loc location) (*syntax.File, int, error) {
	f, err := parseFile(loc.path)
	if err != nil {
		return nil, 0, err
	}
	offset, ok := f.Offset(loc.line, loc.col)
	if !ok || offset > len(f.Src) {
		return nil, 0, fmt.Errorf("%s:%d:%d: position is outside the file", loc.path, loc.line, loc.col)
	}
	return f, offset, nil
}

func parseFile(path string) (*syntax.File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := syntax.Parse(path, src)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", path, err)
	}
	return f, nil
}

func renameCmd(ctx context.Context, s *cli.State) error {
	if len(s.Args) != 2 {
		return errors.New("usage: rbrename rename [flags] <file>:<line>:<col> <new-name>")
	}
	loc, err := parseLocation(s.Args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	opts := rename.Options{
		ConflictsFatal: cfg.Rename.ConflictsFatal || cli.GetFlag[bool](s, "fatal-conflicts"),
	}
	return runRename(ctx, s.Stdout, s.Stderr, loc, s.Args[1], cli.GetFlag[bool](s, "w"), opts)
}

// runRename prints the renamed source to stdout, or writes it back to the
// file when write is set. Conflict warnings go to stderr.
func runRename(ctx context.Context, stdout, stderr io.Writer, loc location, newName string, write bool, opts rename.Options) error {
	f, offset, err := load(loc)
	if err != nil {
		return err
	}
	out, res, err := rename.Do(ctx, f, rename.Request{Offset: offset, NewName: newName}, opts)
	if err != nil {
		var nerr *rename.NoBindingAtCursorError
		var cerr *rename.ConflictError
		if errors.As(err, &nerr) || errors.As(err, &cerr) {
			return fmt.Errorf("%s:%w", loc.path, err)
		}
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "%s:%s: warning: %s\n", loc.path, w.Pos, w.Message)
	}
	if !write {
		_, err := stdout.Write(out)
		return err
	}
	info, err := os.Stat(loc.path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(loc.path, out, info.Mode().Perm()); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "renamed %s to %s in %d places\n", res.OldName, newName, len(res.Edits))
	return nil
}

func refsCmd(ctx context.Context, s *cli.State) error {
	if len(s.Args) != 1 {
		return errors.New("usage: rbrename refs <file>:<line>:<col>")
	}
	loc, err := parseLocation(s.Args[0])
	if err != nil {
		return err
	}
	return runRefs(ctx, s.Stdout, loc)
}

// runRefs prints one line per occurrence of the binding at loc.
func runRefs(ctx context.Context, w io.Writer, loc location) error {
	f, offset, err := load(loc)
	if err != nil {
		return err
	}
	t, id, err := rename.Target(ctx, f, offset)
	if err != nil {
		return fmt.Errorf("%s:%w", loc.path, err)
	}
	name := t.Binding(id).Name
	for _, occ := range t.Occurrences(id) {
		access := occ.Access.String()
		if occ.Shorthand {
			access += " (hash shorthand)"
		}
		if _, err := fmt.Fprintf(w, "%s:%s: %s %s\n", loc.path, occ.Start, access, name); err != nil {
			return err
		}
	}
	return nil
}

func bindingsCmd(ctx context.Context, s *cli.State) error {
	if len(s.Args) != 1 {
		return errors.New("usage: rbrename bindings [flags] <file>")
	}
	return runBindings(ctx, s.Stdout, s.Args[0], cli.GetFlag[string](s, "filter"))
}

// runBindings prints a table of the bindings of path matching expr.
// An empty expr matches everything.
func runBindings(ctx context.Context, w io.Writer, path, expr string) error {
	var filter *query.Filter
	if expr != "" {
		var err error
		if filter, err = query.Compile(expr); err != nil {
			return err
		}
	}
	f, err := parseFile(path)
	if err != nil {
		return err
	}
	t, err := scope.Resolve(ctx, f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ids, err := filter.Select(t)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tNAME\tORIGIN\tSCOPE\tREADS\tWRITES")
	for _, id := range ids {
		b := t.Binding(id)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			b.Start, b.Name, b.Origin, t.Scope(b.Scope).Kind, t.Reads(id), t.Writes(id))
	}
	return tw.Flush()
}

func checkCmd(ctx context.Context, s *cli.State) error {
	if len(s.Args) == 0 {
		return errors.New("usage: rbrename check <file>...")
	}
	errs, err := runCheck(ctx, s.Stdout, s.Args)
	if err != nil {
		return err
	}
	if errs > 0 {
		return fmt.Errorf("%d %s found", errs, pluralize(errs, "error", "errors"))
	}
	return nil
}

// runCheck checks paths concurrently and prints their problems in
// argument order. It returns the number of Error problems.
func runCheck(ctx context.Context, w io.Writer, paths []string) (int, error) {
	results := make([][]check.Problem, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			problems, err := check.Source(ctx, path, src)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = problems
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var errs int
	for i, problems := range results {
		for _, p := range problems {
			if p.Severity == check.Error {
				errs++
			}
			if _, err := fmt.Fprintf(w, "%s:%s\n", paths[i], p); err != nil {
				return errs, err
			}
		}
	}
	return errs, nil
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
