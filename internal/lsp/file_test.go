package lsp

import (
	"context"
	"errors"
	"testing"

	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/rename"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

func TestLineColToByteOffset(t *testing.T) {
	t.Parallel()

	const text = "ab\n😀x\nlast"
	tests := []struct {
		line, col uint32
		want      int
	}{
		{0, 0, 0},
		{0, 2, 2},
		{0, 10, 2}, // clamped to the end of the line
		{1, 0, 3},
		{1, 2, 7}, // after the surrogate pair
		{1, 3, 8},
		{2, 4, 13},
		{9, 0, len(text)},
	}
	for _, test := range tests {
		be.Equal(t, lineColToByteOffset(text, test.line, test.col), test.want)
	}
}

func TestPosition(t *testing.T) {
	t.Parallel()

	f := newFile(t.Context(), "file:///x.rb", 1, "ab\n😀 x = 1\n")

	// x is at byte 8 of the file, byte column 6 of line 2.
	x := syntax.Position{Offset: 8, Line: 2, Col: 6}
	be.Equal(t, f.position(x), protocol.Position{Line: 1, Character: 3})
	be.Equal(t, f.position(syntax.Position{}), protocol.Position{})
}

func TestApplyChange(t *testing.T) {
	t.Parallel()

	content := "x = 1\nputs x\n"
	r := protocol.Range{Start: protocol.Position{Line: 1, Character: 5}, End: protocol.Position{Line: 1, Character: 6}}
	be.Equal(t, applyChange(content, protocol.TextDocumentContentChangeEvent{Range: &r, Text: "y"}), "x = 1\nputs y\n")

	ins := protocol.Range{Start: protocol.Position{Line: 0, Character: 0}, End: protocol.Position{Line: 0, Character: 0}}
	be.Equal(t, applyChange(content, protocol.TextDocumentContentChangeEvent{Range: &ins, Text: "# hi\n"}), "# hi\nx = 1\nputs x\n")

	be.Equal(t, applyChange(content, protocol.TextDocumentContentChangeEvent{Text: "new"}), "new")
}

func TestReplacedFileReportsContentModified(t *testing.T) {
	t.Parallel()

	f := newFile(t.Context(), "file:///x.rb", 1, "x = 1\n")
	f.cancel()

	_, _, err := f.analyze(context.Background())
	be.True(t, errors.Is(err, context.Canceled))

	var rpcErr *jsonrpc2.Error
	be.True(t, errors.As(f.failed(err), &rpcErr))
	be.Equal(t, rpcErr.Code, int64(jsonrpc2.CodeContentModified))

	// Nothing was cached, and resolved reports the same.
	be.True(t, f.table == nil)
	tbl, err := f.resolved(context.Background())
	be.True(t, tbl == nil)
	be.True(t, errors.As(err, &rpcErr))
	be.Equal(t, rpcErr.Code, int64(jsonrpc2.CodeContentModified))
}

func TestFailed(t *testing.T) {
	t.Parallel()

	f := newFile(t.Context(), "file:///x.rb", 1, "")

	var rpcErr *jsonrpc2.Error
	be.True(t, errors.As(f.failed(errors.New("boom")), &rpcErr))
	be.Equal(t, rpcErr.Code, int64(jsonrpc2.CodeRequestFailed))
	be.Equal(t, rpcErr.Message, "boom")

	// A cancelled request on a current file stays a plain cancellation.
	be.Equal(t, f.failed(context.Canceled), context.Canceled)
}

// After the first analysis, rename and diagnostics work from the cached
// table: the content below no longer parses, yet both still succeed.
func TestCachedTableIsReused(t *testing.T) {
	t.Parallel()

	f := newFile(t.Context(), "file:///x.rb", 1, "x = 1\nputs x\n")
	_, tbl, err := f.analyze(t.Context())
	be.Err(t, err, nil)
	f.content = "x = (\nputs x\n"

	edit, _, err := computeRename(t.Context(), f, protocol.RenameParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: f.uri},
		NewName:      "y",
	}, rename.Options{})
	be.Err(t, err, nil)
	want := []protocol.TextEdit{
		{Range: protocol.Range{Start: protocol.Position{Line: 0, Character: 0}, End: protocol.Position{Line: 0, Character: 1}}, NewText: "y"},
		{Range: protocol.Range{Start: protocol.Position{Line: 1, Character: 5}, End: protocol.Position{Line: 1, Character: 6}}, NewText: "y"},
	}
	be.Equal(t, edit.Changes[f.uri], want)

	diagnostics, err := computeDiagnostics(t.Context(), f)
	be.Err(t, err, nil)
	be.Equal(t, len(diagnostics), 0)
	be.True(t, f.table == tbl)
}

func TestComputeDiagnosticsParseError(t *testing.T) {
	t.Parallel()

	f := newFile(t.Context(), "file:///x.rb", 1, "x = (1")
	diagnostics, err := computeDiagnostics(t.Context(), f)
	be.Err(t, err, nil)
	be.Equal(t, len(diagnostics), 1)
	be.Equal(t, diagnostics[0].Severity, protocol.SeverityError)
	be.Equal(t, diagnostics[0].Message, "got end of file, want ')'")
	be.True(t, f.table == nil)
}
