package lsp_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
)

// requestRename sends a textDocument/rename request at the given position.
func requestRename(t *testing.T, conn *jsonrpc2.Conn, uri protocol.DocumentURI, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	t.Helper()
	var result *protocol.WorkspaceEdit
	err := conn.Call(t.Context(), "textDocument/rename", protocol.RenameParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     pos,
		NewName:      newName,
	}, &result)
	return result, err
}

// requestPrepareRename sends a textDocument/prepareRename request at the given position.
func requestPrepareRename(t *testing.T, conn *jsonrpc2.Conn, uri protocol.DocumentURI, pos protocol.Position) *protocol.PrepareRenameResult {
	t.Helper()
	var result *protocol.PrepareRenameResult
	err := conn.Call(t.Context(), "textDocument/prepareRename", protocol.PrepareRenameParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &result)
	be.Err(t, err, nil)
	return result
}

func TestRename(t *testing.T) {
	t.Parallel()

	totalEdits := func(newName string) []protocol.TextEdit {
		return []protocol.TextEdit{
			{Range: rng(1, 2, 7), NewText: newName},
			{Range: rng(3, 4, 9), NewText: newName},
			{Range: rng(5, 20, 25), NewText: newName},
			{Range: rng(7, 2, 7), NewText: newName},
		}
	}

	testCases := []struct {
		name     string
		position protocol.Position
		newName  string
		want     []protocol.TextEdit
	}{
		{
			name:     "local from declaration",
			position: pos(1, 3),
			newName:  "sum",
			want:     totalEdits("sum"),
		},
		{
			name:     "local from write inside block",
			position: pos(3, 6),
			newName:  "sum",
			want:     totalEdits("sum"),
		},
		{
			name:     "local from interpolation",
			position: pos(5, 22),
			newName:  "sum",
			want:     totalEdits("sum"),
		},
		{
			name:     "cursor just past the name",
			position: pos(7, 7),
			newName:  "sum",
			want:     totalEdits("sum"),
		},
		{
			name:     "method parameter",
			position: pos(0, 12),
			newName:  "values",
			want: []protocol.TextEdit{
				{Range: rng(0, 10, 15), NewText: "values"},
				{Range: rng(2, 2, 7), NewText: "values"},
			},
		},
		{
			name:     "block parameter from read",
			position: pos(3, 14),
			newName:  "n",
			want: []protocol.TextEdit{
				{Range: rng(2, 17, 21), NewText: "n"},
				{Range: rng(3, 13, 17), NewText: "n"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn, uri := setupLSPServer(t, getAbsPath(t, "testdata/tally.rb"))
			edit, err := requestRename(t, conn, uri, tc.position, tc.newName)
			be.Err(t, err, nil)
			be.True(t, edit != nil)
			be.Equal(t, len(edit.Changes), 1)
			if diff := cmp.Diff(tc.want, edit.Changes[uri]); diff != "" {
				t.Errorf("rename edits mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenameErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		position protocol.Position
		newName  string
		message  string
	}{
		{"same name", pos(1, 2), "total", "The new name cannot be the same as the old name."},
		{"invalid identifier", pos(1, 2), "Total", `"Total" is not a valid local variable name`},
		{"keyword", pos(1, 2), "end", `"end" is not a valid local variable name`},
		{"no variable at cursor", pos(6, 3), "x", "no local variable at cursor"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn, uri := setupLSPServer(t, getAbsPath(t, "testdata/tally.rb"))
			edit, err := requestRename(t, conn, uri, tc.position, tc.newName)
			be.True(t, edit == nil)
			var rpcErr *jsonrpc2.Error
			be.True(t, errors.As(err, &rpcErr))
			be.Equal(t, rpcErr.Code, int64(jsonrpc2.CodeRequestFailed))
			be.Err(t, err, tc.message)
		})
	}
}

func TestRenameParseError(t *testing.T) {
	t.Parallel()

	conn, _ := startServer(t, lsp.Options{})
	uri := protocol.DocumentURI("file:///broken.rb")
	openFile(t, conn, uri, "x = (1")

	_, err := requestRename(t, conn, uri, pos(0, 0), "y")
	var rpcErr *jsonrpc2.Error
	be.True(t, errors.As(err, &rpcErr))
	be.Equal(t, rpcErr.Code, int64(jsonrpc2.CodeRequestFailed))
	be.Err(t, err, "want ')'")
}

func TestRenameUnknownFile(t *testing.T) {
	t.Parallel()

	conn, _ := startServer(t, lsp.Options{})
	edit, err := requestRename(t, conn, "file:///nonexistent.rb", pos(0, 0), "y")
	be.Err(t, err, nil)
	be.True(t, edit == nil)
}

func TestRenameShorthandHash(t *testing.T) {
	t.Parallel()

	conn, _ := startServer(t, lsp.Options{})
	uri := protocol.DocumentURI("file:///hash.rb")
	openFile(t, conn, uri, "x = 1\nfoo(x:)\n")

	edit, err := requestRename(t, conn, uri, pos(0, 0), "y")
	be.Err(t, err, nil)
	want := []protocol.TextEdit{
		{Range: rng(0, 0, 1), NewText: "y"},
		{Range: rng(1, 6, 6), NewText: " y"},
	}
	if diff := cmp.Diff(want, edit.Changes[uri]); diff != "" {
		t.Errorf("rename edits mismatch (-want +got):\n%s", diff)
	}
}

func TestRenameUTF16Columns(t *testing.T) {
	t.Parallel()

	conn, _ := startServer(t, lsp.Options{})
	uri := protocol.DocumentURI("file:///utf16.rb")
	// "😀" is two UTF-16 code units and four bytes.
	openFile(t, conn, uri, "s = 1\nputs \"😀\", s\n")

	edit, err := requestRename(t, conn, uri, pos(1, 11), "t")
	be.Err(t, err, nil)
	want := []protocol.TextEdit{
		{Range: rng(0, 0, 1), NewText: "t"},
		{Range: rng(1, 11, 12), NewText: "t"},
	}
	if diff := cmp.Diff(want, edit.Changes[uri]); diff != "" {
		t.Errorf("rename edits mismatch (-want +got):\n%s", diff)
	}
}

func TestRenameConflictShowsMessage(t *testing.T) {
	t.Parallel()

	conn, nc := startServer(t, lsp.Options{})
	uri := protocol.DocumentURI("file:///conflict.rb")
	openFile(t, conn, uri, "a = 1\nb = 2\nputs a, b\n")

	edit, err := requestRename(t, conn, uri, pos(0, 0), "b")
	be.Err(t, err, nil)
	be.Equal(t, len(edit.Changes[uri]), 2)

	var msg protocol.ShowMessageParams
	nc.waitFor(t, "window/showMessage", 1, &msg)
	be.Equal(t, msg.Type, protocol.WarningMessage)
	be.True(t, strings.Contains(msg.Message, "a would be merged with the existing variable b"))
}

func TestPrepareRename(t *testing.T) {
	t.Parallel()

	conn, uri := setupLSPServer(t, getAbsPath(t, "testdata/tally.rb"))

	result := requestPrepareRename(t, conn, uri, pos(5, 21))
	be.True(t, result != nil)
	be.Equal(t, result.Placeholder, "total")
	be.Equal(t, result.Range, rng(5, 20, 25))

	// "puts" is a method call.
	be.True(t, requestPrepareRename(t, conn, uri, pos(6, 3)) == nil)
}
