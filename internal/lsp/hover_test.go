package lsp_test

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
)

// getHover sends a textDocument/hover request and returns the result.
func getHover(t *testing.T, rbFile string, line, character uint32) *protocol.Hover {
	t.Helper()
	ctx := t.Context()
	testPath := getAbsPath(t, rbFile)
	clientConn, testURI := setupLSPServer(t, testPath)

	var result *protocol.Hover
	err := clientConn.Call(ctx, "textDocument/hover", protocol.HoverParams{
		TextDocument: protocol.TextDocumentIdentifier{
			URI: testURI,
		},
		Position: protocol.Position{
			Line:      line,
			Character: character,
		},
	}, &result)
	be.Err(t, err, nil)
	return result
}

func TestHover(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		line uint32
		char uint32
		want string // empty string means expect no hover
		rng  protocol.Range
	}{
		{
			name: "local",
			line: 7, char: 4,
			want: "```ruby\ntotal\n```\n\nlocal variable, declared in method scope on line 2 (2 reads, 1 write)",
			rng:  rng(7, 2, 7),
		},
		{
			name: "keyword parameter",
			line: 3, char: 21,
			want: "```ruby\nscale\n```\n\nmethod parameter, declared in method scope on line 1 (1 read, 0 writes)",
			rng:  rng(3, 20, 25),
		},
		{
			name: "block parameter",
			line: 2, char: 17,
			want: "```ruby\nitem\n```\n\nblock parameter, declared in block scope on line 3 (1 read, 0 writes)",
			rng:  rng(2, 17, 21),
		},
		{
			name: "method call",
			line: 6, char: 3,
		},
		{
			name: "string contents",
			line: 5, char: 13,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := getHover(t, "testdata/tally.rb", tc.line, tc.char)
			if tc.want == "" {
				be.True(t, result == nil)
				return
			}
			be.True(t, result != nil)
			be.Equal(t, result.Contents.Kind, protocol.Markdown)
			be.Equal(t, result.Contents.Value, tc.want)
			be.Equal(t, *result.Range, tc.rng)
		})
	}
}
