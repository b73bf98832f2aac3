package lsp_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/lsp"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
)

// semanticToken represents a decoded semantic token for easier testing.
type semanticToken struct {
	line      uint32
	startChar uint32
	length    uint32
	tokenType uint32
	modifiers uint32
}

// decodeSemanticTokens converts the delta-encoded token array into absolute positions.
func decodeSemanticTokens(data []uint32) []semanticToken {
	var tokens []semanticToken
	var line, startChar uint32

	for i := 0; i < len(data); i += 5 {
		deltaLine := data[i]
		deltaStartChar := data[i+1]

		line += deltaLine
		if deltaLine != 0 {
			startChar = deltaStartChar
		} else {
			startChar += deltaStartChar
		}

		tokens = append(tokens, semanticToken{
			line:      line,
			startChar: startChar,
			length:    data[i+2],
			tokenType: data[i+3],
			modifiers: data[i+4],
		})
	}
	return tokens
}

// Semantic token types and modifiers - must match semantic_tokens.go constants.
const (
	stVariable  = 0
	stParameter = 1

	smDeclaration  = 1
	smModification = 2
)

func requestSemanticTokens(t *testing.T, text string) *protocol.SemanticTokens {
	t.Helper()
	conn, _ := startServer(t, lsp.Options{})
	uri := protocol.DocumentURI("file:///tokens.rb")
	openFile(t, conn, uri, text)

	var result *protocol.SemanticTokens
	err := conn.Call(t.Context(), "textDocument/semanticTokens/full", protocol.SemanticTokensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}, &result)
	be.Err(t, err, nil)
	return result
}

func TestSemanticTokens(t *testing.T) {
	t.Parallel()

	result := requestSemanticTokens(t, "def m(a)\n  b = a\n  [1].each { |x| b += x }\n  b\nend\n")
	be.True(t, result != nil)
	want := []semanticToken{
		{0, 6, 1, stParameter, smDeclaration},  // a
		{1, 2, 1, stVariable, smDeclaration},   // b =
		{1, 6, 1, stParameter, 0},              // a
		{2, 14, 1, stParameter, smDeclaration}, // |x|
		{2, 17, 1, stVariable, smModification}, // b +=
		{2, 22, 1, stParameter, 0},             // x
		{3, 2, 1, stVariable, 0},               // b
	}
	if diff := cmp.Diff(want, decodeSemanticTokens(result.Data), cmp.AllowUnexported(semanticToken{})); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestSemanticTokensUTF16Length(t *testing.T) {
	t.Parallel()

	result := requestSemanticTokens(t, "café = 1\nputs café\n")
	be.True(t, result != nil)
	tokens := decodeSemanticTokens(result.Data)
	be.Equal(t, len(tokens), 2)
	be.Equal(t, tokens[0].length, uint32(4))
	be.Equal(t, tokens[1].startChar, uint32(5))
}

func TestSemanticTokensEmpty(t *testing.T) {
	t.Parallel()

	be.True(t, requestSemanticTokens(t, "puts 1\n") == nil)
	be.True(t, requestSemanticTokens(t, "x = (1") == nil)
}
