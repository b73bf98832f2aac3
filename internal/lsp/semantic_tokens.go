package lsp

import (
	"cmp"
	"context"
	"slices"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/scope"
)

// Semantic token types - indices into semanticTypeLegend.
const (
	semanticTypeVariable = iota
	semanticTypeParameter
)

// Semantic token modifiers - encoded as a bitset.
const (
	semanticModifierDeclaration = 1 << iota
	semanticModifierModification
)

var (
	semanticTypeLegend     = []string{"variable", "parameter"}
	semanticModifierLegend = []string{"declaration", "modification"}
)

// tokenInfo holds information about a single semantic token before encoding.
type tokenInfo struct {
	offset  int
	line    uint32
	col     uint32
	length  uint32
	semType uint32
	semMod  uint32
}

func (s *server) semanticTokensFull(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.SemanticTokensParams
	if err := unmarshalParams(req, &params); err != nil {
		return nil, err
	}

	f := s.lookup(params.TextDocument.URI)
	if f == nil || f.content == "" {
		return nil, nil
	}
	t, err := f.resolved(ctx)
	if t == nil {
		return nil, err
	}
	return computeSemanticTokens(f, t), nil
}

// computeSemanticTokens classifies every local variable occurrence.
func computeSemanticTokens(f *file, t *scope.Table) *protocol.SemanticTokens {
	tokens := make([]tokenInfo, 0, len(t.Occs))
	for _, o := range t.Occs {
		var semType uint32 = semanticTypeVariable
		switch t.Binding(o.Binding).Origin {
		case scope.MethodParameter, scope.BlockParameter:
			semType = semanticTypeParameter
		}
		var semMod uint32
		switch o.Access {
		case scope.Declare:
			semMod = semanticModifierDeclaration
		case scope.Write:
			semMod = semanticModifierModification
		}
		start := f.position(o.Start)
		tokens = append(tokens, tokenInfo{
			offset:  o.Start.Offset,
			line:    start.Line,
			col:     start.Character,
			length:  utf16Len(f.content[o.Start.Offset:o.End.Offset]),
			semType: semType,
			semMod:  semMod,
		})
	}

	// Sort tokens by position
	slices.SortFunc(tokens, func(a, b tokenInfo) int { return cmp.Compare(a.offset, b.offset) })

	// Delta-encode
	var (
		encoded           []uint32
		prevLine, prevCol uint32
	)
	for _, tok := range tokens {
		deltaCol := tok.col
		if prevLine == tok.line {
			deltaCol -= prevCol
		}
		encoded = append(encoded, tok.line-prevLine, deltaCol, tok.length, tok.semType, tok.semMod)
		prevLine = tok.line
		prevCol = tok.col
	}
	if len(encoded) == 0 {
		return nil
	}
	return &protocol.SemanticTokens{Data: encoded}
}
