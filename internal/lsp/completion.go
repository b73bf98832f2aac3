package lsp

import (
	"context"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
)

// completion offers the local variables visible at the cursor.
func (s *server) completion(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.CompletionParams
	if err := unmarshalParams(req, &params); err != nil {
		return nil, err
	}

	list := &protocol.CompletionList{Items: []protocol.CompletionItem{}}
	f := s.lookup(params.TextDocument.URI)
	if f == nil {
		return list, nil
	}
	t, err := f.resolved(ctx)
	if t == nil {
		// Half-typed code often fails to parse.
		return list, err
	}

	for _, id := range t.VisibleAt(f.offset(params.Position)) {
		b := t.Binding(id)
		list.Items = append(list.Items, protocol.CompletionItem{
			Label:  b.Name,
			Kind:   protocol.VariableCompletion,
			Detail: originDetail(b.Origin),
		})
	}
	return list, nil
}
