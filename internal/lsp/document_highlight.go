package lsp

import (
	"context"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/scope"
)

func (s *server) documentHighlight(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.DocumentHighlightParams
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

	id, ok := t.BindingAt(f.offset(params.Position))
	if !ok {
		return nil, nil
	}
	occs := t.Occurrences(id)
	highlights := make([]protocol.DocumentHighlight, len(occs))
	for i, o := range occs {
		kind := protocol.Read
		if o.Access != scope.Read {
			kind = protocol.Write
		}
		highlights[i] = protocol.DocumentHighlight{Range: f.span(o.Start, o.End), Kind: kind}
	}
	return highlights, nil
}
