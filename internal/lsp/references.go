package lsp

import (
	"context"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/scope"
)

func (s *server) references(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.ReferenceParams
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
	var locations []protocol.Location
	for _, o := range t.Occurrences(id) {
		if o.Access == scope.Declare && !params.Context.IncludeDeclaration {
			continue
		}
		locations = append(locations, protocol.Location{URI: f.uri, Range: f.span(o.Start, o.End)})
	}
	return locations, nil
}
