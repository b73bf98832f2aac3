package lsp

import (
	"context"
	"fmt"
	"strings"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/scope"
)

func (s *server) hover(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.HoverParams
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
	return computeHover(f, t, params.Position), nil
}

func computeHover(f *file, t *scope.Table, pos protocol.Position) *protocol.Hover {
	o, ok := t.OccurrenceAt(f.offset(pos))
	if !ok {
		return nil
	}
	b := t.Binding(o.Binding)
	sc := t.Scope(b.Scope)

	var sb strings.Builder
	fmt.Fprintf(&sb, "```ruby\n%s\n```\n\n", b.Name)
	fmt.Fprintf(&sb, "%s, declared in %s scope on line %d", originDetail(b.Origin), sc.Kind, b.Start.Line)
	fmt.Fprintf(&sb, " (%s, %s)", plural(t.Reads(b.ID), "read"), plural(t.Writes(b.ID), "write"))

	r := f.span(o.Start, o.End)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: sb.String()},
		Range:    &r,
	}
}

func originDetail(o scope.Origin) string {
	switch o {
	case scope.MethodParameter:
		return "method parameter"
	case scope.BlockParameter:
		return "block parameter"
	case scope.BranchLocal:
		return "branch-local variable"
	}
	return "local variable"
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
