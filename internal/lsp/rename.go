package lsp

import (
	"context"
	"strings"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/metrics"
	"github.com/stefanvanburen/rbrename/internal/rename"
)

func (s *server) rename(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params protocol.RenameParams
	if err := unmarshalParams(req, &params); err != nil {
		return nil, err
	}

	f := s.lookup(params.TextDocument.URI)
	if f == nil {
		return nil, nil
	}

	edit, warnings, err := computeRename(ctx, f, params, s.opts)
	if err != nil {
		return nil, f.failed(err)
	}
	if len(warnings) > 0 {
		metrics.RenameConflictsTotal.Add(float64(len(warnings)))
		msg := make([]string, len(warnings))
		for i, w := range warnings {
			msg[i] = w.Error()
		}
		err := conn.Notify(ctx, "window/showMessage", protocol.ShowMessageParams{
			Type:    protocol.WarningMessage,
			Message: "rename: " + strings.Join(msg, "; "),
		})
		if err != nil {
			s.logger.Warn("show rename warnings", "error", err)
		}
	}
	return edit, nil
}

func computeRename(ctx context.Context, f *file, params protocol.RenameParams, opts rename.Options) (*protocol.WorkspaceEdit, []*rename.ConflictWarning, error) {
	_, t, err := f.analyze(ctx)
	if err != nil {
		return nil, nil, err
	}

	ctx, stop := f.bind(ctx)
	defer stop()
	res, err := rename.ComputeRenameIn(ctx, t, f.offset(params.Position), params.NewName, opts)
	if err != nil {
		return nil, nil, err
	}

	edits := make([]protocol.TextEdit, len(res.Edits))
	for i, e := range res.Edits {
		edits[i] = protocol.TextEdit{Range: f.span(e.Start, e.End), NewText: e.NewText}
	}
	return &protocol.WorkspaceEdit{
		Changes: map[protocol.DocumentURI][]protocol.TextEdit{f.uri: edits},
	}, res.Warnings, nil
}

// prepareRename returns the span and name of the variable under the
// cursor, or null when there is none.
func (s *server) prepareRename(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.PrepareRenameParams
	if err := unmarshalParams(req, &params); err != nil {
		return nil, err
	}

	f := s.lookup(params.TextDocument.URI)
	if f == nil {
		return nil, nil
	}
	t, err := f.resolved(ctx)
	if t == nil {
		return nil, err
	}

	o, ok := t.OccurrenceAt(f.offset(params.Position))
	if !ok {
		return nil, nil
	}
	return &protocol.PrepareRenameResult{
		Range:       f.span(o.Start, o.End),
		Placeholder: t.Binding(o.Binding).Name,
	}, nil
}
