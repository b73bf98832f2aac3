package lsp

import (
	"context"

	"github.com/stefanvanburen/rbrename/internal/check"
	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
)

// publishDiagnostics computes and pushes diagnostics for the given file.
// Nothing is sent if the file changes first.
func (s *server) publishDiagnostics(conn *jsonrpc2.Conn, f *file) {
	diagnostics, err := computeDiagnostics(f.ctx, f)
	if err != nil {
		s.logger.Debug("diagnostics abandoned", "uri", f.uri, "version", f.version, "error", err)
		return
	}
	err = conn.Notify(f.ctx, "textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         f.uri,
		Version:     f.version,
		Diagnostics: diagnostics,
	})
	if err != nil {
		s.logger.Warn("publish diagnostics", "uri", f.uri, "error", err)
	}
}

// diagnosticFull handles the pull diagnostic request (textDocument/diagnostic).
func (s *server) diagnosticFull(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params protocol.DocumentDiagnosticParams
	if err := unmarshalParams(req, &params); err != nil {
		return nil, err
	}

	report := protocol.FullDocumentDiagnosticReport{
		Kind:  protocol.DiagnosticFull,
		Items: []protocol.Diagnostic{},
	}
	f := s.lookup(params.TextDocument.URI)
	if f == nil {
		return report, nil
	}
	items, err := computeDiagnostics(ctx, f)
	if err != nil {
		return nil, f.failed(err)
	}
	report.Items = items
	return report, nil
}

// computeDiagnostics checks f, returning LSP diagnostics.
func computeDiagnostics(ctx context.Context, f *file) ([]protocol.Diagnostic, error) {
	var problems []check.Problem
	_, t, err := f.analyze(ctx)
	if err == nil {
		problems = check.Resolved(t)
	} else if problems, err = check.FromError(err); err != nil {
		return nil, err
	}

	diagnostics := make([]protocol.Diagnostic, len(problems))
	for i, p := range problems {
		severity := protocol.SeverityWarning
		if p.Severity == check.Error {
			severity = protocol.SeverityError
		}
		diagnostics[i] = protocol.Diagnostic{
			Range:    f.span(p.Start, p.End),
			Severity: severity,
			Source:   serverName,
			Message:  p.Message,
		}
	}
	return diagnostics, nil
}
