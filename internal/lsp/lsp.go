// Package lsp implements a language server for renaming and navigating
// Ruby local variables. Serve speaks the protocol on stdin and stdout.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/metrics"
	"github.com/stefanvanburen/rbrename/internal/rename"
)

const serverName = "rbrename"

// Options configure a server.
type Options struct {
	// Logger receives request logs. Nil discards them.
	Logger *slog.Logger
	Rename rename.Options
}

// Serve runs a server on the process's standard streams until the
// client disconnects or ctx is done.
func Serve(ctx context.Context, opts Options) error {
	return ServeStream(ctx, stdio{}, opts)
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return os.Stdout.Close() }

// ServeStream runs a server on rwc. Open documents are released once
// every in-flight request has returned.
func ServeStream(ctx context.Context, rwc io.ReadWriteCloser, opts Options) error {
	s := newServer(opts)
	conn := jsonrpc2.NewConn(ctx, rwc, jsonrpc2.HandlerFunc(s.handle), jsonrpc2.WithLogger(s.logger))
	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
		_ = conn.Close()
	}
	conn.Wait()
	s.closeAll()
	return nil
}

// server is the state shared by all requests of one connection.
type server struct {
	logger *slog.Logger
	opts   rename.Options

	mu    sync.Mutex
	files map[protocol.DocumentURI]*file
}

func newServer(opts Options) *server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &server{
		logger: logger,
		opts:   opts.Rename,
		files:  make(map[protocol.DocumentURI]*file),
	}
}

func (s *server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	start := time.Now()
	result, err := s.dispatch(ctx, conn, req)
	if req.Notif {
		return result, err
	}

	elapsed := time.Since(start)
	outcome := metrics.OK
	var rpcErr *jsonrpc2.Error
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled),
		errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc2.CodeContentModified:
		outcome = metrics.Cancelled
	default:
		outcome = metrics.Failed
	}
	metrics.ObserveRequest(req.Method, outcome, elapsed)
	if outcome == metrics.Failed {
		s.logger.Warn("request failed", "method", req.Method, "id", req.ID, "duration", elapsed, "error", err)
	} else {
		s.logger.Debug("request", "method", req.Method, "id", req.ID, "duration", elapsed, "outcome", outcome)
	}
	return result, err
}

func (s *server) dispatch(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "initialize":
		return s.initialize(req)
	case "initialized":
		return nil, nil
	case "shutdown":
		return nil, nil
	case "exit":
		return nil, conn.Close()
	case "textDocument/didOpen":
		return nil, s.didOpen(ctx, conn, req)
	case "textDocument/didChange":
		return nil, s.didChange(ctx, conn, req)
	case "textDocument/didClose":
		return nil, s.didClose(ctx, conn, req)
	case "textDocument/rename":
		return s.rename(ctx, conn, req)
	case "textDocument/prepareRename":
		return s.prepareRename(ctx, req)
	case "textDocument/references":
		return s.references(ctx, req)
	case "textDocument/documentHighlight":
		return s.documentHighlight(ctx, req)
	case "textDocument/hover":
		return s.hover(ctx, req)
	case "textDocument/completion":
		return s.completion(ctx, req)
	case "textDocument/semanticTokens/full":
		return s.semanticTokensFull(ctx, req)
	case "textDocument/diagnostic":
		return s.diagnosticFull(ctx, req)
	default:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("method not supported: %s", req.Method),
		}
	}
}

// unmarshalParams decodes the request's params into v.
func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil || string(*req.Params) == "null" {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func (s *server) initialize(req *jsonrpc2.Request) (any, error) {
	if req.Params != nil {
		var params protocol.InitializeParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		if params.ClientInfo != nil {
			s.logger.Info("initialize", "client", params.ClientInfo.Name, "version", params.ClientInfo.Version)
		}
	}
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.Incremental,
			},
			HoverProvider:             true,
			CompletionProvider:        &protocol.CompletionOptions{},
			ReferencesProvider:        true,
			DocumentHighlightProvider: true,
			RenameProvider:            &protocol.RenameOptions{PrepareProvider: true},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     semanticTypeLegend,
					TokenModifiers: semanticModifierLegend,
				},
				Full: true,
			},
			DiagnosticProvider: &protocol.DiagnosticOptions{},
		},
		ServerInfo: &protocol.ServerInfo{
			Name: serverName,
		},
	}, nil
}

func (s *server) didOpen(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := unmarshalParams(req, &params); err != nil {
		return err
	}

	f := newFile(ctx, params.TextDocument.URI, params.TextDocument.Version, params.TextDocument.Text)
	s.mu.Lock()
	if old := s.files[f.uri]; old != nil {
		old.cancel()
	} else {
		metrics.OpenDocuments.Inc()
	}
	s.files[f.uri] = f
	s.mu.Unlock()

	s.publishDiagnostics(conn, f)
	return nil
}

func (s *server) didChange(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := unmarshalParams(req, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI

	s.mu.Lock()
	old := s.files[uri]
	if old == nil {
		s.mu.Unlock()
		return fmt.Errorf("received update for file that was not open: %q", uri)
	}
	content := old.content
	for _, change := range params.ContentChanges {
		content = applyChange(content, change)
	}
	old.cancel()
	f := newFile(ctx, uri, params.TextDocument.Version, content)
	s.files[uri] = f
	s.mu.Unlock()

	s.publishDiagnostics(conn, f)
	return nil
}

func (s *server) didClose(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := unmarshalParams(req, &params); err != nil {
		return err
	}

	s.mu.Lock()
	f := s.files[params.TextDocument.URI]
	delete(s.files, params.TextDocument.URI)
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	f.cancel()
	metrics.OpenDocuments.Dec()

	// Clear the closed document's diagnostics.
	return conn.Notify(ctx, "textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         f.uri,
		Diagnostics: []protocol.Diagnostic{},
	})
}

// lookup returns the current version of an open document, or nil.
func (s *server) lookup(uri protocol.DocumentURI) *file {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[uri]
}

func (s *server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, f := range s.files {
		f.cancel()
		metrics.OpenDocuments.Dec()
		delete(s.files, uri)
	}
}
