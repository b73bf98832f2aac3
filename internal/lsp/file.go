package lsp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
	"github.com/stefanvanburen/rbrename/internal/lsp/protocol"
	"github.com/stefanvanburen/rbrename/internal/metrics"
	"github.com/stefanvanburen/rbrename/internal/scope"
	"github.com/stefanvanburen/rbrename/internal/syntax"
)

// file is one version of an open document. Each change replaces it with
// a new file and cancels the old one's context, so work still running
// against stale content stops and reports ContentModified.
type file struct {
	uri     protocol.DocumentURI
	version int32
	content string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	ast   *syntax.File
	table *scope.Table
}

func newFile(ctx context.Context, uri protocol.DocumentURI, version int32, content string) *file {
	ctx, cancel := context.WithCancel(ctx)
	return &file{uri: uri, version: version, content: content, ctx: ctx, cancel: cancel}
}

// bind returns a context that is done when ctx is done or the file is
// replaced.
func (f *file) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.ctx, cancel)
	if f.ctx.Err() != nil {
		cancel()
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

// analyze parses and resolves the file. Successful results are cached.
func (f *file) analyze(ctx context.Context) (*syntax.File, *scope.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.table != nil {
		return f.ast, f.table, nil
	}

	ctx, stop := f.bind(ctx)
	defer stop()

	start := time.Now()
	ast, err := syntax.Parse(f.uri.Path(), []byte(f.content))
	if err != nil {
		return nil, nil, err
	}
	t, err := scope.Resolve(ctx, ast)
	if err != nil {
		return nil, nil, err
	}
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	f.ast, f.table = ast, t
	return ast, t, nil
}

// resolved returns f's binding table, or nil if f does not parse. Other
// errors are converted by failed.
func (f *file) resolved(ctx context.Context) (*scope.Table, error) {
	_, t, err := f.analyze(ctx)
	var (
		parseErr  *syntax.Error
		structErr *scope.StructuralError
	)
	switch {
	case err == nil:
		return t, nil
	case errors.As(err, &parseErr), errors.As(err, &structErr):
		return nil, nil
	}
	return nil, f.failed(err)
}

// failed converts an error from work on f into the error to answer with.
func (f *file) failed(err error) error {
	var rpcErr *jsonrpc2.Error
	switch {
	case errors.As(err, &rpcErr):
		return err
	case errors.Is(err, context.Canceled) && f.ctx.Err() != nil:
		return &jsonrpc2.Error{Code: jsonrpc2.CodeContentModified, Message: "document changed"}
	case errors.Is(err, context.Canceled):
		return err
	}
	return &jsonrpc2.Error{Code: jsonrpc2.CodeRequestFailed, Message: err.Error()}
}

// offset converts an LSP position to a byte offset. Positions past the
// end of a line clamp to the line's end.
func (f *file) offset(pos protocol.Position) int {
	return lineColToByteOffset(f.content, pos.Line, pos.Character)
}

func lineColToByteOffset(text string, line, col uint32) int {
	off := 0
	for range line {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return len(text)
		}
		off += i + 1
	}
	var units uint32
	for i, r := range text[off:] {
		if r == '\n' || units >= col {
			return off + i
		}
		units += uint32(utf16.RuneLen(r))
	}
	return len(text)
}

// position converts a syntax position into an LSP position.
func (f *file) position(p syntax.Position) protocol.Position {
	if !p.IsValid() {
		return protocol.Position{}
	}
	lineStart := p.Offset - int(p.Col-1)
	return protocol.Position{Line: uint32(p.Line - 1), Character: utf16Len(f.content[lineStart:p.Offset])}
}

func (f *file) span(start, end syntax.Position) protocol.Range {
	return protocol.Range{Start: f.position(start), End: f.position(end)}
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) uint32 {
	n := uint32(0)
	for _, r := range s {
		n += uint32(utf16.RuneLen(r))
	}
	return n
}

// applyChange applies one content change. A change without a range
// replaces the whole document.
func applyChange(content string, change protocol.TextDocumentContentChangeEvent) string {
	if change.Range == nil {
		return change.Text
	}
	start := lineColToByteOffset(content, change.Range.Start.Line, change.Range.Start.Character)
	end := max(start, lineColToByteOffset(content, change.Range.End.Line, change.Range.End.Character))
	return content[:start] + change.Text + content[end:]
}
