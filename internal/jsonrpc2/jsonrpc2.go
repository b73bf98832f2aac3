// Package jsonrpc2 implements JSON-RPC 2.0 over the framed byte stream
// used by language servers.
//
// Notifications are handled in order on the connection's read loop.
// Requests are handled on their own goroutines, each with a context that
// is cancelled by a matching $/cancelRequest notification or when the
// connection closes.
package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Error codes from JSON-RPC 2.0 and the Language Server Protocol.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeRequestCancelled = -32800
	CodeContentModified  = -32801
	CodeRequestFailed    = -32803
)

// Error is the error member of a reply.
type Error struct {
	Code    int64            `json:"code"`
	Message string           `json:"message"`
	Data    *json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc2: %s (code %d)", e.Message, e.Code)
}

// ErrClosed is returned by Call when the connection closes before a
// reply arrives.
var ErrClosed = errors.New("jsonrpc2: connection is closed")

// Handler handles incoming calls and notifications.
type Handler interface {
	Handle(ctx context.Context, conn *Conn, req *Request)
}

// HandlerFunc adapts a function to Handler. The Conn replies with the
// returned result or error. A *Error is sent as is; the context's error
// after a cancellation becomes CodeRequestCancelled; anything else is
// CodeInternalError.
type HandlerFunc func(ctx context.Context, conn *Conn, req *Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, conn *Conn, req *Request) {
	result, err := f(ctx, conn, req)
	if req.Notif {
		if err != nil {
			conn.logger.Warn("notification failed", "method", req.Method, "error", err)
		}
		return
	}
	conn.reply(ctx, req.ID, result, err)
}

// A Conn is one end of a JSON-RPC connection. Either end may issue calls.
type Conn struct {
	s      *stream
	h      Handler
	logger *slog.Logger

	mu       sync.Mutex
	lastID   int64
	calls    map[ID]chan *message
	handling map[ID]context.CancelFunc

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// An Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger for malformed messages and failed
// notifications. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// NewConn starts reading messages from rwc and passes calls and
// notifications to h until the stream ends or ctx is done.
func NewConn(ctx context.Context, rwc io.ReadWriteCloser, h Handler, opts ...Option) *Conn {
	c := &Conn{
		s:        newStream(rwc),
		h:        h,
		logger:   slog.New(slog.DiscardHandler),
		calls:    make(map[ID]chan *message),
		handling: make(map[ID]context.CancelFunc),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run(ctx)
	return c
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	c.markDone()
	return c.s.close()
}

func (c *Conn) markDone() { c.closeOnce.Do(func() { close(c.done) }) }

// DisconnectNotify returns a channel that is closed when the connection
// ends, by Close or by the peer.
func (c *Conn) DisconnectNotify() <-chan struct{} { return c.done }

// Wait blocks until every request handler has returned.
func (c *Conn) Wait() { c.wg.Wait() }

// Call sends a request and decodes the reply into result, which may be
// nil. If ctx is done first, Call sends $/cancelRequest and returns the
// context's error.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	c.lastID++
	id := Int64ID(c.lastID)
	ch := make(chan *message, 1)
	c.calls[id] = ch
	c.mu.Unlock()

	msg, err := newCall(&id, method, params)
	if err == nil {
		err = c.s.write(msg)
	}
	if err != nil {
		c.forget(id)
		return err
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		_ = c.Notify(context.WithoutCancel(ctx), "$/cancelRequest", CancelParams{ID: id})
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || resp.Result == nil {
			return nil
		}
		return json.Unmarshal(*resp.Result, result)
	}
}

func (c *Conn) forget(id ID) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

// Notify sends a notification.
func (c *Conn) Notify(_ context.Context, method string, params any) error {
	msg, err := newCall(nil, method, params)
	if err != nil {
		return err
	}
	return c.s.write(msg)
}

func (c *Conn) reply(ctx context.Context, id ID, result any, err error) {
	resp := &message{JSONRPC: "2.0", ID: &id}
	if err == nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			err = merr
		} else {
			r := json.RawMessage(raw)
			resp.Result = &r
		}
	}
	if err != nil {
		var rpcErr *Error
		switch {
		case errors.As(err, &rpcErr):
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			rpcErr = &Error{Code: CodeRequestCancelled, Message: "request cancelled"}
		default:
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		resp.Error = rpcErr
	}
	if err := c.s.write(resp); err != nil {
		c.logger.Debug("reply not sent", "id", id, "error", err)
	}
}

// run is the read loop.
func (c *Conn) run(ctx context.Context) {
	ctx, cancelAll := context.WithCancel(ctx)
	defer func() {
		cancelAll()
		c.markDone()
		c.mu.Lock()
		for id, ch := range c.calls {
			close(ch)
			delete(c.calls, id)
		}
		c.mu.Unlock()
	}()

	for {
		data, err := c.s.read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("read loop stopped", "error", err)
			}
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		if msg.isCall() {
			c.dispatch(ctx, msg.request())
			continue
		}
		if msg.ID == nil {
			c.logger.Warn("dropping reply without id")
			continue
		}
		c.mu.Lock()
		ch := c.calls[*msg.ID]
		delete(c.calls, *msg.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- &msg
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, req *Request) {
	if req.Notif {
		if req.Method == "$/cancelRequest" {
			c.cancel(req)
			return
		}
		c.h.Handle(ctx, c, req)
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.handling[req.ID] = cancel
	c.mu.Unlock()

	c.wg.Go(func() {
		defer func() {
			c.mu.Lock()
			delete(c.handling, req.ID)
			c.mu.Unlock()
			cancel()
		}()
		c.h.Handle(reqCtx, c, req)
	})
}

func (c *Conn) cancel(req *Request) {
	if req.Params == nil {
		return
	}
	var params CancelParams
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		c.logger.Warn("bad $/cancelRequest", "error", err)
		return
	}
	c.mu.Lock()
	cancel := c.handling[params.ID]
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
