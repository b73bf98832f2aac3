package jsonrpc2_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/stefanvanburen/rbrename/internal/jsonrpc2"
)

// testServer records notifications and answers a few methods.
type testServer struct {
	mu    sync.Mutex
	notes []string

	started   chan struct{}
	cancelled chan struct{}
}

func (s *testServer) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "note":
		var text string
		if err := json.Unmarshal(*req.Params, &text); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.notes = append(s.notes, text)
		s.mu.Unlock()
		return nil, nil
	case "notes":
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.notes, nil
	case "echo":
		return req.Params, nil
	case "invalid":
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "bad params"}
	case "fail":
		return nil, errors.New("boom")
	case "block":
		close(s.started)
		<-ctx.Done()
		close(s.cancelled)
		return nil, ctx.Err()
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: req.Method}
}

func pipe(t *testing.T) (client *jsonrpc2.Conn, server *jsonrpc2.Conn, s *testServer) {
	t.Helper()
	ctx := t.Context()
	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() {
		_ = serverEnd.Close()
		_ = clientEnd.Close()
	})

	s = &testServer{started: make(chan struct{}), cancelled: make(chan struct{})}
	server = jsonrpc2.NewConn(ctx, serverEnd, jsonrpc2.HandlerFunc(s.handle))
	noop := jsonrpc2.HandlerFunc(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
		return nil, nil
	})
	client = jsonrpc2.NewConn(ctx, clientEnd, noop)
	return client, server, s
}

func TestCall(t *testing.T) {
	t.Parallel()

	client, _, _ := pipe(t)
	var got map[string]int
	err := client.Call(t.Context(), "echo", map[string]int{"a": 1}, &got)
	be.Err(t, err, nil)
	be.Equal(t, got, map[string]int{"a": 1})
}

func TestNotificationsAreOrdered(t *testing.T) {
	t.Parallel()

	client, _, _ := pipe(t)
	for i := range 20 {
		be.Err(t, client.Notify(t.Context(), "note", fmt.Sprint(i)), nil)
	}

	// Notifications are handled before any later message is read.
	var notes []string
	be.Err(t, client.Call(t.Context(), "notes", nil, &notes), nil)
	be.Equal(t, len(notes), 20)
	for i, n := range notes {
		be.Equal(t, n, fmt.Sprint(i))
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	client, _, _ := pipe(t)
	tests := []struct {
		method string
		code   int64
		msg    string
	}{
		{"invalid", jsonrpc2.CodeInvalidParams, "bad params"},
		{"fail", jsonrpc2.CodeInternalError, "boom"},
		{"nope", jsonrpc2.CodeMethodNotFound, "nope"},
	}
	for _, test := range tests {
		err := client.Call(t.Context(), test.method, nil, nil)
		var rpcErr *jsonrpc2.Error
		be.True(t, errors.As(err, &rpcErr))
		be.Equal(t, rpcErr.Code, test.code)
		be.Equal(t, rpcErr.Message, test.msg)
	}
}

func TestCancelRequest(t *testing.T) {
	t.Parallel()

	client, _, s := pipe(t)
	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		<-s.started
		cancel()
	}()

	err := client.Call(ctx, "block", nil, nil)
	be.Err(t, err, context.Canceled)

	select {
	case <-s.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not cancelled")
	}
}

func TestMalformedMessageIsSkipped(t *testing.T) {
	t.Parallel()

	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() {
		_ = serverEnd.Close()
		_ = clientEnd.Close()
	})
	s := &testServer{}
	jsonrpc2.NewConn(t.Context(), serverEnd, jsonrpc2.HandlerFunc(s.handle))

	_, err := io.WriteString(clientEnd, "Content-Length: 3\r\n\r\nxyz")
	be.Err(t, err, nil)

	client := jsonrpc2.NewConn(t.Context(), clientEnd, jsonrpc2.HandlerFunc(s.handle))
	var got string
	be.Err(t, client.Call(t.Context(), "echo", "still here", &got), nil)
	be.Equal(t, got, "still here")
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	client, server, _ := pipe(t)
	be.Err(t, client.Close(), nil)

	select {
	case <-server.DisconnectNotify():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not notice the disconnect")
	}
	server.Wait()

	err := client.Call(t.Context(), "echo", 1, nil)
	be.True(t, err != nil)
}

func TestStringID(t *testing.T) {
	t.Parallel()

	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() {
		_ = serverEnd.Close()
		_ = clientEnd.Close()
	})
	s := &testServer{}
	jsonrpc2.NewConn(t.Context(), serverEnd, jsonrpc2.HandlerFunc(s.handle))

	body := `{"jsonrpc":"2.0","id":"abc","method":"echo","params":[1]}`
	go func() {
		_, _ = fmt.Fprintf(clientEnd, "Content-Length: %d\r\n\r\n%s", len(body), body)
	}()

	r := bufio.NewReader(clientEnd)
	header, err := textproto.NewReader(r).ReadMIMEHeader()
	be.Err(t, err, nil)
	n, err := strconv.Atoi(header.Get("Content-Length"))
	be.Err(t, err, nil)
	reply := make([]byte, n)
	_, err = io.ReadFull(r, reply)
	be.Err(t, err, nil)
	be.Equal(t, string(reply), `{"jsonrpc":"2.0","id":"abc","result":[1]}`)
}
