package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// An ID identifies a request. Peers may use numbers or strings; an ID
// keeps the JSON spelling it arrived with so that replies echo it exactly.
type ID struct {
	raw string
}

// Int64ID returns a numeric request ID.
func Int64ID(n int64) ID { return ID{raw: strconv.FormatInt(n, 10)} }

// StringID returns a string request ID.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: string(b)}
}

func (id ID) String() string { return id.raw }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == "" {
		return []byte("null"), nil
	}
	return []byte(id.raw), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request id %s", data)
	}
	*id = Int64ID(n)
	return nil
}

// A Request is an incoming call or notification.
type Request struct {
	Method string
	Params *json.RawMessage // nil if absent or null
	ID     ID
	Notif  bool // no ID, so no reply is sent
}

// message is the union of every JSON-RPC 2.0 message shape. A message
// with a method is a call or notification; one without is a reply.
type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *ID              `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  *json.RawMessage `json:"params,omitempty"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

func (m *message) isCall() bool { return m.Method != "" }

func (m *message) request() *Request {
	req := &Request{Method: m.Method, Params: m.Params, Notif: m.ID == nil}
	if m.ID != nil {
		req.ID = *m.ID
	}
	return req
}

func newCall(id *ID, method string, params any) (*message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s params: %w", method, err)
	}
	p := json.RawMessage(raw)
	return &message{JSONRPC: "2.0", ID: id, Method: method, Params: &p}, nil
}

// CancelParams are the params of $/cancelRequest.
type CancelParams struct {
	ID ID `json:"id"`
}
