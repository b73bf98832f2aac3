package jsonrpc2

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"sync"
)

// A stream carries messages framed by a Content-Length header, as the
// Language Server Protocol base protocol specifies.
type stream struct {
	in  *textproto.Reader
	raw *bufio.Reader

	mu  sync.Mutex // serializes writes
	out io.WriteCloser
}

func newStream(rwc io.ReadWriteCloser) *stream {
	r := bufio.NewReader(rwc)
	return &stream{in: textproto.NewReader(r), raw: r, out: rwc}
}

// read returns the body of the next message.
func (s *stream) read() ([]byte, error) {
	header, err := s.in.ReadMIMEHeader()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	v := header.Get("Content-Length")
	if v == "" {
		return nil, errors.New("missing Content-Length header")
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("bad Content-Length %q", v)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(s.raw, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *stream) write(m *message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = s.out.Write(data)
	return err
}

func (s *stream) close() error { return s.out.Close() }
