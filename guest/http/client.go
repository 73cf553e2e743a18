package http

import (
	"errors"
	"strings"
)

// Header is an ordered list of name/value pairs.
type Header [][2]string

func (h Header) encode() string {
	var b strings.Builder
	for _, kv := range h {
		b.WriteString(kv[0])
		b.WriteByte(':')
		b.WriteString(kv[1])
		b.WriteByte('\n')
	}
	return b.String()
}

// Response is an open response handle. Close releases it.
type Response struct {
	StatusCode uint16
	handle     uint32
}

// Request sends one request. A destination outside the host's allow-list
// fails with DestinationNotAllowed before anything reaches the network.
func Request(method, url string, header Header, body []byte) (*Response, error) {
	status, handle, err := req(url, method, header.encode(), body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: status, handle: handle}, nil
}

// Header returns the first value of name, matched case-insensitively.
func (r *Response) Header(name string) (string, error) {
	buf := make([]byte, 256)
	for {
		n, err := headerGet(r.handle, name, buf)
		if errors.Is(err, BufferTooSmall) && n > len(buf) {
			buf = make([]byte, n)
			continue
		}
		if err != nil {
			return "", err
		}
		return string(buf[:n]), nil
	}
}

// Headers returns every header in "name:value\n" form.
func (r *Response) Headers() (string, error) {
	buf := make([]byte, 1024)
	for {
		n, err := headersGetAll(r.handle, buf)
		if errors.Is(err, BufferTooSmall) && n > len(buf) {
			buf = make([]byte, n)
			continue
		}
		if err != nil {
			return "", err
		}
		return string(buf[:n]), nil
	}
}

// Body reads the remaining body.
func (r *Response) Body() ([]byte, error) {
	var out []byte
	chunk := make([]byte, 16*1024)
	for {
		n, err := bodyRead(r.handle, chunk)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, chunk[:n]...)
	}
}

// Close releases the handle. Closing twice is harmless.
func (r *Response) Close() error {
	return closeHandle(r.handle)
}
