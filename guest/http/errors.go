package http

import (
	"errors"
	"fmt"
)

// ErrorCode is the status returned by every host call.
type ErrorCode uint32

const (
	OK ErrorCode = iota
	InvalidHandle
	MemoryNotFound
	MemoryAccessError
	BufferTooSmall
	HeaderNotFound
	UTF8Error
	DestinationNotAllowed
	InvalidMethod
	InvalidEncoding
	InvalidURL
	RequestError
	RuntimeError
	TooManySessions
)

var codeText = [...]string{
	"ok", "invalid handle", "memory not found", "memory access error",
	"buffer too small", "header not found", "invalid utf-8",
	"destination not allowed", "invalid method", "invalid encoding",
	"invalid url", "request error", "runtime error", "too many sessions",
}

func (c ErrorCode) Error() string {
	if int(c) < len(codeText) {
		return "wasi_experimental_http: " + codeText[c]
	}
	return fmt.Sprintf("wasi_experimental_http: code %d", uint32(c))
}

// ErrUnsupported is returned outside a wasip1 guest.
var ErrUnsupported = errors.New("wasi_experimental_http: not running as a wasip1 guest")

func check(code uint32) error {
	if ErrorCode(code) == OK {
		return nil
	}
	return ErrorCode(code)
}
