package hostfuncs

import (
	"context"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
)

// SendRequest is the JSON form of http_send.
type SendRequest struct {
	// Headers are sent in order, duplicates included.
	Headers entities.Headers `json:"headers,omitempty"`

	// Method is the HTTP method. Empty means GET.
	Method string `json:"method,omitempty"`

	// URL is the absolute http or https target.
	URL string `json:"url"`

	// Body is the request payload.
	Body []byte `json:"body,omitempty"`
}

// SendResponse is the result of http_send. On success Error is nil and the
// body is carried inline; the handle stays open until http_close.
type SendResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`

	// Headers are in received order with duplicates.
	Headers entities.Headers `json:"headers,omitempty"`

	Body []byte `json:"body,omitempty"`

	// LatencyMs is the time spent on the network exchange.
	LatencyMs int64 `json:"latency_ms,omitempty"`

	Handle uint32 `json:"handle,omitempty"`

	Status uint16 `json:"status,omitempty"`

	BodyTruncated bool `json:"body_truncated,omitempty"`
}

// HandleRequest addresses an open response.
type HandleRequest struct {
	Handle uint32 `json:"handle"`
}

// HeaderGetRequest is the JSON form of http_header_get.
type HeaderGetRequest struct {
	Name   string `json:"name"`
	Handle uint32 `json:"handle"`
}

// HeaderGetResponse is the result of http_header_get.
type HeaderGetResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
	Value string         `json:"value,omitempty"`
	Found bool           `json:"found"`
}

// HeadersGetAllResponse is the result of http_headers_get_all.
type HeadersGetAllResponse struct {
	Error   *ErrorResponse   `json:"error,omitempty"`
	Headers entities.Headers `json:"headers"`
}

// BodyReadRequest is the JSON form of http_body_read.
type BodyReadRequest struct {
	Handle uint32 `json:"handle"`

	// MaxBytes bounds the chunk; zero returns the remaining body.
	MaxBytes int `json:"max_bytes,omitempty"`
}

// BodyReadResponse is the result of http_body_read. An empty Body means
// the response body is exhausted.
type BodyReadResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
	Body  []byte         `json:"body,omitempty"`
}

// CloseResponse is the result of http_close.
type CloseResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
}

func errorFor(err error) *ErrorResponse {
	resp := NewErrorResponse(err)
	return &resp
}

var errNoSession = NewInternalError("no session bound to this call")

// HandleSend implements http_send.
func (b *Bridge) HandleSend(ctx context.Context, req SendRequest) SendResponse {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return SendResponse{Error: &errNoSession}
	}
	resp, err := b.Send(ctx, s, entities.OutboundRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		Body:    req.Body,
	})
	if err != nil {
		return SendResponse{Error: errorFor(err)}
	}
	return SendResponse{
		Handle:        resp.Handle,
		Status:        resp.Status,
		Headers:       resp.Headers,
		Body:          resp.Body,
		BodyTruncated: resp.BodyTruncated,
		LatencyMs:     resp.Latency.Milliseconds(),
	}
}

// HandleHeaderGet implements http_header_get.
func (b *Bridge) HandleHeaderGet(ctx context.Context, req HeaderGetRequest) HeaderGetResponse {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return HeaderGetResponse{Error: &errNoSession}
	}
	value, found, err := b.HeaderGet(s, req.Handle, req.Name)
	if err != nil {
		return HeaderGetResponse{Error: errorFor(err)}
	}
	return HeaderGetResponse{Value: value, Found: found}
}

// HandleHeadersGetAll implements http_headers_get_all.
func (b *Bridge) HandleHeadersGetAll(ctx context.Context, req HandleRequest) HeadersGetAllResponse {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return HeadersGetAllResponse{Error: &errNoSession}
	}
	headers, err := b.HeaderGetAll(s, req.Handle)
	if err != nil {
		return HeadersGetAllResponse{Error: errorFor(err)}
	}
	if headers == nil {
		headers = entities.Headers{}
	}
	return HeadersGetAllResponse{Headers: headers}
}

// HandleBodyRead implements http_body_read.
func (b *Bridge) HandleBodyRead(ctx context.Context, req BodyReadRequest) BodyReadResponse {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return BodyReadResponse{Error: &errNoSession}
	}
	n := req.MaxBytes
	if n <= 0 {
		n = int(^uint(0) >> 1)
	}
	chunk, err := s.ReadBody(req.Handle, n)
	if err != nil {
		return BodyReadResponse{Error: errorFor(err)}
	}
	return BodyReadResponse{Body: chunk}
}

// HandleClose implements http_close.
func (b *Bridge) HandleClose(ctx context.Context, req HandleRequest) CloseResponse {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return CloseResponse{Error: &errNoSession}
	}
	if err := b.Close(s, req.Handle); err != nil {
		return CloseResponse{Error: errorFor(err)}
	}
	return CloseResponse{}
}
