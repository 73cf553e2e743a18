package hostfuncs

import (
	"context"
)

// Host function names exposed over the JSON ABI.
const (
	FuncHTTPSend          = "http_send"
	FuncHTTPHeaderGet     = "http_header_get"
	FuncHTTPHeadersGetAll = "http_headers_get_all"
	FuncHTTPBodyRead      = "http_body_read"
	FuncHTTPClose         = "http_close"
	FuncSSRFCheck         = "ssrf_check"
)

// HostFuncBundle is a set of related host functions registered together.
type HostFuncBundle interface {
	Handlers() map[string]ByteHandler
}

type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// BridgeBundle exposes the bridge operations: http_send, http_header_get,
// http_headers_get_all, http_body_read and http_close.
func BridgeBundle(b *Bridge) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncHTTPSend:          NewJSONHandler(b.HandleSend),
			FuncHTTPHeaderGet:     NewJSONHandler(b.HandleHeaderGet),
			FuncHTTPHeadersGetAll: NewJSONHandler(b.HandleHeadersGetAll),
			FuncHTTPBodyRead:      NewJSONHandler(b.HandleBodyRead),
			FuncHTTPClose:         NewJSONHandler(b.HandleClose),
		},
	}
}

// SSRFCheckRequest asks whether an address may be contacted.
type SSRFCheckRequest struct {
	// Address is a host or host:port.
	Address string `json:"address"`
}

// SSRFCheckResponse is the filter verdict.
type SSRFCheckResponse NetfilterResult

// NetfilterBundle exposes ssrf_check.
func NetfilterBundle(f *AddressFilter) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncSSRFCheck: NewJSONHandler(func(ctx context.Context, req SSRFCheckRequest) SSRFCheckResponse {
				return SSRFCheckResponse(f.Check(ctx, req.Address))
			}),
		},
	}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithHandler registers a typed host function with JSON encoding.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addHandler(name, NewJSONHandler(fn)); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}
