package hostfuncs

import (
	"context"
	"encoding/json"
)

// HostFunc is a typed host function: a request decoded from the guest and a
// response encoded back to it.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler accepts a JSON payload and returns a JSON payload.
// This is the shape the wazero adapter dispatches to.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler.
// A payload that does not decode produces a VALIDATION_ERROR response
// rather than a Go error, so the guest can handle it.
//
//	send := hostfuncs.NewJSONHandler(func(ctx context.Context, req hostfuncs.SendRequest) hostfuncs.SendResponse {
//	    return bridge.HandleSend(ctx, req)
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return NewValidationError("malformed request: " + err.Error()).ToJSON(), nil
			}
		}

		return json.Marshal(fn(ctx, req))
	}
}
