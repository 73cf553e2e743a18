package entities

import "time"

// InboundResponse is a network response held by the bridge on behalf of a guest.
type InboundResponse struct {
	// Headers are in received order with duplicates.
	Headers Headers `json:"headers"`

	// Body holds the (possibly truncated) response payload.
	Body []byte `json:"body,omitempty"`

	// Latency is the time spent on the network exchange.
	Latency time.Duration `json:"latency"`

	// Handle is the opaque token the guest uses to refer to this response.
	Handle uint32 `json:"handle"`

	// Status is the HTTP status code.
	Status uint16 `json:"status"`

	// BodyTruncated is set when Body was cut at the configured size limit.
	BodyTruncated bool `json:"body_truncated,omitempty"`
}

// HeaderGet returns the first header value matching name case-insensitively.
func (r *InboundResponse) HeaderGet(name string) (string, bool) {
	return r.Headers.Get(name)
}

// HeaderGetAll returns the full ordered header set.
func (r *InboundResponse) HeaderGetAll() Headers {
	return r.Headers.Clone()
}
