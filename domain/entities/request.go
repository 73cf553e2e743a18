package entities

import (
	"fmt"
	"net/url"
	"strings"
)

// SupportedMethods lists the HTTP methods the bridge will dispatch.
var SupportedMethods = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// OutboundRequest is a guest-constructed request description.
type OutboundRequest struct {
	// Method is the HTTP method. Empty means GET.
	Method string `json:"method" validate:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`

	// URL is the absolute http or https target.
	URL string `json:"url" validate:"required,url"`

	// Headers are sent in order, duplicates included.
	Headers Headers `json:"headers,omitempty"`

	// Body is the optional request payload.
	Body []byte `json:"body,omitempty"`
}

// Normalize upper-cases the method and defaults it to GET.
func (r *OutboundRequest) Normalize() {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = "GET"
	}
}

// ParseTarget parses the URL and checks it is absolute with an http(s) scheme.
func (r OutboundRequest) ParseTarget() (*url.URL, error) {
	return ParseAbsoluteHTTPURL(r.URL)
}

// ParseAbsoluteHTTPURL parses raw and requires an http or https scheme and a host.
func ParseAbsoluteHTTPURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("url scheme %q is not http or https", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

// IsSupportedMethod reports whether method (already upper-cased) can be dispatched.
func IsSupportedMethod(method string) bool {
	for _, m := range SupportedMethods {
		if m == method {
			return true
		}
	}
	return false
}
