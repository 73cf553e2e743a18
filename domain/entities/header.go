package entities

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Header is a single name/value pair. Name keeps the casing it was received with.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list. Duplicate names are permitted and
// insertion order is preserved.
type Headers []Header

// Add appends a header pair.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Get returns the first value whose name matches case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, pair := range h {
		if strings.EqualFold(pair.Name, name) {
			return pair.Value, true
		}
	}
	return "", false
}

// Values returns every value whose name matches case-insensitively, in order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, pair := range h {
		if strings.EqualFold(pair.Name, name) {
			out = append(out, pair.Value)
		}
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// String renders the headers in the "name:value\n" wire form used by the
// wasi_experimental_http ABI.
func (h Headers) String() string {
	var b strings.Builder
	for _, pair := range h {
		b.WriteString(pair.Name)
		b.WriteByte(':')
		b.WriteString(pair.Value)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseHeaders reads the "name:value\n" wire form. Blank lines are skipped.
// Values are trimmed of surrounding whitespace; names must be non-empty.
func ParseHeaders(raw string) (Headers, error) {
	var out Headers
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("header line %d: expected name:value, got %q", i+1, line)
		}
		out.Add(name, strings.TrimSpace(value))
	}
	return out, nil
}

// HeadersFromHTTP flattens an http.Header. net/http does not retain the order
// of distinct names, so names are emitted in sorted order (the order a Go
// server writes them); values of one name keep their received order.
func HeadersFromHTTP(src http.Header) Headers {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(src))
	for _, name := range names {
		for _, value := range src[name] {
			out.Add(name, value)
		}
	}
	return out
}

// ToHTTP converts the list into an http.Header, keeping duplicate values.
func (h Headers) ToHTTP() http.Header {
	out := make(http.Header, len(h))
	for _, pair := range h {
		out.Add(pair.Name, pair.Value)
	}
	return out
}
