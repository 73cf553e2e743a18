package entities

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders_GetIsCaseInsensitive(t *testing.T) {
	var h Headers
	h.Add("Content-Type", "text/plain")
	h.Add("X-Multi", "a")
	h.Add("x-multi", "b")

	v, ok := h.Get("content-type")
	require.True(t, ok)
	assert.Equal(t, "text/plain", v)

	v, ok = h.Get("X-MULTI")
	require.True(t, ok)
	assert.Equal(t, "a", v, "first match wins")

	_, ok = h.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, h.Values("X-Multi"))
}

func TestHeaders_WireRoundTrip(t *testing.T) {
	h := Headers{
		{Name: "abc", Value: "def"},
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "Set-Cookie", Value: "b=2"},
	}
	wire := h.String()
	assert.Equal(t, "abc:def\nSet-Cookie:a=1\nSet-Cookie:b=2\n", wire)

	parsed, err := ParseHeaders(wire)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Headers
		wantErr bool
	}{
		{name: "empty", raw: "", want: nil},
		{name: "crlf and blank lines", raw: "a: 1\r\n\r\nb:2\n", want: Headers{{"a", "1"}, {"b", "2"}}},
		{name: "value with colon", raw: "Location:http://x/y\n", want: Headers{{"Location", "http://x/y"}}},
		{name: "missing colon", raw: "nocolon\n", wantErr: true},
		{name: "empty name", raw: ":value\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeaders(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeadersFromHTTP(t *testing.T) {
	src := http.Header{}
	src.Add("Zeta", "1")
	src.Add("Alpha", "x")
	src.Add("Alpha", "y")

	got := HeadersFromHTTP(src)
	assert.Equal(t, Headers{{"Alpha", "x"}, {"Alpha", "y"}, {"Zeta", "1"}}, got)
	assert.Equal(t, []string{"x", "y"}, got.ToHTTP().Values("alpha"))
}

func TestHeaders_CloneDoesNotAlias(t *testing.T) {
	h := Headers{{"a", "1"}}
	c := h.Clone()
	c[0].Value = "2"
	assert.Equal(t, "1", h[0].Value)
	assert.Nil(t, Headers(nil).Clone())
}
