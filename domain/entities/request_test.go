package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAbsoluteHTTPURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"https://postman-echo.com/post", false},
		{"http://127.0.0.1:8080/x", false},
		{"", true},
		{"/relative/path", true},
		{"ftp://example.com/", true},
		{"http://", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseAbsoluteHTTPURL(tt.raw)
			assert.Equal(t, tt.wantErr, err != nil, "err=%v", err)
		})
	}
}

func TestOutboundRequest_Normalize(t *testing.T) {
	r := OutboundRequest{Method: " post "}
	r.Normalize()
	assert.Equal(t, "POST", r.Method)

	r = OutboundRequest{}
	r.Normalize()
	assert.Equal(t, "GET", r.Method)

	assert.True(t, IsSupportedMethod("DELETE"))
	assert.False(t, IsSupportedMethod("TRACE"))
}
