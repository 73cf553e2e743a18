package ports

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockHTTPTransport is a mock implementation of HTTPTransport for testing.
type MockHTTPTransport struct {
	DoFunc func(ctx context.Context, req entities.OutboundRequest) (*entities.InboundResponse, error)
}

func (m *MockHTTPTransport) Do(ctx context.Context, req entities.OutboundRequest) (*entities.InboundResponse, error) {
	if m.DoFunc != nil {
		return m.DoFunc(ctx, req)
	}
	return &entities.InboundResponse{Status: 200}, nil
}

// Compile-time interface checks
var (
	_ HTTPTransport = (*MockHTTPTransport)(nil)
	_ Resolver      = (*net.Resolver)(nil)
	_ Recorder      = NopRecorder{}
)

func TestMockHTTPTransport_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("default behavior", func(t *testing.T) {
		mock := &MockHTTPTransport{}
		resp, err := mock.Do(ctx, entities.OutboundRequest{URL: "https://example.com"})
		require.NoError(t, err)
		assert.Equal(t, uint16(200), resp.Status)
	})

	t.Run("custom behavior", func(t *testing.T) {
		mock := &MockHTTPTransport{
			DoFunc: func(_ context.Context, req entities.OutboundRequest) (*entities.InboundResponse, error) {
				return &entities.InboundResponse{Status: 201, Body: []byte(req.Method)}, nil
			},
		}
		resp, err := mock.Do(ctx, entities.OutboundRequest{Method: "POST"})
		require.NoError(t, err)
		assert.Equal(t, "POST", string(resp.Body))
	})
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	assert.NotPanics(t, func() {
		r.InvocationFinished(entities.Success(), time.Second)
		r.OutboundRequest("GET", 200, time.Millisecond)
		r.PolicyDenied()
		r.HandlesOpen(1)
	})
}
