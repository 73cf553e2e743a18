package ports

import (
	"context"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
)

// HTTPTransport performs one network exchange.
// It is only called after the policy has allowed the destination.
type HTTPTransport interface {
	// Do sends req and returns the complete response. Errors are
	// *errors.TransportError values classified by failure kind.
	Do(ctx context.Context, req entities.OutboundRequest) (*entities.InboundResponse, error)
}
