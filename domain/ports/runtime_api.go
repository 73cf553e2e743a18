package ports

import (
	"context"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
)

// RuntimeAPI is the serverless fabric's invocation protocol.
type RuntimeAPI interface {
	// Next blocks until the fabric delivers the next invocation.
	Next(ctx context.Context) (*entities.Invocation, error)

	// RespondSuccess reports a successful invocation with its response body.
	RespondSuccess(ctx context.Context, requestID string, body []byte) error

	// RespondError reports a failed invocation.
	RespondError(ctx context.Context, requestID string, report entities.FunctionError) error

	// InitError reports that the host could not start.
	InitError(ctx context.Context, report entities.FunctionError) error
}

// Invoker runs one invocation to a terminal outcome.
type Invoker interface {
	Invoke(ctx context.Context, inv *entities.Invocation) (*entities.InvocationResult, error)
}
