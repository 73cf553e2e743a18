package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// RuntimeLoop pulls invocations from the fabric and reports their results,
// one at a time, until its context ends or the fabric fails.
type RuntimeLoop struct {
	api     ports.RuntimeAPI
	invoker ports.Invoker
	logger  *slog.Logger
}

// NewRuntimeLoop creates a loop.
func NewRuntimeLoop(api ports.RuntimeAPI, invoker ports.Invoker, logger *slog.Logger) *RuntimeLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeLoop{api: api, invoker: invoker, logger: logger}
}

// Run processes invocations until ctx is cancelled, returning nil in that
// case. Any Runtime API failure ends the loop; the fabric restarts the
// runtime.
func (l *RuntimeLoop) Run(ctx context.Context) error {
	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Step handles exactly one invocation.
func (l *RuntimeLoop) Step(ctx context.Context) error {
	inv, err := l.api.Next(ctx)
	if err != nil {
		return fmt.Errorf("next invocation: %w", err)
	}
	logger := l.logger.With("request_id", inv.RequestID)

	result, err := l.invoker.Invoke(ctx, inv)
	if err != nil {
		logger.ErrorContext(ctx, "invocation did not start", "error", err)
		report := entities.FunctionError{ErrorType: "Runtime.Unavailable", ErrorMessage: err.Error()}
		if rerr := l.api.RespondError(ctx, inv.RequestID, report); rerr != nil {
			return stdErrors.Join(err, rerr)
		}
		return nil
	}

	if result.Outcome.IsSuccess() {
		err = l.api.RespondSuccess(ctx, inv.RequestID, result.Stdout)
	} else {
		err = l.api.RespondError(ctx, inv.RequestID, entities.FunctionErrorFor(result.Outcome))
	}
	if err != nil {
		return fmt.Errorf("report invocation %s: %w", inv.RequestID, err)
	}
	return nil
}

// ReportInitError tells the fabric the runtime could not start.
func (l *RuntimeLoop) ReportInitError(ctx context.Context, cause error) error {
	report := entities.FunctionError{ErrorType: "Runtime.InitError", ErrorMessage: cause.Error()}
	if err := l.api.InitError(ctx, report); err != nil {
		return fmt.Errorf("report init error: %w", err)
	}
	return nil
}
