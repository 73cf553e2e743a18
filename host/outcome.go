package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	wz "github.com/reglet-dev/reglet-lambda/infrastructure/wazero"
	"github.com/tetratelabs/wazero/sys"
)

// runState is what one instance left behind when its entry point returned.
type runState struct {
	err     error
	ctx     context.Context
	session *hostfuncs.Session
	abort   *wz.AbortCapture
	budget  time.Duration
}

// classify decides the outcome of a finished run. The returned error, nil on
// success, carries the detail worth logging.
//
// Precedence: a deadline always wins, then a refused destination, then an
// AssemblyScript abort, then any other trap.
func classify(r runState) (entities.Outcome, error) {
	if r.err == nil {
		return entities.Success(), nil
	}

	var exitErr *sys.ExitError
	isExit := stdErrors.As(r.err, &exitErr)
	if isExit && exitErr.ExitCode() == 0 {
		return entities.Success(), nil
	}

	if ctxErr := r.ctx.Err(); ctxErr != nil {
		if stdErrors.Is(ctxErr, context.DeadlineExceeded) {
			return entities.TimedOut(fmt.Sprintf("execution exceeded %s", r.budget)),
				&errors.TimeoutError{Operation: "invocation", Duration: r.budget}
		}
		return entities.TimedOut("invocation cancelled"),
			&errors.TimeoutError{Operation: "invocation"}
	}

	if url, denied := r.session.FirstDenial(); denied {
		return entities.PolicyDenied(url), &errors.PolicyDeniedError{URL: url, Reason: "guest failed after a refused request"}
	}

	if a, ok := r.abort.Get(); ok {
		trap := &errors.TrapError{Err: r.err, Reason: a.String(), ExitCode: wz.AbortExitCode}
		if a.Message != "" {
			o := entities.AssertionFailure(a.String())
			o.ExitCode = wz.AbortExitCode
			return o, trap
		}
		o := entities.Trap(a.String())
		o.ExitCode = wz.AbortExitCode
		return o, trap
	}

	if isExit {
		code := exitErr.ExitCode()
		reason := fmt.Sprintf("exit status %d", code)
		o := entities.Trap(reason)
		o.ExitCode = code
		return o, &errors.TrapError{Err: r.err, Reason: reason, ExitCode: code}
	}

	reason, backtrace := splitTrap(r.err.Error())
	return entities.Trap(reason), &errors.TrapError{Err: r.err, Reason: reason, Backtrace: backtrace}
}

// splitTrap separates wazero's one-line trap reason from the stack trace that
// follows it.
func splitTrap(msg string) (reason, backtrace string) {
	reason, backtrace, _ = strings.Cut(msg, "\n")
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "trap"
	}
	return reason, strings.TrimSpace(backtrace)
}
