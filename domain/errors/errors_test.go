package errors_test

import (
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	cause := stdErrors.New("url is empty")
	err := &errors.ValidationError{Field: "url", Err: cause}

	assert.Equal(t, "invalid request field url: url is empty", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, errors.ErrValidation)

	detail := err.ToErrorDetail()
	assert.Equal(t, entities.ErrorTypeValidation, detail.Type)
	assert.Equal(t, "url", detail.Code)
}

func TestPolicyDeniedError(t *testing.T) {
	err := &errors.PolicyDeniedError{URL: "https://example.com/"}

	assert.Equal(t, "destination not allowed: https://example.com/", err.Error())
	assert.ErrorIs(t, err, errors.ErrPolicyDenied)
	assert.NotErrorIs(t, err, errors.ErrTransport)

	wrapped := fmt.Errorf("send: %w", err)
	var pde *errors.PolicyDeniedError
	require.True(t, stdErrors.As(wrapped, &pde))
	assert.Equal(t, "https://example.com/", pde.URL)

	detail := errors.ToErrorDetail(wrapped)
	assert.Equal(t, entities.ErrorTypePolicy, detail.Type)
	assert.Equal(t, "https://example.com/", detail.Details["url"])
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestTransportError_Timeout(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.TransportError
		want bool
	}{
		{"timeout code", &errors.TransportError{Code: errors.CodeTimeout, Err: stdErrors.New("x")}, true},
		{"timeout cause", &errors.TransportError{Code: errors.CodeRequestFailed, Err: timeoutErr{}}, true},
		{"refused", &errors.TransportError{Code: errors.CodeConnectionRefused, Err: stdErrors.New("refused")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Timeout())
			assert.Equal(t, tt.want, tt.err.ToErrorDetail().IsTimeout)
			assert.ErrorIs(t, tt.err, errors.ErrTransport)
		})
	}
}

func TestTransportError_Message(t *testing.T) {
	err := &errors.TransportError{
		Code:   errors.CodeHostNotFound,
		Method: "GET",
		URL:    "https://nope.invalid/",
		Err:    stdErrors.New("no such host"),
	}
	assert.Equal(t, "http GET https://nope.invalid/ failed [HOST_NOT_FOUND]: no such host", err.Error())
}

func TestTrapError(t *testing.T) {
	err := &errors.TrapError{Reason: "unreachable", ExitCode: 134}
	assert.Equal(t, "guest trapped: unreachable (exit code 134)", err.Error())
	assert.ErrorIs(t, err, errors.ErrTrap)

	plain := &errors.TrapError{Reason: "unreachable"}
	assert.Equal(t, "guest trapped: unreachable", plain.Error())
}

func TestTimeoutError(t *testing.T) {
	err := &errors.TimeoutError{Operation: "invocation", Duration: 2 * time.Second}
	assert.Equal(t, "invocation timed out after 2s", err.Error())
	assert.True(t, err.Timeout())
	assert.ErrorIs(t, err, errors.ErrTimedOut)
	assert.True(t, err.ToErrorDetail().IsTimeout)
}

func TestHandleErrors(t *testing.T) {
	tooMany := &errors.TooManySessionsError{Limit: 4}
	assert.Equal(t, "too many open responses (limit 4)", tooMany.Error())
	assert.ErrorIs(t, tooMany, errors.ErrTooManySessions)

	invalid := &errors.InvalidHandleError{Handle: 9}
	assert.Equal(t, "invalid response handle 9", invalid.Error())
	assert.ErrorIs(t, invalid, errors.ErrInvalidHandle)
	assert.Equal(t, "INVALID_HANDLE", invalid.ToErrorDetail().Code)
}

func TestConfigError(t *testing.T) {
	err := &errors.ConfigError{Field: "handler", Err: stdErrors.New("required")}
	assert.Equal(t, "config validation failed for field 'handler': required", err.Error())
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestToErrorDetail(t *testing.T) {
	assert.Nil(t, errors.ToErrorDetail(nil))

	plain := errors.ToErrorDetail(stdErrors.New("boom"))
	assert.Equal(t, entities.ErrorTypeInternal, plain.Type)
	assert.Equal(t, "boom", plain.Message)

	existing := entities.NewErrorDetail(entities.ErrorTypeTransport, "x").WithCode("TIMEOUT")
	assert.Same(t, existing, errors.ToErrorDetail(fmt.Errorf("wrap: %w", existing)))

	mem := errors.ToErrorDetail(&errors.MemoryError{Operation: "read", Offset: 10, Length: 4})
	assert.Equal(t, "memory_access", mem.Code)
}
