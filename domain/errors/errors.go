// Package errors provides the host's error taxonomy.
// All error types support unwrapping via errors.As() and errors.Is(), and each
// matches its sentinel so callers can branch without type assertions.
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrValidation      = stdErrors.New("invalid request")
	ErrPolicyDenied    = stdErrors.New("destination not allowed")
	ErrTransport       = stdErrors.New("transport failure")
	ErrTrap            = stdErrors.New("guest trapped")
	ErrTimedOut        = stdErrors.New("execution timed out")
	ErrTooManySessions = stdErrors.New("too many open responses")
	ErrInvalidHandle   = stdErrors.New("invalid response handle")
	ErrConfig          = stdErrors.New("invalid configuration")
	ErrMemory          = stdErrors.New("guest memory access failed")
)

// DetailedError is implemented by error types that can describe themselves
// as a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    entities.ErrorTypeInternal,
	}
}

// ValidationError is a malformed request rejected before dispatch.
type ValidationError struct {
	Err   error
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ToErrorDetail implements DetailedError.
func (e *ValidationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeValidation, Code: e.Field}
}

// PolicyDeniedError means the destination is not in the allow-list.
// No network I/O happened.
type PolicyDeniedError struct {
	URL    string
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("destination not allowed: %s (%s)", e.URL, e.Reason)
	}
	return fmt.Sprintf("destination not allowed: %s", e.URL)
}

func (e *PolicyDeniedError) Is(target error) bool { return target == ErrPolicyDenied }

// ToErrorDetail implements DetailedError.
func (e *PolicyDeniedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    entities.ErrorTypePolicy,
		Code:    "DESTINATION_NOT_ALLOWED",
		Details: map[string]any{"url": e.URL},
	}
}

// Transport error codes.
const (
	CodeTimeout           = "TIMEOUT"
	CodeHostNotFound      = "HOST_NOT_FOUND"
	CodeConnectionRefused = "CONNECTION_REFUSED"
	CodeSSRFBlocked       = "SSRF_BLOCKED"
	CodeTooManyRedirects  = "TOO_MANY_REDIRECTS"
	CodeReadBodyFailed    = "READ_BODY_FAILED"
	CodeRequestFailed     = "REQUEST_FAILED"
)

// TransportError is a network or connection failure during an exchange.
type TransportError struct {
	Err    error
	Code   string
	Method string
	URL    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("http %s %s failed [%s]: %v", e.Method, e.URL, e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Timeout reports whether the exchange exceeded its time bound.
func (e *TransportError) Timeout() bool {
	if e.Code == CodeTimeout {
		return true
	}
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// ToErrorDetail implements DetailedError.
func (e *TransportError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeTransport, Code: e.Code}
	if e.Timeout() {
		detail.IsTimeout = true
	}
	return detail
}

// TrapError is an abnormal, host-detected termination of guest code.
type TrapError struct {
	Err       error
	Reason    string
	Backtrace string
	ExitCode  uint32
}

func (e *TrapError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("guest trapped: %s (exit code %d)", e.Reason, e.ExitCode)
	}
	return fmt.Sprintf("guest trapped: %s", e.Reason)
}

func (e *TrapError) Unwrap() error { return e.Err }

func (e *TrapError) Is(target error) bool { return target == ErrTrap }

// ToErrorDetail implements DetailedError.
func (e *TrapError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeTrap, Code: fmt.Sprintf("exit_%d", e.ExitCode)}
}

// TimeoutError means an operation exceeded its wall-clock budget.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Duration > 0 {
		return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
	}
	return fmt.Sprintf("%s timed out", e.Operation)
}

func (e *TimeoutError) Timeout() bool { return true }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimedOut }

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeTimeout, Code: e.Operation, IsTimeout: true}
}

// TooManySessionsError means the instance holds the maximum number of open responses.
type TooManySessionsError struct {
	Limit int
}

func (e *TooManySessionsError) Error() string {
	return fmt.Sprintf("too many open responses (limit %d)", e.Limit)
}

func (e *TooManySessionsError) Is(target error) bool { return target == ErrTooManySessions }

// ToErrorDetail implements DetailedError.
func (e *TooManySessionsError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeValidation, Code: "TOO_MANY_SESSIONS"}
}

// InvalidHandleError means the guest referred to a response that is not open.
type InvalidHandleError struct {
	Handle uint32
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid response handle %d", e.Handle)
}

func (e *InvalidHandleError) Is(target error) bool { return target == ErrInvalidHandle }

// ToErrorDetail implements DetailedError.
func (e *InvalidHandleError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeValidation, Code: "INVALID_HANDLE"}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeConfig, Code: e.Field}
}

// MemoryError is an out-of-range read or write of guest linear memory.
type MemoryError struct {
	Operation string
	Offset    uint32
	Length    uint32
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("guest memory %s out of range: offset %d, length %d", e.Operation, e.Offset, e.Length)
}

func (e *MemoryError) Is(target error) bool { return target == ErrMemory }

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeInternal, Code: "memory_access"}
}
