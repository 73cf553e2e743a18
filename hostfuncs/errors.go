package hostfuncs

import (
	"encoding/json"
	stdErrors "errors"

	"github.com/reglet-dev/reglet-lambda/domain/errors"
)

// ErrorResponse is the structured error returned to guests over the JSON ABI.
type ErrorResponse struct {
	// Error is a machine-readable identifier such as "POLICY_DENIED" or a
	// transport code like "HOST_NOT_FOUND".
	Error string `json:"error"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// URL is the refused destination for POLICY_DENIED.
	URL string `json:"url,omitempty"`

	// Code is an HTTP-like status for the failure class.
	Code int `json:"code"`
}

// ToJSON serializes the ErrorResponse.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: "VALIDATION_ERROR", Message: message, Code: 400}
}

// NewNotFoundError creates an error response for unknown host function names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: "NOT_FOUND", Message: "unknown host function: " + name, Code: 404}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: message, Code: 500}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	msg := "panic recovered"
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	}
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: "panic: " + msg, Code: 500}
}

// NewErrorResponse maps a bridge error onto its wire form.
func NewErrorResponse(err error) ErrorResponse {
	var (
		validation *errors.ValidationError
		denied     *errors.PolicyDeniedError
		transport  *errors.TransportError
		tooMany    *errors.TooManySessionsError
		invalid    *errors.InvalidHandleError
	)
	switch {
	case stdErrors.As(err, &denied):
		return ErrorResponse{Error: "POLICY_DENIED", Message: err.Error(), URL: denied.URL, Code: 403}
	case stdErrors.As(err, &validation):
		return NewValidationError(err.Error())
	case stdErrors.As(err, &transport):
		code := 502
		if transport.Timeout() {
			code = 504
		}
		return ErrorResponse{Error: transport.Code, Message: err.Error(), Code: code}
	case stdErrors.As(err, &tooMany):
		return ErrorResponse{Error: "TOO_MANY_SESSIONS", Message: err.Error(), Code: 429}
	case stdErrors.As(err, &invalid):
		return ErrorResponse{Error: "INVALID_HANDLE", Message: err.Error(), Code: 404}
	default:
		return NewInternalError(err.Error())
	}
}
