package entities

import "time"

// Invocation is one event delivered by the serverless fabric.
type Invocation struct {
	// Deadline is the absolute time by which the fabric expects a result.
	// Zero means no fabric deadline; the host budget still applies.
	Deadline time.Time `json:"deadline,omitempty"`

	// RequestID identifies the invocation to the fabric.
	RequestID string `json:"request_id"`

	// FunctionARN is the invoked function identifier, when known.
	FunctionARN string `json:"function_arn,omitempty"`

	// TraceID is the fabric tracing header, passed through to the guest.
	TraceID string `json:"trace_id,omitempty"`

	// ClientContext is the optional mobile client context, passed through.
	ClientContext string `json:"client_context,omitempty"`

	// Payload is the raw event body, delivered to the guest on stdin.
	Payload []byte `json:"payload,omitempty"`
}

// InvocationResult is the structured result returned to the fabric.
type InvocationResult struct {
	Outcome Outcome `json:"outcome"`

	// RequestID echoes Invocation.RequestID.
	RequestID string `json:"request_id"`

	// Stdout is the guest's standard output. On success it is the response body.
	Stdout []byte `json:"stdout,omitempty"`

	// Stderr is captured diagnostic output.
	Stderr []byte `json:"stderr,omitempty"`

	// Duration is the wall-clock time from Loading to a terminal state.
	Duration time.Duration `json:"duration"`

	// Requests counts outbound calls the guest attempted.
	Requests int `json:"requests"`

	StdoutTruncated bool `json:"stdout_truncated,omitempty"`
	StderrTruncated bool `json:"stderr_truncated,omitempty"`
}

// FunctionError is the error document posted to the fabric for a failed
// invocation or a failed initialization.
type FunctionError struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   []string `json:"stackTrace,omitempty"`
}

// FunctionErrorFor builds the fabric error document for a failed outcome.
func FunctionErrorFor(o Outcome) FunctionError {
	return FunctionError{ErrorType: o.ErrorType(), ErrorMessage: o.String()}
}
