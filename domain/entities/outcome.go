package entities

import (
	"encoding/json"
	"fmt"
)

// OutcomeKind tags the variant of an ExecutionOutcome.
type OutcomeKind string

const (
	// OutcomeSuccess means the entry point returned normally.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeAssertionFailure means the guest aborted with a message.
	OutcomeAssertionFailure OutcomeKind = "assertion_failure"

	// OutcomeTrap means the guest aborted or faulted.
	OutcomeTrap OutcomeKind = "trap"

	// OutcomePolicyDenied means the guest failed after a destination was refused.
	OutcomePolicyDenied OutcomeKind = "policy_denied"

	// OutcomeTimedOut means the execution budget was exceeded and the
	// instance was terminated.
	OutcomeTimedOut OutcomeKind = "timed_out"
)

// Outcome is the result of one invocation, reported to the invoking fabric.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Message carries the assertion message or trap reason.
	Message string `json:"message,omitempty"`

	// URL is the refused destination for OutcomePolicyDenied.
	URL string `json:"url,omitempty"`

	// ExitCode is the guest exit code when it exited through proc_exit.
	ExitCode uint32 `json:"exit_code,omitempty"`
}

// Success returns a successful outcome.
func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

// AssertionFailure returns an assertion failure outcome.
func AssertionFailure(message string) Outcome {
	return Outcome{Kind: OutcomeAssertionFailure, Message: message}
}

// Trap returns a trap outcome.
func Trap(reason string) Outcome { return Outcome{Kind: OutcomeTrap, Message: reason} }

// PolicyDenied returns a policy denial outcome for url.
func PolicyDenied(url string) Outcome {
	return Outcome{Kind: OutcomePolicyDenied, URL: url, Message: "destination not allowed: " + url}
}

// TimedOut returns a timeout outcome.
func TimedOut(reason string) Outcome { return Outcome{Kind: OutcomeTimedOut, Message: reason} }

// IsSuccess reports whether the invocation succeeded.
func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// ErrorType returns the Lambda errorType string for a failed outcome.
func (o Outcome) ErrorType() string {
	switch o.Kind {
	case OutcomeAssertionFailure:
		return "Guest.AssertionFailure"
	case OutcomeTrap:
		return "Runtime.Trap"
	case OutcomePolicyDenied:
		return "Runtime.PolicyDenied"
	case OutcomeTimedOut:
		return "Runtime.TimedOut"
	default:
		return ""
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "success"
	case OutcomePolicyDenied:
		return fmt.Sprintf("policy denied (%s)", o.URL)
	default:
		if o.Message == "" {
			return string(o.Kind)
		}
		return fmt.Sprintf("%s: %s", o.Kind, o.Message)
	}
}

// MarshalText lets outcomes be used as log attribute values.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// MarshalJSON keeps the structured form; MarshalText would otherwise win.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	return json.Marshal(plain(o))
}
