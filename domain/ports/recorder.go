package ports

import (
	"time"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
)

// Recorder receives execution telemetry.
type Recorder interface {
	// InvocationFinished is called once per invocation with its outcome.
	InvocationFinished(outcome entities.Outcome, duration time.Duration)

	// OutboundRequest is called after every dispatched exchange. status is
	// zero when the exchange failed.
	OutboundRequest(method string, status int, duration time.Duration)

	// PolicyDenied is called for every refused destination.
	PolicyDenied()

	// HandlesOpen reports a change in the number of open responses.
	HandlesOpen(delta int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) InvocationFinished(entities.Outcome, time.Duration) {}
func (NopRecorder) OutboundRequest(string, int, time.Duration) {}
func (NopRecorder) PolicyDenied() {}
func (NopRecorder) HandlesOpen(int) {}

var _ Recorder = NopRecorder{}
