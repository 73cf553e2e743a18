package policy

import (
	"log/slog"

	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// Ensure implementations satisfy the interface.
var (
	_ ports.DenialHandler = (*SlogDenialHandler)(nil)
	_ ports.DenialHandler = (*NopDenialHandler)(nil)
	_ ports.DenialHandler = (*RecordingDenialHandler)(nil)
)

// SlogDenialHandler logs denials at warn level.
type SlogDenialHandler struct {
	logger *slog.Logger
}

// NewSlogDenialHandler returns a handler writing to logger, or slog.Default when nil.
func NewSlogDenialHandler(logger *slog.Logger) *SlogDenialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogDenialHandler{logger: logger}
}

func (h *SlogDenialHandler) OnDenial(rawURL, reason string) {
	h.logger.Warn("destination denied", "url", rawURL, "reason", reason)
}

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(rawURL, reason string) {}

// RecordingDenialHandler counts denials on a Recorder and forwards them.
type RecordingDenialHandler struct {
	Next     ports.DenialHandler
	Recorder ports.Recorder
}

func (h *RecordingDenialHandler) OnDenial(rawURL, reason string) {
	if h.Recorder != nil {
		h.Recorder.PolicyDenied()
	}
	if h.Next != nil {
		h.Next.OnDenial(rawURL, reason)
	}
}
