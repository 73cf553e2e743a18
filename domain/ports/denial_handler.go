package ports

// DenialHandler is called when the policy refuses a destination.
// Implementations can log, collect metrics, or take other actions.
type DenialHandler interface {
	// OnDenial is called with the refused URL and a human-readable reason.
	OnDenial(rawURL string, reason string)
}
