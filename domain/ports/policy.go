package ports

// Policy decides whether an outbound URL may be contacted.
// Implementations are immutable after construction and safe for concurrent use.
type Policy interface {
	// IsAllowed reports whether rawURL matches the allow-list.
	// Malformed or relative URLs are never allowed.
	IsAllowed(rawURL string) bool

	// Entries returns the configured allow-list in its original form.
	Entries() []string
}
