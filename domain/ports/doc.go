// Package ports defines the interfaces the execution host depends on.
// Infrastructure packages implement them; application code accepts them so
// that tests can substitute fakes for the network, the fabric and metrics.
package ports
