package ports

import (
	"context"
	"net"
)

// Resolver resolves host names for the address filter.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}
