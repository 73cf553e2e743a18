package hostfuncs

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// NetfilterResult is the verdict for one destination host.
type NetfilterResult struct {
	// Reason explains a block.
	Reason string `json:"reason,omitempty"`

	// ResolvedIP is the address a connection must use when allowed.
	ResolvedIP string `json:"resolved_ip,omitempty"`

	Allowed bool `json:"allowed"`
}

// NetfilterOption configures an AddressFilter.
type NetfilterOption func(*netfilterConfig)

type netfilterConfig struct {
	resolver       ports.Resolver
	allowed        []netip.Prefix
	blocked        []netip.Prefix
	blockPrivate   bool
	blockLoopback  bool
	blockLinkLocal bool
	blockMulticast bool
}

func defaultNetfilterConfig() netfilterConfig {
	return netfilterConfig{
		resolver:       net.DefaultResolver,
		blockPrivate:   true,
		blockLoopback:  true,
		blockLinkLocal: true,
		blockMulticast: true,
	}
}

// WithBlockPrivate toggles blocking of RFC 1918 and unique-local addresses.
func WithBlockPrivate(block bool) NetfilterOption {
	return func(c *netfilterConfig) { c.blockPrivate = block }
}

// WithBlockLoopback toggles blocking of 127.0.0.0/8 and ::1.
func WithBlockLoopback(block bool) NetfilterOption {
	return func(c *netfilterConfig) { c.blockLoopback = block }
}

// WithBlockLinkLocal toggles blocking of 169.254.0.0/16 and fe80::/10,
// which includes cloud metadata endpoints.
func WithBlockLinkLocal(block bool) NetfilterOption {
	return func(c *netfilterConfig) { c.blockLinkLocal = block }
}

// WithBlockMulticast toggles blocking of multicast addresses.
func WithBlockMulticast(block bool) NetfilterOption {
	return func(c *netfilterConfig) { c.blockMulticast = block }
}

// WithAllowedCIDRs exempts prefixes from every other rule.
// Entries that do not parse are ignored.
func WithAllowedCIDRs(cidrs ...string) NetfilterOption {
	return func(c *netfilterConfig) { c.allowed = parsePrefixes(cidrs) }
}

// WithBlockedCIDRs blocks additional prefixes.
func WithBlockedCIDRs(cidrs ...string) NetfilterOption {
	return func(c *netfilterConfig) { c.blocked = parsePrefixes(cidrs) }
}

// WithResolver replaces the DNS resolver.
func WithResolver(r ports.Resolver) NetfilterOption {
	return func(c *netfilterConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

func parsePrefixes(cidrs []string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(raw); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

// AddressFilter blocks connections to internal address ranges. Hosts are
// resolved once and the verdict names the address to dial, so a second
// lookup cannot rebind the name to a blocked address.
type AddressFilter struct {
	config netfilterConfig
}

// NewAddressFilter creates a filter with secure defaults.
func NewAddressFilter(opts ...NetfilterOption) *AddressFilter {
	cfg := defaultNetfilterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &AddressFilter{config: cfg}
}

// Check resolves host (a name or literal address, optionally with a port)
// and returns the first acceptable address.
func (f *AddressFilter) Check(ctx context.Context, host string) NetfilterResult {
	addrs, err := f.resolve(ctx, host)
	if err != nil {
		return NetfilterResult{Reason: "DNS resolution failed: " + err.Error()}
	}
	return f.pick(addrs)
}

func (f *AddressFilter) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return nil, &net.DNSError{Err: "empty host", IsNotFound: true}
	}
	if a, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{a}, nil
	}

	ips, err := f.config.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if a, ok := netip.AddrFromSlice(ip.IP); ok {
			addrs = append(addrs, a.Unmap())
		}
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (f *AddressFilter) pick(addrs []netip.Addr) NetfilterResult {
	var firstReason string
	for _, a := range addrs {
		if reason := f.blockReason(a); reason != "" {
			if firstReason == "" {
				firstReason = reason
			}
			continue
		}
		return NetfilterResult{Allowed: true, ResolvedIP: a.String()}
	}
	return NetfilterResult{Reason: firstReason}
}

func (f *AddressFilter) blockReason(a netip.Addr) string {
	a = a.Unmap()
	for _, p := range f.config.allowed {
		if p.Contains(a) {
			return ""
		}
	}
	for _, p := range f.config.blocked {
		if p.Contains(a) {
			return fmt.Sprintf("address %s in blocked range %s", a, p)
		}
	}
	switch {
	case a.IsUnspecified():
		return "unspecified address blocked"
	case f.config.blockLoopback && a.IsLoopback():
		return "localhost/loopback addresses blocked"
	case f.config.blockPrivate && a.IsPrivate():
		return "private addresses blocked (RFC 1918)"
	case f.config.blockLinkLocal && (a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast()):
		return "link-local addresses blocked"
	case f.config.blockMulticast && a.IsMulticast():
		return "multicast addresses blocked"
	}
	return ""
}

// DialContext dials addr through the filter, connecting to the checked IP.
func (f *AddressFilter) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		addrs, err := f.resolve(ctx, host)
		if err != nil {
			return nil, err
		}
		result := f.pick(addrs)
		if !result.Allowed {
			return nil, &blockedError{host: host, reason: result.Reason}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(result.ResolvedIP, port))
	}
}

type blockedError struct {
	host   string
	reason string
}

func (e *blockedError) Error() string {
	return fmt.Sprintf("SSRF protection: %s: %s", e.host, e.reason)
}
