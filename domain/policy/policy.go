// Package policy implements the outbound destination allow-list.
package policy

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// AllowAll is the entry that permits every destination.
const AllowAll = "*"

// insecureAllowAll is the legacy spelling of AllowAll.
const insecureAllowAll = "insecure:allow-all"

// policyConfig holds configuration for the Policy engine.
type policyConfig struct {
	denialHandler ports.DenialHandler
}

func defaultPolicyConfig() policyConfig {
	return policyConfig{
		denialHandler: NewSlogDenialHandler(slog.Default()),
	}
}

// Option configures the Policy.
type Option func(*policyConfig)

// WithDenialHandler sets the denial handler.
func WithDenialHandler(h ports.DenialHandler) Option {
	return func(c *policyConfig) {
		if h != nil {
			c.denialHandler = h
		}
	}
}

// Policy is an immutable allow-list of destinations.
type Policy struct {
	config   policyConfig
	entries  []string
	rules    []rule
	allowAll bool
}

type rule struct {
	scheme string // empty matches http and https
	host   string // lower-cased doublestar pattern
	port   string // empty means the scheme default
	path   string // required path prefix, may be empty
}

// New builds a Policy from allow-list entries. Entries that cannot be
// parsed are skipped and reported through the returned slice.
func New(entries []string, opts ...Option) (*Policy, []string) {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Policy{config: cfg}
	var invalid []string
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		p.entries = append(p.entries, entry)

		if entry == AllowAll || entry == insecureAllowAll {
			p.allowAll = true
			continue
		}
		r, ok := compileRule(entry)
		if !ok {
			invalid = append(invalid, entry)
			continue
		}
		p.rules = append(p.rules, r)
	}
	return p, invalid
}

// ParseAllowList splits a comma-separated allow-list, as found in ALLOWED_HOSTS.
func ParseAllowList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func compileRule(entry string) (rule, bool) {
	if !strings.Contains(entry, "://") {
		host := strings.ToLower(entry)
		if !doublestar.ValidatePattern(host) || strings.ContainsAny(host, "/?#") {
			return rule{}, false
		}
		return rule{host: host}, true
	}

	u, err := url.Parse(entry)
	if err != nil || u.Hostname() == "" {
		return rule{}, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return rule{}, false
	}
	host := strings.ToLower(u.Hostname())
	if !doublestar.ValidatePattern(host) {
		return rule{}, false
	}

	r := rule{scheme: scheme, host: host, port: u.Port()}
	if u.Path != "" && u.Path != "/" {
		r.path = u.Path
	}
	return r, true
}

// IsAllowed reports whether rawURL may be contacted. It is pure apart from
// the denial callback: no I/O and no DNS resolution.
func (p *Policy) IsAllowed(rawURL string) bool {
	u, err := entities.ParseAbsoluteHTTPURL(rawURL)
	if err != nil {
		p.config.denialHandler.OnDenial(rawURL, "malformed url: "+err.Error())
		return false
	}
	if p.allowAll {
		return true
	}
	if len(p.rules) == 0 {
		p.config.denialHandler.OnDenial(rawURL, "allow-list is empty")
		return false
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	for _, r := range p.rules {
		if r.matches(scheme, host, u.Port(), u.Path) {
			return true
		}
	}

	p.config.denialHandler.OnDenial(rawURL, "host not in allow-list")
	return false
}

func (r rule) matches(scheme, host, port, path string) bool {
	if matched, _ := doublestar.Match(r.host, host); !matched {
		return false
	}
	if r.scheme == "" {
		return true
	}
	if r.scheme != scheme {
		return false
	}
	if port == "" {
		port = defaultPort(scheme)
	}
	want := r.port
	if want == "" {
		want = defaultPort(r.scheme)
	}
	if port != want {
		return false
	}
	return r.path == "" || pathWithin(path, r.path)
}

// pathWithin reports whether path is prefix or lies below it, comparing
// whole segments.
func pathWithin(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// Entries returns the configured allow-list.
func (p *Policy) Entries() []string {
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// AllowsAll reports whether the policy is unrestricted.
func (p *Policy) AllowsAll() bool { return p.allowAll }

var _ ports.Policy = (*Policy)(nil)
