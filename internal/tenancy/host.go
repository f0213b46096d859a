// Package tenancy binds inbound requests to tenants and hands out data
// handles confined to a single tenant namespace.
package tenancy

import (
	"net"
	"strings"
)

// HostResolver maps a request hostname to a tenant key. Hosts on the
// allow-list belong to the platform itself and resolve to no tenant.
type HostResolver struct {
	platform map[string]struct{}
}

// NewHostResolver creates a resolver with the given platform hostnames.
func NewHostResolver(platformHosts []string) *HostResolver {
	r := &HostResolver{platform: make(map[string]struct{}, len(platformHosts))}
	for _, h := range platformHosts {
		if h = normalizeHost(h); h != "" {
			r.platform[h] = struct{}{}
		}
	}
	return r
}

// Resolve returns the tenant key for host and true, or "" and false when the
// host is a platform host. The key is the first DNS label, passed through
// unchecked; unknown keys are rejected later by the Provider.
func (r *HostResolver) Resolve(host string) (string, bool) {
	host = normalizeHost(host)
	if _, ok := r.platform[host]; ok {
		return "", false
	}
	label, _, _ := strings.Cut(host, ".")
	return label, true
}

func normalizeHost(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if h, _, err := net.SplitHostPort(raw); err == nil {
		raw = h
	}
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	return strings.TrimSuffix(raw, ".")
}
