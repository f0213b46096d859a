package tenancy

import (
	"context"
	"fmt"

	"github.com/neomorfeo/koperasi/internal/domain"
)

type ctxKey int

const (
	tenantKeyCtx ctxKey = iota
	scopeCtx
)

// WithKey returns a context carrying the tenant key resolved from the host.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, tenantKeyCtx, key)
}

// KeyFromContext returns the host-derived tenant key, if the request has one.
func KeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(tenantKeyCtx).(string)
	return key, ok
}

// KeySource supplies the tenant key a handle should be bound to.
type KeySource interface {
	TenantKey(ctx context.Context) (string, error)
}

type hostSource struct{}

// FromHost reads the key the Middleware derived from the request host.
func FromHost() KeySource { return hostSource{} }

func (hostSource) TenantKey(ctx context.Context) (string, error) {
	key, ok := KeyFromContext(ctx)
	if !ok {
		return "", domain.ErrNoTenant
	}
	return key, nil
}

type subdomainSource string

// FromSubdomain uses an explicitly supplied subdomain, e.g. from a signup
// form submitted on the bare platform domain.
func FromSubdomain(subdomain string) KeySource { return subdomainSource(subdomain) }

func (s subdomainSource) TenantKey(context.Context) (string, error) {
	key, err := domain.NormalizeSubdomain(string(s))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTenantNotFound, err)
	}
	return key, nil
}
