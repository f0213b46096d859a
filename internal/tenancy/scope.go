package tenancy

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Scope holds the single handle of one request. The first Acquire binds it;
// later calls return the same handle (or the same error) whatever source
// they pass. Release closes the handle when the request ends.
type Scope struct {
	provider *Provider

	mu     sync.Mutex
	done   bool
	handle *Handle
	err    error
}

// NewScope creates an empty request scope.
func NewScope(provider *Provider) *Scope {
	return &Scope{provider: provider}
}

// Acquire resolves src on first use and memoizes the outcome.
func (s *Scope) Acquire(ctx context.Context, src KeySource) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.done {
		s.handle, s.err = s.provider.Acquire(ctx, src)
		s.done = true
	}
	return s.handle, s.err
}

// Release closes the memoized handle, if any.
func (s *Scope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return
	}
	if err := s.handle.Release(); err != nil {
		slog.Warn("releasing tenant handle", "tenant_id", s.handle.TenantID(), "error", err)
	}
}

// WithScope attaches a request scope to ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeCtx, s)
}

// Acquire returns the request's handle, binding it to src if this is the
// first acquisition in the request.
func Acquire(ctx context.Context, src KeySource) (*Handle, error) {
	s, ok := ctx.Value(scopeCtx).(*Scope)
	if !ok {
		return nil, domain.ErrNoTenant
	}
	return s.Acquire(ctx, src)
}

// HandleFrom returns the handle for the tenant named by the request host.
func HandleFrom(ctx context.Context) (*Handle, error) {
	return Acquire(ctx, FromHost())
}

// Middleware resolves the request host, annotates the context with the
// tenant key and a fresh Scope, and releases the scope's handle once the
// request completes.
func Middleware(resolver *HostResolver, provider *Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if key, ok := resolver.Resolve(r.Host); ok {
				ctx = WithKey(ctx, key)
			}

			scope := NewScope(provider)
			defer scope.Release()

			next.ServeHTTP(w, r.WithContext(WithScope(ctx, scope)))
		})
	}
}
