package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/neomorfeo/koperasi/internal/domain"
)

const meterName = "github.com/neomorfeo/koperasi/internal/tenancy"

// Directory is the read side of the tenant directory the Provider needs.
type Directory interface {
	GetBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error)
}

// Pool hands out exclusive connections to a namespace.
type Pool interface {
	Conn(ctx context.Context, namespace string) (*sqlx.Conn, error)
}

// Provider resolves tenant keys to handles. It is the only way to obtain a
// Handle: it consults the directory on every call and refuses tenants that
// are missing or not ACTIVE.
type Provider struct {
	dir      Directory
	pool     Pool
	acquired metric.Int64Counter
}

// NewProvider creates a Provider over the given directory and pool.
func NewProvider(dir Directory, pool Pool) *Provider {
	acquired, err := otel.Meter(meterName).Int64Counter("koperasi.tenancy.acquire",
		metric.WithDescription("Tenant handle acquisitions by result"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &Provider{dir: dir, pool: pool, acquired: acquired}
}

// Acquire returns a handle bound to the tenant named by src. The caller owns
// the handle and must Release it.
func (p *Provider) Acquire(ctx context.Context, src KeySource) (*Handle, error) {
	h, err := p.acquire(ctx, src)
	p.record(ctx, err)
	return h, err
}

func (p *Provider) acquire(ctx context.Context, src KeySource) (*Handle, error) {
	key, err := src.TenantKey(ctx)
	if err != nil {
		return nil, err
	}

	tenant, err := p.dir.GetBySubdomain(ctx, key)
	if err != nil {
		return nil, err
	}
	if tenant.Status != domain.StatusActive {
		return nil, &domain.TenantNotActiveError{Name: tenant.Name, Status: tenant.Status}
	}
	if !domain.ValidNamespace(tenant.Namespace) {
		return nil, fmt.Errorf("tenant %s has invalid namespace %q", tenant.ID, tenant.Namespace)
	}

	conn, err := p.pool.Conn(ctx, tenant.Namespace)
	if err != nil {
		return nil, fmt.Errorf("connecting to tenant %s: %w", tenant.ID, err)
	}

	return &Handle{conn: conn, tenantID: tenant.ID, tenantName: tenant.Name}, nil
}

func (p *Provider) record(ctx context.Context, err error) {
	if p.acquired == nil {
		return
	}
	result := "ok"
	var notActive *domain.TenantNotActiveError
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTenantNotFound):
		result = "not_found"
	case errors.As(err, &notActive):
		result = "not_active"
	case errors.Is(err, domain.ErrNoTenant):
		result = "no_tenant"
	default:
		result = "error"
	}
	p.acquired.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
