package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// maxTransitionAttempts bounds how often a transition re-reads the tenant
// after losing a compare-and-set race.
const maxTransitionAttempts = 3

// TenantService orchestrates provisioning and lifecycle transitions.
type TenantService struct {
	repo        domain.TenantRepository
	provisioner domain.Provisioner
	validator   domain.TransitionValidator
	publisher   domain.EventPublisher
	hasher      domain.PasswordHasher
}

// NewTenantService creates a service with the given adapters.
func NewTenantService(
	repo domain.TenantRepository,
	provisioner domain.Provisioner,
	validator domain.TransitionValidator,
	publisher domain.EventPublisher,
	hasher domain.PasswordHasher,
) *TenantService {
	return &TenantService{
		repo:        repo,
		provisioner: provisioner,
		validator:   validator,
		publisher:   publisher,
		hasher:      hasher,
	}
}

// ProvisionRequest describes a new cooperative and its first administrator.
type ProvisionRequest struct {
	Name          string `validate:"required,max=120"`
	Subdomain     string `validate:"required"`
	AdminName     string `validate:"required,max=120"`
	AdminEmail    string `validate:"required,email"`
	AdminPassword string `validate:"required,min=8,max=72"`
	// Activate creates the tenant ACTIVE instead of PENDING. Only operators
	// may set it.
	Activate bool
}

// Provision creates a tenant with its isolated namespace and administrator.
func (s *TenantService) Provision(ctx context.Context, req ProvisionRequest) (domain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.AdminName = strings.TrimSpace(req.AdminName)
	req.AdminEmail = strings.ToLower(strings.TrimSpace(req.AdminEmail))
	if err := validateStruct(req); err != nil {
		return domain.Tenant{}, err
	}

	subdomain, err := domain.NormalizeSubdomain(req.Subdomain)
	if err != nil {
		return domain.Tenant{}, err
	}

	// Fast path; the directory's unique constraint still arbitrates races.
	if _, err := s.repo.GetBySubdomain(ctx, subdomain); err == nil {
		return domain.Tenant{}, &domain.SubdomainConflictError{Subdomain: subdomain}
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		return domain.Tenant{}, fmt.Errorf("checking subdomain: %w", err)
	}

	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("hashing admin password: %w", err)
	}

	status := domain.StatusPending
	if req.Activate {
		status = domain.StatusActive
	}
	tenant := domain.NewTenant(generateID(), req.Name, subdomain, status)

	admin := domain.Account{
		Name:         req.AdminName,
		Email:        req.AdminEmail,
		PasswordHash: hash,
		Role:         domain.RoleAdministrator,
	}

	if err := s.provisioner.Provision(ctx, tenant, admin); err != nil {
		var provErr *domain.ProvisioningError
		if errors.As(err, &provErr) {
			slog.ErrorContext(ctx, "provisioning rolled back",
				"tenant_id", tenant.ID,
				"subdomain", subdomain,
				"error", provErr.Err,
			)
		}
		return domain.Tenant{}, err
	}

	slog.InfoContext(ctx, "tenant provisioned",
		"tenant_id", tenant.ID,
		"subdomain", subdomain,
		"status", tenant.Status,
	)
	s.publish(ctx, domain.EventProvisioned, tenant)

	return tenant, nil
}

// GetByID returns a tenant by its unique identifier.
func (s *TenantService) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// Actions returns the lifecycle events an operator may apply to t next.
func (s *TenantService) Actions(t domain.Tenant) []domain.Event {
	return s.validator.Available(t.Status)
}

// List returns tenants matching the given filter.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}

// ListPending returns the tenants awaiting payment or approval.
func (s *TenantService) ListPending(ctx context.Context) ([]domain.Tenant, error) {
	status := domain.StatusPending
	return s.repo.List(ctx, domain.ListFilter{Status: &status})
}

// Rename changes a tenant's display name.
func (s *TenantService) Rename(ctx context.Context, id, name string) (domain.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tenant{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if err := s.repo.UpdateName(ctx, id, name); err != nil {
		return domain.Tenant{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// Activate makes a PENDING or SUSPENDED tenant ACTIVE. Activating an ACTIVE
// tenant returns it unchanged without error.
func (s *TenantService) Activate(ctx context.Context, id string) (domain.Tenant, error) {
	return s.transition(ctx, id, domain.EventActivate, "")
}

// Suspend blocks an ACTIVE tenant.
func (s *TenantService) Suspend(ctx context.Context, id, reason string) (domain.Tenant, error) {
	return s.transition(ctx, id, domain.EventSuspend, reason)
}

// Reject permanently refuses a PENDING tenant.
func (s *TenantService) Reject(ctx context.Context, id, reason string) (domain.Tenant, error) {
	return s.transition(ctx, id, domain.EventReject, reason)
}

func (s *TenantService) transition(ctx context.Context, id string, event domain.Event, reason string) (domain.Tenant, error) {
	for range maxTransitionAttempts {
		tenant, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return domain.Tenant{}, err
		}

		if event == domain.EventActivate && tenant.Status == domain.StatusActive {
			return tenant, nil
		}

		next, err := s.validator.Apply(ctx, tenant.Status, event)
		if err != nil {
			return domain.Tenant{}, err
		}

		err = s.repo.UpdateStatus(ctx, id, tenant.Status, next, reason)
		if errors.Is(err, domain.ErrStatusChanged) {
			continue
		}
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("updating tenant status: %w", err)
		}

		tenant.Status = next
		tenant.StatusReason = reason
		tenant.UpdatedAt = time.Now().UTC()

		slog.InfoContext(ctx, "tenant transitioned",
			"tenant_id", tenant.ID,
			"subdomain", tenant.Subdomain,
			"event", event,
			"status", next,
		)
		s.publish(ctx, event, tenant)

		return tenant, nil
	}

	return domain.Tenant{}, fmt.Errorf("applying %s to tenant %s: %w", event, id, domain.ErrStatusChanged)
}

// publish emits a lifecycle event. The state change is already committed, so
// a failure is logged rather than returned.
func (s *TenantService) publish(ctx context.Context, event domain.Event, tenant domain.Tenant) {
	if err := s.publisher.Publish(ctx, event, tenant); err != nil {
		slog.ErrorContext(ctx, "publishing tenant event",
			"event", event,
			"tenant_id", tenant.ID,
			"error", err,
		)
	}
}
