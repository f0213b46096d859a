package domain

import "context"

// TenantRepository defines the persistence contract for the tenant directory.
// Rows are inserted only by a Provisioner.
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	UpdateName(ctx context.Context, id, name string) error
	// UpdateStatus moves a tenant from one status to another in a single
	// write. It returns ErrStatusChanged if the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to Status, reason string) error
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Provisioner creates a tenant's directory row and isolated namespace as one
// unit: either both exist afterwards or neither does.
type Provisioner interface {
	Provision(ctx context.Context, tenant Tenant, admin Account) error
}

// TransitionValidator validates lifecycle events against Transitions.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
	// Available lists the events that may be applied from current.
	Available(current Status) []Event
}

// EventPublisher defines the contract for emitting domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, tenant Tenant) error
}

// PasswordHasher turns a plaintext password into a slow salted hash.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	// Verify authenticates a raw notification payload and extracts its fields.
	Verify(ctx context.Context, payload []byte) (PaymentNotification, error)
	CreateSession(ctx context.Context, tenant Tenant, amount int64) (PaymentSession, error)
}

// ActivationQueue schedules the activation of a tenant after a confirmed payment.
type ActivationQueue interface {
	EnqueueActivation(ctx context.Context, tenantID, transactionID string) error
}
