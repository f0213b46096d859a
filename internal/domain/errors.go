package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrInvalidSubdomain = errors.New("invalid subdomain")
	ErrNoTenant         = errors.New("request is not bound to a tenant")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmailTaken       = errors.New("email is already registered")

	// ErrStatusChanged is returned by a compare-and-set status write when the
	// stored status no longer matches the expected one.
	ErrStatusChanged = errors.New("tenant status changed concurrently")

	// ErrDuplicate marks a write inside a namespace that broke a unique
	// constraint.
	ErrDuplicate = errors.New("duplicate record")

	ErrWebhookVerification   = errors.New("payment notification failed verification")
	ErrMalformedNotification = errors.New("malformed payment notification")
)

// SubdomainConflictError is returned when a subdomain is already registered.
type SubdomainConflictError struct {
	Subdomain string
}

func (e *SubdomainConflictError) Error() string {
	return fmt.Sprintf("subdomain %q is already in use", e.Subdomain)
}

// TenantNotActiveError is returned when a tenant exists but may not be served.
type TenantNotActiveError struct {
	Name   string
	Status Status
}

func (e *TenantNotActiveError) Error() string {
	return fmt.Sprintf("cooperative %q is not active", e.Name)
}

// ProvisioningError wraps a storage failure during tenant creation. Its
// message never includes the underlying error text; use errors.Unwrap or
// the Err field for logging.
type ProvisioningError struct {
	Subdomain string
	Err       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning cooperative %q failed", e.Subdomain)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}
