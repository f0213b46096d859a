package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRejected  Status = "REJECTED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRejected:
		return true
	}
	return false
}

// Event represents an action that triggers a state transition.
type Event string

const (
	EventActivate Event = "activate"
	EventSuspend  Event = "suspend"
	EventReject   Event = "reject"

	// EventProvisioned is published after a tenant is created. It is not a
	// transition and has no entry in Transitions.
	EventProvisioned Event = "provisioned"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the tenant lifecycle.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventActivate, Src: StatusPending, Dst: StatusActive},
	{Event: EventActivate, Src: StatusSuspended, Dst: StatusActive},
	{Event: EventSuspend, Src: StatusActive, Dst: StatusSuspended},
	{Event: EventReject, Src: StatusPending, Dst: StatusRejected},
}

// NamespacePrefix is prepended to a subdomain to form its storage namespace.
const NamespacePrefix = "tenant_"

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]{3,50}$`)

// NormalizeSubdomain lower-cases and trims a user supplied subdomain and
// checks it against the allowed character set. The result is safe to embed
// in a namespace identifier.
func NormalizeSubdomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !subdomainPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubdomain, raw)
	}
	return s, nil
}

// NamespaceFor derives the storage namespace of a validated subdomain.
func NamespaceFor(subdomain string) string {
	return NamespacePrefix + subdomain
}

// ValidNamespace reports whether ns could have been produced by NamespaceFor
// from a valid subdomain. Storage adapters check it before using ns as an
// identifier or file name.
func ValidNamespace(ns string) bool {
	sub, ok := strings.CutPrefix(ns, NamespacePrefix)
	return ok && subdomainPattern.MatchString(sub)
}

// Tenant is one cooperative organization with its own isolated storage.
type Tenant struct {
	ID           string
	Name         string
	Subdomain    string
	Namespace    string
	Status       Status
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTenant creates a tenant in the given initial state. The subdomain must
// already be normalized.
func NewTenant(id, name, subdomain string, status Status) Tenant {
	now := time.Now().UTC()
	return Tenant{
		ID:        id,
		Name:      name,
		Subdomain: subdomain,
		Namespace: NamespaceFor(subdomain),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Bootstrap role names seeded into every namespace.
const (
	RoleAdministrator = "Pengurus"
	RoleMember        = "Anggota"
)

// DefaultRoles are the role records created inside a new namespace.
var DefaultRoles = []string{RoleAdministrator, RoleMember}

// Account is a user record to be written into a tenant namespace.
// PasswordHash is never the plaintext password.
type Account struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
}
