package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Store is the tenant-scoped data access a MemberService needs. Queries use
// '?' placeholders.
type Store interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Role is a role record inside a namespace.
type Role struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Member is a user record inside a namespace.
type Member struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Role  string `db:"role"`
}

// Registration is a request to join a cooperative as a member.
type Registration struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

// MemberService works on the users and roles of one tenant namespace. It
// never chooses the namespace: callers pass a store already bound to it.
type MemberService struct {
	hasher domain.PasswordHasher
}

// NewMemberService creates a member service.
func NewMemberService(hasher domain.PasswordHasher) *MemberService {
	return &MemberService{hasher: hasher}
}

// Roles lists the namespace's roles.
func (s *MemberService) Roles(ctx context.Context, store Store) ([]Role, error) {
	roles := []Role{}
	if err := store.SelectContext(ctx, &roles, `SELECT id, name FROM roles ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return roles, nil
}

// Register adds a member with the Anggota role.
func (s *MemberService) Register(ctx context.Context, store Store, reg Registration) (Member, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if err := validateStruct(reg); err != nil {
		return Member{}, err
	}

	var taken int
	if err := store.GetContext(ctx, &taken, `SELECT COUNT(*) FROM users WHERE email = ?`, reg.Email); err != nil {
		return Member{}, fmt.Errorf("checking email: %w", err)
	}
	if taken > 0 {
		return Member{}, domain.ErrEmailTaken
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return Member{}, fmt.Errorf("hashing password: %w", err)
	}

	result, err := store.ExecContext(ctx,
		`INSERT INTO users (role_id, name, email, password_hash)
		 SELECT id, ?, ?, ? FROM roles WHERE name = ?`,
		reg.Name, reg.Email, hash, domain.RoleMember,
	)
	if errors.Is(err, domain.ErrDuplicate) {
		// Lost a race with a concurrent registration of the same email.
		return Member{}, domain.ErrEmailTaken
	}
	if err != nil {
		return Member{}, fmt.Errorf("registering member: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil || n != 1 {
		return Member{}, fmt.Errorf("registering member: role %q not found", domain.RoleMember)
	}

	var m Member
	err = store.GetContext(ctx, &m,
		`SELECT u.id, u.name, u.email, r.name AS role
		 FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.email = ?`, reg.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("registering member: %s vanished after insert", reg.Email)
	}
	if err != nil {
		return Member{}, fmt.Errorf("reading member: %w", err)
	}
	return m, nil
}
