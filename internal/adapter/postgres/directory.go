// Package postgres stores the tenant directory in the public schema and each
// tenant namespace in a schema of its own. Namespace connections log in as a
// role that may use only their schema, with search_path pinned to it.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Directory implements domain.TenantRepository.
var _ domain.TenantRepository = (*Directory)(nil)

// Directory is the global tenant directory.
type Directory struct {
	db *sql.DB
}

// New connects to dsn, runs migrations, and returns a ready directory.
func New(dsn string) (*Directory, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready directory.
func NewFromDB(db *sql.DB) (*Directory, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return nil, fmt.Errorf("creating goose provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Directory{db: db}, nil
}

// Close closes the underlying database connection.
func (d *Directory) Close() error {
	return d.db.Close()
}

const selectTenant = `SELECT id, name, subdomain, namespace, status, status_reason, created_at, updated_at FROM tenants`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTenant(ctx context.Context, ex execer, t domain.Tenant) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO tenants (id, name, subdomain, namespace, status, status_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Subdomain, t.Namespace, string(t.Status), t.StatusReason, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.SubdomainConflictError{Subdomain: t.Subdomain}
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

func (d *Directory) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(d.db.QueryRowContext(ctx, selectTenant+` WHERE id = $1`, id))
}

func (d *Directory) GetBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error) {
	return scanTenant(d.db.QueryRowContext(ctx, selectTenant+` WHERE subdomain = $1`, subdomain))
}

func (d *Directory) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := selectTenant
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}

	query += ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	tenants := []domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (d *Directory) UpdateName(ctx context.Context, id, name string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE tenants SET name = $1, updated_at = $2 WHERE id = $3`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating tenant name: %w", err)
	}
	return expectOneRow(result, domain.ErrTenantNotFound)
}

func (d *Directory) UpdateStatus(ctx context.Context, id string, from, to domain.Status, reason string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE tenants SET status = $1, status_reason = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(to), reason, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}

	if err := expectOneRow(result, domain.ErrStatusChanged); err != nil {
		if _, getErr := d.GetByID(ctx, id); errors.Is(getErr, domain.ErrTenantNotFound) {
			return domain.ErrTenantNotFound
		}
		return err
	}
	return nil
}

func expectOneRow(result sql.Result, none error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return none
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status string

	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Namespace, &status, &t.StatusReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = domain.Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
