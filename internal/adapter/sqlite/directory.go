package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/neomorfeo/koperasi/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Directory implements domain.TenantRepository.
var _ domain.TenantRepository = (*Directory)(nil)

// Directory is the global tenant directory stored in its own SQLite file.
type Directory struct {
	db *sql.DB
}

// New opens the directory database at path, runs migrations, and returns a
// ready directory.
func New(path string) (*Directory, error) {
	db, err := PlainOpener(DSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	d, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready directory.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Directory, error) {
	if err := migrate(context.Background(), db, migrations, "migrations"); err != nil {
		return nil, err
	}
	return &Directory{db: db}, nil
}

// Close closes the underlying database connection.
func (d *Directory) Close() error {
	return d.db.Close()
}

func migrate(ctx context.Context, db *sql.DB, fsys embed.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

const timeFormat = "2006-01-02T15:04:05.000000Z"

const selectTenant = `SELECT id, name, subdomain, namespace, status, status_reason, created_at, updated_at FROM tenants`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertTenant writes a directory row. Uniqueness of subdomain and namespace
// is enforced by the table, not by a prior read.
func insertTenant(ctx context.Context, ex execer, t domain.Tenant) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO tenants (id, name, subdomain, namespace, status, status_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subdomain, t.Namespace, string(t.Status), t.StatusReason,
		t.CreatedAt.UTC().Format(timeFormat),
		t.UpdatedAt.UTC().Format(timeFormat),
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
	return scanTenant(d.db.QueryRowContext(ctx, selectTenant+` WHERE id = ?`, id))
}

func (d *Directory) GetBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error) {
	return scanTenant(d.db.QueryRowContext(ctx, selectTenant+` WHERE subdomain = ?`, subdomain))
}

func (d *Directory) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := selectTenant
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
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
		`UPDATE tenants SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("updating tenant name: %w", err)
	}
	return expectOneRow(result, domain.ErrTenantNotFound)
}

func (d *Directory) UpdateStatus(ctx context.Context, id string, from, to domain.Status, reason string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE tenants SET status = ?, status_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), reason, time.Now().UTC().Format(timeFormat), id, string(from),
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

// scanTenant scans one directory row from either *sql.Row or *sql.Rows.
func scanTenant(row scanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status, createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Namespace, &status, &t.StatusReason, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = domain.Status(status)
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return t, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
