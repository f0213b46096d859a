package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

// uniqueViolation reports whether err is a unique constraint failure of
// either storage driver.
func uniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Handle is a data-access handle bound to exactly one tenant namespace. It
// owns one pooled connection until Release. Queries use '?' placeholders and
// are rebound to the dialect of the underlying driver.
type Handle struct {
	conn       *sqlx.Conn
	tenantID   string
	tenantName string

	once sync.Once
	err  error
}

// TenantID returns the ID of the tenant the handle is bound to.
func (h *Handle) TenantID() string { return h.tenantID }

// TenantName returns the display name of the tenant the handle is bound to.
func (h *Handle) TenantName() string { return h.tenantName }

// ExecContext runs a statement. A unique constraint failure is reported as
// domain.ErrDuplicate wrapping the driver error.
func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := h.conn.ExecContext(ctx, h.conn.Rebind(query), args...)
	if err != nil && uniqueViolation(err) {
		return nil, fmt.Errorf("%w: %w", domain.ErrDuplicate, err)
	}
	return res, err
}

// GetContext scans a single row into dest.
func (h *Handle) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return h.conn.GetContext(ctx, dest, h.conn.Rebind(query), args...)
}

// SelectContext scans all rows into the slice dest.
func (h *Handle) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return h.conn.SelectContext(ctx, dest, h.conn.Rebind(query), args...)
}

// BeginTxx starts a transaction on the handle's connection. Statements run
// through the returned Tx must be passed through tx.Rebind.
func (h *Handle) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return h.conn.BeginTxx(ctx, opts)
}

// Release returns the connection to its namespace pool. It is safe to call
// more than once.
func (h *Handle) Release() error {
	h.once.Do(func() { h.err = h.conn.Close() })
	return h.err
}
