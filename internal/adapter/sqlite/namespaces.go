package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/neomorfeo/koperasi/internal/domain"
)

//go:embed bootstrap/*.sql
var bootstrap embed.FS

// Compile-time check: NamespaceStore implements domain.Provisioner.
var _ domain.Provisioner = (*NamespaceStore)(nil)

// NamespaceStore creates and opens tenant namespaces as database files
// under a data directory.
type NamespaceStore struct {
	dir     *Directory
	dataDir string
}

// NewNamespaceStore creates a store that registers tenants in dir and keeps
// namespace files in dataDir. Namespace databases use the bare driver so that
// Confine can reach their connections.
func NewNamespaceStore(dir *Directory, dataDir string) *NamespaceStore {
	return &NamespaceStore{dir: dir, dataDir: dataDir}
}

// Path returns the file that holds namespace ns.
func (s *NamespaceStore) Path(ns string) string {
	return filepath.Join(s.dataDir, ns+".db")
}

// Provision inserts the directory row and creates the namespace file with its
// bootstrap schema, default roles, and administrator. The directory
// transaction commits only after the namespace is complete; on any failure
// the transaction is rolled back and the namespace file is removed.
func (s *NamespaceStore) Provision(ctx context.Context, tenant domain.Tenant, admin domain.Account) error {
	if !domain.ValidNamespace(tenant.Namespace) {
		return &domain.ProvisioningError{
			Subdomain: tenant.Subdomain,
			Err:       fmt.Errorf("invalid namespace %q", tenant.Namespace),
		}
	}

	tx, err := s.dir.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.ProvisioningError{Subdomain: tenant.Subdomain, Err: fmt.Errorf("beginning transaction: %w", err)}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertTenant(ctx, tx, tenant); err != nil {
		var conflict *domain.SubdomainConflictError
		if errors.As(err, &conflict) {
			return err
		}
		return &domain.ProvisioningError{Subdomain: tenant.Subdomain, Err: err}
	}

	path := s.Path(tenant.Namespace)
	if _, err := os.Stat(path); err == nil {
		return &domain.ProvisioningError{
			Subdomain: tenant.Subdomain,
			Err:       fmt.Errorf("namespace file %s already exists", path),
		}
	}

	if err := s.createNamespace(ctx, path, admin); err != nil {
		if rmErr := removeDatabase(path); rmErr != nil {
			slog.Error("removing partial namespace", "namespace", tenant.Namespace, "error", rmErr)
		}
		return &domain.ProvisioningError{Subdomain: tenant.Subdomain, Err: err}
	}

	if err := tx.Commit(); err != nil {
		if rmErr := removeDatabase(path); rmErr != nil {
			slog.Error("removing orphaned namespace", "namespace", tenant.Namespace, "error", rmErr)
		}
		return &domain.ProvisioningError{Subdomain: tenant.Subdomain, Err: fmt.Errorf("committing directory: %w", err)}
	}

	return nil
}

func (s *NamespaceStore) createNamespace(ctx context.Context, path string, admin domain.Account) error {
	db, err := PlainOpener(DSN(path))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db, bootstrap, "bootstrap"); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning namespace transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := seedNamespace(ctx, tx, admin); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing namespace: %w", err)
	}
	return nil
}

// seedNamespace writes the default roles and the administrator account.
func seedNamespace(ctx context.Context, tx *sql.Tx, admin domain.Account) error {
	for _, role := range domain.DefaultRoles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO roles (name) VALUES (?)`, role); err != nil {
			return fmt.Errorf("seeding role %s: %w", role, err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (role_id, name, email, password_hash)
		 SELECT id, ?, ?, ? FROM roles WHERE name = ?`,
		admin.Name, admin.Email, admin.PasswordHash, admin.Role,
	)
	if err != nil {
		return fmt.Errorf("creating administrator: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("creating administrator: role %q not found", admin.Role)
	}
	return nil
}

// Open opens the database of an existing namespace. It never creates a file.
// Connections taken from it must pass through Confine before use.
func (s *NamespaceStore) Open(_ context.Context, ns string) (*sqlx.DB, error) {
	if !domain.ValidNamespace(ns) {
		return nil, fmt.Errorf("invalid namespace %q", ns)
	}

	path := s.Path(ns)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("namespace %s: %w", ns, err)
	}

	db, err := PlainOpener(DSN(path))
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, "sqlite3"), nil
}

// removeDatabase deletes a database file together with its WAL and shared
// memory files.
func removeDatabase(path string) error {
	var errs []error
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
