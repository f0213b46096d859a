package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/hkdf"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Compile-time check: SchemaStore implements domain.Provisioner.
var _ domain.Provisioner = (*SchemaStore)(nil)

// bootstrap creates the tables of a fresh namespace. It runs with search_path
// set to the namespace schema.
var bootstrap = []string{
	`CREATE TABLE roles (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE users (
		id            BIGSERIAL PRIMARY KEY,
		role_id       BIGINT NOT NULL REFERENCES roles (id),
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE CHECK (email <> ''),
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// grants give a namespace role the data of its own schema and nothing else.
var grants = []string{
	`GRANT USAGE ON SCHEMA %[1]s TO %[1]s`,
	`GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA %[1]s TO %[1]s`,
	`GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA %[1]s TO %[1]s`,
}

// Connect turns a connector into a *sql.DB. It lets callers substitute an
// instrumented constructor.
type Connect func(driver.Connector) *sql.DB

// SchemaStore creates tenant schemas and opens connections confined to them.
// Every namespace has a login role of the same name that may use only its own
// schema; namespace connections log in as that role, so qualified names of
// the directory or another schema are refused by the server.
type SchemaStore struct {
	dir     *Directory
	config  *pgx.ConnConfig
	secret  []byte
	connect Connect
}

// NewSchemaStore creates a store that registers tenants in dir and opens
// namespace connections with the host settings of dsn. Role passwords are
// derived from secret. A nil connect uses sql.OpenDB. The dsn's role needs
// CREATEROLE.
func NewSchemaStore(dir *Directory, dsn, secret string, connect Connect) (*SchemaStore, error) {
	if secret == "" {
		return nil, errors.New("namespace role secret is required")
	}
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if connect == nil {
		connect = sql.OpenDB
	}
	return &SchemaStore{dir: dir, config: config, secret: []byte(secret), connect: connect}, nil
}

// rolePassword derives the login password of namespace ns's role.
func (s *SchemaStore) rolePassword(ns string) (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, nil, []byte(ns)), key); err != nil {
		return "", fmt.Errorf("deriving role password: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Provision inserts the directory row, creates the namespace role and schema
// with its tables, seeds roles and the administrator, and grants the role its
// schema, all in one transaction.
func (s *SchemaStore) Provision(ctx context.Context, tenant domain.Tenant, admin domain.Account) error {
	if !domain.ValidNamespace(tenant.Namespace) {
		return &domain.ProvisioningError{
			Subdomain: tenant.Subdomain,
			Err:       fmt.Errorf("invalid namespace %q", tenant.Namespace),
		}
	}

	fail := func(err error) error {
		return &domain.ProvisioningError{Subdomain: tenant.Subdomain, Err: err}
	}

	tx, err := s.dir.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertTenant(ctx, tx, tenant); err != nil {
		var conflict *domain.SubdomainConflictError
		if errors.As(err, &conflict) {
			return err
		}
		return fail(err)
	}

	password, err := s.rolePassword(tenant.Namespace)
	if err != nil {
		return fail(err)
	}
	// The schema and its role share the namespace name. The password is hex,
	// so it needs no escaping inside the literal.
	schema := pgx.Identifier{tenant.Namespace}.Sanitize()
	if _, err := tx.ExecContext(ctx, `CREATE ROLE `+schema+` LOGIN NOINHERIT PASSWORD '`+password+`'`); err != nil {
		return fail(fmt.Errorf("creating role: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		return fail(fmt.Errorf("creating schema: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `SET LOCAL search_path TO `+schema); err != nil {
		return fail(fmt.Errorf("setting search path: %w", err))
	}
	for _, stmt := range bootstrap {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fail(fmt.Errorf("bootstrapping namespace: %w", err))
		}
	}
	if err := seedNamespace(ctx, tx, admin); err != nil {
		return fail(err)
	}
	for _, grant := range grants {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(grant, schema)); err != nil {
			return fail(fmt.Errorf("granting namespace role: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("committing: %w", err))
	}
	return nil
}

func seedNamespace(ctx context.Context, tx *sql.Tx, admin domain.Account) error {
	for _, role := range domain.DefaultRoles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO roles (name) VALUES ($1)`, role); err != nil {
			return fmt.Errorf("seeding role %s: %w", role, err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (role_id, name, email, password_hash)
		 SELECT id, $1, $2, $3 FROM roles WHERE name = $4`,
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

// Open returns a database whose connections log in as the role of ns and
// resolve unqualified names in schema ns.
func (s *SchemaStore) Open(ctx context.Context, ns string) (*sqlx.DB, error) {
	if !domain.ValidNamespace(ns) {
		return nil, fmt.Errorf("invalid namespace %q", ns)
	}

	var exists bool
	err := s.dir.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, ns,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("looking up schema %s: %w", ns, err)
	}
	if !exists {
		return nil, fmt.Errorf("schema %s does not exist", ns)
	}

	password, err := s.rolePassword(ns)
	if err != nil {
		return nil, err
	}

	config := s.config.Copy()
	config.User = ns
	config.Password = password
	config.RuntimeParams = maps.Clone(s.config.RuntimeParams)
	if config.RuntimeParams == nil {
		config.RuntimeParams = map[string]string{}
	}
	config.RuntimeParams["search_path"] = pgx.Identifier{ns}.Sanitize()

	return sqlx.NewDb(s.connect(stdlib.GetConnector(*config)), DriverName), nil
}
