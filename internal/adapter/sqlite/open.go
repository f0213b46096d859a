// Package sqlite stores the tenant directory and every tenant namespace in
// SQLite. The directory is one database file; each namespace is a separate
// file next to it. Namespace connections are confined to their own file by
// forbidding ATTACH.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DSN returns the connection string for the database file at path with
// foreign keys on, WAL journaling, a busy timeout, and immediate write
// transactions.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// PlainOpener opens dsn with the bare modernc driver.
func PlainOpener(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// Confine stops conn from attaching other database files, which would reach
// the directory or another namespace. It needs a connection of the bare
// modernc driver, as opened by PlainOpener.
func Confine(_ context.Context, conn *sqlx.Conn) error {
	if _, err := moderncsqlite.Limit(conn.Conn, sqlite3.SQLITE_LIMIT_ATTACHED, 0); err != nil {
		return fmt.Errorf("limiting attached databases: %w", err)
	}
	return nil
}
