package otel

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Database system attributes for the supported storage drivers.
var (
	SystemSQLite   = semconv.DBSystemSqlite
	SystemPostgres = semconv.DBSystemPostgreSQL
)

// OpenDB opens a long-lived database with OpenTelemetry instrumentation.
// The returned *sql.DB traces every SQL operation and reports connection
// pool metrics.
func OpenDB(driverName, dsn string, system attribute.KeyValue) (*sql.DB, error) {
	db, err := otelsql.Open(driverName, dsn, otelsql.WithAttributes(system))
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system)); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}

// OpenConnector returns a constructor that wraps connectors with tracing.
// Postgres namespace databases come and go with the pool, so they do not
// register pool metrics.
func OpenConnector(system attribute.KeyValue) func(driver.Connector) *sql.DB {
	return func(c driver.Connector) *sql.DB {
		return otelsql.OpenDB(c, otelsql.WithAttributes(system))
	}
}
