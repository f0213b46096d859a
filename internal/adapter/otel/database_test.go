package otel_test

import (
	"context"
	"path/filepath"
	"testing"

	adapter "github.com/neomorfeo/koperasi/internal/adapter/otel"
	"github.com/neomorfeo/koperasi/internal/adapter/sqlite"
)

func TestOpenDB_TracesQueries(t *testing.T) {
	exporter := setupTestTracer(t)

	dsn := sqlite.DSN(filepath.Join(t.TempDir(), "traced.db"))
	db, err := adapter.OpenDB(sqlite.DriverName, dsn, adapter.SystemSQLite)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(context.Background(), "CREATE TABLE notes (body TEXT)"); err != nil {
		t.Fatalf("exec: %v", err)
	}

	if len(exporter.GetSpans()) == 0 {
		t.Error("expected at least one database span")
	}
}
