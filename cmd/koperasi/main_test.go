package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/neomorfeo/koperasi/internal/config"
)

// setEnv points run() at a temp data directory with telemetry disabled.
func setEnv(t *testing.T, port string) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("PORT", port)
	t.Setenv("PLATFORM_HOSTS", "platform.test,localhost,127.0.0.1")
	t.Setenv("OTEL_EXPORTER", "none")
	t.Setenv("OTEL_ENVIRONMENT", "test")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")
	return dataDir
}

func request(t *testing.T, method, url, host, body string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if host != "" {
		req.Host = host
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

// TestRun exercises the real run() function end-to-end: config, OTel,
// storage, River, the HTTP server, and graceful shutdown.
func TestRun(t *testing.T) {
	dataDir := setEnv(t, "19876")

	errCh := make(chan error, 1)
	go func() { errCh <- run() }()

	// Wait for the HTTP server to become ready.
	serverURL := "http://localhost:19876"
	ready := false
	for range 50 {
		resp, reqErr := request(t, http.MethodGet, serverURL+"/api/v1/tenants", "", "")
		if reqErr == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("server did not start within 5 seconds")
	}

	// Signup on the platform host provisions a namespace file.
	resp, err := request(t, http.MethodPost, serverURL+"/api/v1/signup", "platform.test",
		`{"name":"Koperasi Maju Jaya","subdomain":"majujaya","admin_name":"Budi","admin_email":"budi@majujaya.id","admin_password":"rahasia123"}`)
	if err != nil {
		t.Fatalf("POST /api/v1/signup failed: %v", err)
	}
	var tenant struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tenant); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || tenant.Status != "PENDING" {
		t.Fatalf("signup: status = %d, tenant = %+v", resp.StatusCode, tenant)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "tenant_majujaya.db")); err != nil {
		t.Errorf("namespace file missing: %v", err)
	}

	// The tenant host is refused until activation.
	resp, err = request(t, http.MethodGet, serverURL+"/api/v1/roles", "majujaya.platform.test", "")
	if err != nil {
		t.Fatalf("GET /api/v1/roles failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("roles before activation: status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp, err = request(t, http.MethodPost, serverURL+"/api/v1/tenants/"+tenant.ID+"/activate", "platform.test", "")
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	resp.Body.Close()

	resp, err = request(t, http.MethodGet, serverURL+"/api/v1/roles", "majujaya.platform.test", "")
	if err != nil {
		t.Fatalf("GET /api/v1/roles failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("roles after activation: status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Send SIGINT to trigger graceful shutdown.
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("finding process: %v", err)
	}
	if err := proc.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("sending SIGINT: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not exit within 10 seconds")
	}
}

// TestRun_InvalidDataDir verifies run() fails when the data directory cannot
// be created.
func TestRun_InvalidDataDir(t *testing.T) {
	setEnv(t, "19877")

	// A regular file where a directory is expected.
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatalf("creating file: %v", err)
	}
	t.Setenv("DATA_DIR", filepath.Join(file, "data"))

	if err := run(); err == nil {
		t.Fatal("expected error for an unusable data directory, got nil")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	setEnv(t, "19878")
	t.Setenv("STORAGE_DRIVER", "mysql")

	err := run()
	if err == nil || !strings.Contains(err.Error(), "STORAGE_DRIVER") {
		t.Fatalf("expected a STORAGE_DRIVER error, got %v", err)
	}
}

func TestOpenStorage_SQLite(t *testing.T) {
	cfg := config.Config{StorageDriver: config.DriverSQLite, DataDir: filepath.Join(t.TempDir(), "nested", "data")}

	st, err := openStorage(cfg)
	if err != nil {
		t.Fatalf("openStorage failed: %v", err)
	}
	defer st.Close()

	if len(st.opts) != 1 {
		t.Errorf("sqlite storage should confine namespace connections, got %d pool options", len(st.opts))
	}
	if st.db.Stats().MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", st.db.Stats().MaxOpenConnections)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "directory.db")); err != nil {
		t.Errorf("directory database missing: %v", err)
	}
	if _, err := st.open(context.Background(), "tenant_ghost"); err == nil {
		t.Error("opening an unprovisioned namespace should fail")
	}
}
