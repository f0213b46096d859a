package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	adapter "github.com/neomorfeo/koperasi/internal/adapter/http"
	"github.com/neomorfeo/koperasi/internal/adapter/fsm"
	"github.com/neomorfeo/koperasi/internal/adapter/midtrans"
	"github.com/neomorfeo/koperasi/internal/adapter/password"
	"github.com/neomorfeo/koperasi/internal/adapter/pool"
	"github.com/neomorfeo/koperasi/internal/adapter/sqlite"
	"github.com/neomorfeo/koperasi/internal/app"
	"github.com/neomorfeo/koperasi/internal/domain"
	"github.com/neomorfeo/koperasi/internal/tenancy"
)

const (
	serverKey    = "SB-Mid-server-test"
	platformHost = "platform.test"
)

// noopPublisher is a no-op EventPublisher for tests.
type noopPublisher struct{}

func (p *noopPublisher) Publish(_ context.Context, _ domain.Event, _ domain.Tenant) error {
	return nil
}

// newTestServer creates a full-stack httptest.Server over a temporary data
// directory. Payments activate synchronously; Snap calls hit a local stub.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dataDir := t.TempDir()

	dir, err := sqlite.New(filepath.Join(dataDir, "directory.db"))
	if err != nil {
		t.Fatalf("creating directory: %v", err)
	}
	t.Cleanup(func() { dir.Close() })

	store := sqlite.NewNamespaceStore(dir, dataDir)
	namespaces := pool.New(store.Open, 8, time.Minute, pool.WithConnHook(sqlite.Confine))
	t.Cleanup(func() { namespaces.Close() })

	snap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"token":"snap-token","redirect_url":"https://app.sandbox.midtrans.com/snap/v4/redirection/snap-token"}`)
	}))
	t.Cleanup(snap.Close)

	hasher := password.NewHasher(4)
	tenants := app.NewTenantService(dir, store, fsm.New(), &noopPublisher{}, hasher)
	gateway := midtrans.New(midtrans.Config{ServerKey: serverKey, SnapURL: snap.URL})

	router := chi.NewMux()
	router.Use(tenancy.Middleware(
		tenancy.NewHostResolver([]string{platformHost}),
		tenancy.NewProvider(dir, namespaces),
	))

	api := humachi.New(router, huma.DefaultConfig("koperasi", "0.1.0"))
	adapter.Register(api, adapter.Services{
		Tenants:  tenants,
		Payments: app.NewPaymentService(gateway, app.DirectActivation{Tenants: tenants}, dir, 150000),
		Members:  app.NewMemberService(hasher),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv
}

// doRequest performs an HTTP request against srv as if addressed to host.
func doRequest(t *testing.T, srv *httptest.Server, host, method, path, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Host = host

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
}

func signupBody(subdomain string) string {
	return fmt.Sprintf(`{"name":"Koperasi %s","subdomain":%q,"admin_name":"Budi","admin_email":"budi@%s.id","admin_password":"rahasia123"}`,
		subdomain, subdomain, subdomain)
}

// mustSignup registers a cooperative via the API and returns its response.
func mustSignup(t *testing.T, srv *httptest.Server, subdomain string) adapter.TenantResponse {
	t.Helper()

	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/signup", signupBody(subdomain))
	expectStatus(t, resp, http.StatusCreated)
	return decode[adapter.TenantResponse](t, resp)
}

func mustActivate(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants/"+id+"/activate", "")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// --- Signup and operator create ---

func TestSignup(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")

	if tenant.ID == "" {
		t.Error("ID should not be empty")
	}
	if tenant.Subdomain != "majujaya" {
		t.Errorf("Subdomain = %q, want %q", tenant.Subdomain, "majujaya")
	}
	if tenant.Status != string(domain.StatusPending) {
		t.Errorf("Status = %q, want %q", tenant.Status, domain.StatusPending)
	}
	if tenant.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
}

func TestSignup_DuplicateSubdomain(t *testing.T) {
	srv := newTestServer(t)
	mustSignup(t, srv, "majujaya")

	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/signup", signupBody("MajuJaya"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestSignup_InvalidSubdomain(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/signup", signupBody("maju-jaya"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestSignup_NotOnTenantHost(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, "majujaya."+platformHost, http.MethodPost, "/api/v1/signup", signupBody("lain"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestCreate_Activated(t *testing.T) {
	srv := newTestServer(t)

	body := strings.TrimSuffix(signupBody("majujaya"), "}") + `,"activate":true}`
	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants", body)
	expectStatus(t, resp, http.StatusCreated)

	tenant := decode[adapter.TenantResponse](t, resp)
	if tenant.Status != string(domain.StatusActive) {
		t.Errorf("Status = %q, want %q", tenant.Status, domain.StatusActive)
	}
}

// --- Queries ---

func TestGet_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/tenants/ghost", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestList_FilterAndPending(t *testing.T) {
	srv := newTestServer(t)
	a := mustSignup(t, srv, "alpha")
	mustSignup(t, srv, "bravo")
	mustActivate(t, srv, a.ID)

	resp := doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/tenants?status=ACTIVE", "")
	expectStatus(t, resp, http.StatusOK)
	active := decode[[]adapter.TenantResponse](t, resp)
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("active = %+v, want only alpha", active)
	}

	resp = doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/tenants/pending", "")
	expectStatus(t, resp, http.StatusOK)
	pending := decode[[]adapter.TenantResponse](t, resp)
	if len(pending) != 1 || pending[0].Subdomain != "bravo" {
		t.Errorf("pending = %+v, want only bravo", pending)
	}

	resp = doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/tenants?status=bogus", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bogus status filter: status = %d, want 422", resp.StatusCode)
	}
}

func TestList_Empty(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/tenants", "")
	expectStatus(t, resp, http.StatusOK)
	if tenants := decode[[]adapter.TenantResponse](t, resp); len(tenants) != 0 {
		t.Errorf("got %d tenants, want 0", len(tenants))
	}
}

func TestRename(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")

	resp := doRequest(t, srv, platformHost, http.MethodPatch, "/api/v1/tenants/"+tenant.ID, `{"name":"Koperasi Baru"}`)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[adapter.TenantResponse](t, resp); got.Name != "Koperasi Baru" {
		t.Errorf("Name = %q", got.Name)
	}
}

// --- Lifecycle ---

func TestLifecycle(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")
	path := "/api/v1/tenants/" + tenant.ID

	// PENDING cannot be suspended.
	resp := doRequest(t, srv, platformHost, http.MethodPost, path+"/suspend", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("suspend pending: status = %d, want 422", resp.StatusCode)
	}

	mustActivate(t, srv, tenant.ID)
	// Activating again is a no-op.
	mustActivate(t, srv, tenant.ID)

	resp = doRequest(t, srv, platformHost, http.MethodPost, path+"/suspend", `{"reason":"audit"}`)
	expectStatus(t, resp, http.StatusOK)
	got := decode[adapter.TenantResponse](t, resp)
	if got.Status != string(domain.StatusSuspended) || got.StatusReason != "audit" {
		t.Errorf("after suspend: %+v", got)
	}

	resp = doRequest(t, srv, platformHost, http.MethodPost, path+"/reject", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("reject suspended: status = %d, want 422", resp.StatusCode)
	}
}

func TestReject(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")

	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants/"+tenant.ID+"/reject", `{"reason":"dokumen tidak lengkap"}`)
	expectStatus(t, resp, http.StatusOK)
	got := decode[adapter.TenantResponse](t, resp)
	if got.Status != string(domain.StatusRejected) || got.StatusReason != "dokumen tidak lengkap" {
		t.Errorf("after reject: %+v", got)
	}
}

func TestSuspendAndReject_WithoutReason(t *testing.T) {
	srv := newTestServer(t)
	active := mustSignup(t, srv, "majujaya")
	mustActivate(t, srv, active.ID)
	pending := mustSignup(t, srv, "sejahtera")

	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants/"+active.ID+"/suspend", "")
	expectStatus(t, resp, http.StatusOK)
	got := decode[adapter.TenantResponse](t, resp)
	if got.Status != string(domain.StatusSuspended) || got.StatusReason != "" {
		t.Errorf("after suspend: %+v", got)
	}

	resp = doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants/"+pending.ID+"/reject", "")
	expectStatus(t, resp, http.StatusOK)
	got = decode[adapter.TenantResponse](t, resp)
	if got.Status != string(domain.StatusRejected) || got.StatusReason != "" {
		t.Errorf("after reject: %+v", got)
	}
}

func TestTenantActions(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")
	path := "/api/v1/tenants/" + tenant.ID

	tests := []struct {
		action string
		want   []string
	}{
		{"", []string{"activate", "reject"}},
		{"/activate", []string{"suspend"}},
		{"/suspend", []string{"activate"}},
	}
	for _, tc := range tests {
		method := http.MethodGet
		if tc.action != "" {
			method = http.MethodPost
		}
		resp := doRequest(t, srv, platformHost, method, path+tc.action, "")
		expectStatus(t, resp, http.StatusOK)
		got := decode[adapter.TenantResponse](t, resp)
		if !slices.Equal(got.Actions, tc.want) {
			t.Errorf("%s %s: actions = %v, want %v", got.Status, tc.action, got.Actions, tc.want)
		}
	}
}

// --- Payments ---

func notification(orderID, status, fraud, signature string) string {
	if signature == "" {
		signature = midtrans.Signature(orderID, "200", "150000.00", serverKey)
	}
	return fmt.Sprintf(
		`{"order_id":%q,"transaction_id":"trx-1","transaction_status":%q,"fraud_status":%q,"status_code":"200","gross_amount":"150000.00","signature_key":%q}`,
		orderID, status, fraud, signature)
}

func TestPaymentSession(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")

	resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants/"+tenant.ID+"/payment-session", "")
	expectStatus(t, resp, http.StatusCreated)
	session := decode[map[string]string](t, resp)
	if session["order_id"] != tenant.ID || session["token"] != "snap-token" {
		t.Errorf("session = %v", session)
	}

	mustActivate(t, srv, tenant.ID)
	resp = doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/tenants/"+tenant.ID+"/payment-session", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("active tenant: status = %d, want 422", resp.StatusCode)
	}
}

func TestPaymentNotification_ActivatesTenant(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")
	tenantHost := "majujaya." + platformHost

	resp := doRequest(t, srv, tenantHost, http.MethodGet, "/api/v1/roles", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("pending tenant host: status = %d, want 403", resp.StatusCode)
	}

	body := notification(tenant.ID, domain.TransactionSettlement, domain.FraudAccept, "")
	for range 2 {
		resp = doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/payments/notifications", body)
		expectStatus(t, resp, http.StatusOK)
		if got := decode[map[string]string](t, resp); got["status"] != "queued" {
			t.Errorf("outcome = %q, want queued", got["status"])
		}
	}

	resp = doRequest(t, srv, tenantHost, http.MethodGet, "/api/v1/roles", "")
	expectStatus(t, resp, http.StatusOK)
	roles := decode[[]adapter.RoleResponse](t, resp)
	if len(roles) != 2 || roles[0].Name != domain.RoleAdministrator {
		t.Errorf("roles = %+v", roles)
	}
}

func TestPaymentNotification_Ignored(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")

	bodies := map[string]string{
		"forged":   notification(tenant.ID, domain.TransactionSettlement, "", "deadbeef"),
		"pending":  notification(tenant.ID, "pending", "", ""),
		"unknown":  notification("ghost", domain.TransactionSettlement, "", ""),
		"not json": `order_id=1`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			resp := doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/payments/notifications", body)
			expectStatus(t, resp, http.StatusOK)
			if got := decode[map[string]string](t, resp); got["status"] != "ignored" {
				t.Errorf("outcome = %q, want ignored", got["status"])
			}
		})
	}

	resp := doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/tenants/"+tenant.ID, "")
	expectStatus(t, resp, http.StatusOK)
	if got := decode[adapter.TenantResponse](t, resp); got.Status != string(domain.StatusPending) {
		t.Errorf("Status = %q, want PENDING", got.Status)
	}
}

// --- Members ---

func TestRegisterMember(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustSignup(t, srv, "majujaya")
	mustActivate(t, srv, tenant.ID)

	// From the tenant host, the host names the cooperative.
	resp := doRequest(t, srv, "majujaya."+platformHost, http.MethodPost, "/api/v1/members",
		`{"name":"Ani","email":"ani@majujaya.id","password":"anggota123","subdomain":"ignored"}`)
	expectStatus(t, resp, http.StatusCreated)
	m := decode[adapter.MemberResponse](t, resp)
	if m.Role != domain.RoleMember || m.Email != "ani@majujaya.id" {
		t.Errorf("member = %+v", m)
	}

	// From the platform host, the body names it.
	resp = doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/members",
		`{"name":"Citra","email":"citra@majujaya.id","password":"anggota123","subdomain":"majujaya"}`)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doRequest(t, srv, platformHost, http.MethodPost, "/api/v1/members",
		`{"name":"Ani","email":"ani@majujaya.id","password":"anggota123","subdomain":"majujaya"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate email: status = %d, want 409", resp.StatusCode)
	}
}

func TestRegisterMember_Refused(t *testing.T) {
	srv := newTestServer(t)
	mustSignup(t, srv, "majujaya")

	tests := []struct {
		name string
		host string
		body string
		want int
	}{
		{"pending tenant", "majujaya." + platformHost,
			`{"name":"Ani","email":"ani@majujaya.id","password":"anggota123"}`, http.StatusForbidden},
		{"unknown host", "ghost." + platformHost,
			`{"name":"Ani","email":"ani@majujaya.id","password":"anggota123"}`, http.StatusNotFound},
		{"unknown subdomain", platformHost,
			`{"name":"Ani","email":"ani@majujaya.id","password":"anggota123","subdomain":"ghost"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, srv, tt.host, http.MethodPost, "/api/v1/members", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRoles_PlatformHost(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, platformHost, http.MethodGet, "/api/v1/roles", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
