package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/koperasi/internal/app"
	"github.com/neomorfeo/koperasi/internal/domain"
	"github.com/neomorfeo/koperasi/internal/tenancy"
)

// Services are the application services the API exposes.
type Services struct {
	Tenants  *app.TenantService
	Payments *app.PaymentService
	Members  *app.MemberService
}

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID           string   `json:"id" doc:"Unique identifier"`
	Name         string   `json:"name" doc:"Display name"`
	Subdomain    string   `json:"subdomain" doc:"Host label the cooperative is served under"`
	Status       string   `json:"status" doc:"Lifecycle state"`
	StatusReason string   `json:"status_reason,omitempty" doc:"Reason given for the last suspension or rejection"`
	CreatedAt    string   `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt    string   `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
	Actions      []string `json:"actions" doc:"Lifecycle actions allowed from the current status"`
}

func toTenantResponse(t domain.Tenant, actions []domain.Event) TenantResponse {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return TenantResponse{
		ID:           t.ID,
		Name:         t.Name,
		Subdomain:    t.Subdomain,
		Status:       string(t.Status),
		StatusReason: t.StatusReason,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339),
		Actions:      names,
	}
}

// ProvisionBody is the cooperative and administrator a signup creates.
type ProvisionBody struct {
	Name          string `json:"name" maxLength:"120" doc:"Cooperative name"`
	Subdomain     string `json:"subdomain" maxLength:"50" doc:"Requested subdomain (3-50 lowercase letters or digits)"`
	AdminName     string `json:"admin_name" maxLength:"120" doc:"Administrator's full name"`
	AdminEmail    string `json:"admin_email" maxLength:"254" doc:"Administrator's email"`
	AdminPassword string `json:"admin_password" maxLength:"72" doc:"Administrator's password"`
}

func (b ProvisionBody) request() app.ProvisionRequest {
	return app.ProvisionRequest{
		Name:          b.Name,
		Subdomain:     b.Subdomain,
		AdminName:     b.AdminName,
		AdminEmail:    b.AdminEmail,
		AdminPassword: b.AdminPassword,
	}
}

// --- Create Tenant ---

type CreateTenantInput struct {
	Body struct {
		ProvisionBody
		Activate bool `json:"activate,omitempty" doc:"Create the cooperative ACTIVE, skipping payment"`
	}
}

type TenantOutput struct {
	Body TenantResponse
}

// --- Signup ---

type SignupInput struct {
	Body ProvisionBody
}

// --- Get Tenant ---

type GetTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

// --- List Tenants ---

type ListTenantsInput struct {
	Status string `query:"status" required:"false" enum:"PENDING,ACTIVE,SUSPENDED,REJECTED" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" minimum:"0" maximum:"500" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Rename ---

type RenameTenantInput struct {
	ID   string `path:"id" doc:"Tenant ID"`
	Body struct {
		Name string `json:"name" maxLength:"120" doc:"New display name"`
	}
}

// --- Transitions ---

type ActivateTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type ReasonBody struct {
	Reason string `json:"reason,omitempty" maxLength:"500" doc:"Reason shown to the cooperative"`
}

// ReasonInput carries an optional body; a request without one gives no reason.
type ReasonInput struct {
	ID   string      `path:"id" doc:"Tenant ID"`
	Body *ReasonBody `doc:"Optional reason"`
}

func (in *ReasonInput) reason() string {
	if in.Body == nil {
		return ""
	}
	return in.Body.Reason
}

// Register adds all API routes to the Huma API.
func Register(api huma.API, svc Services) {
	registerTenants(api, svc.Tenants)
	registerPayments(api, svc.Payments)
	registerMembers(api, svc.Members)
}

func registerTenants(api huma.API, svc *app.TenantService) {
	tenantOutput := func(t domain.Tenant, err error) (*TenantOutput, error) {
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TenantOutput{Body: toTenantResponse(t, svc.Actions(t))}, nil
	}
	listOutput := func(tenants []domain.Tenant, err error) (*ListTenantsOutput, error) {
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t, svc.Actions(t))
		}
		return &ListTenantsOutput{Body: resp}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants",
		Summary:       "Provision a cooperative",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTenantInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		req := input.Body.request()
		req.Activate = input.Body.Activate
		return tenantOutput(svc.Provision(ctx, req))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/api/v1/signup",
		Summary:       "Register a cooperative pending payment",
		Tags:          []string{"Signup"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *SignupInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return tenantOutput(svc.Provision(ctx, input.Body.request()))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List cooperatives",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}
		return listOutput(svc.List(ctx, filter))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/pending",
		Summary:     "List cooperatives awaiting payment or approval",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, _ *struct{}) (*ListTenantsOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return listOutput(svc.ListPending(ctx))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a cooperative by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return tenantOutput(svc.GetByID(ctx, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-tenant",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Rename a cooperative",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *RenameTenantInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return tenantOutput(svc.Rename(ctx, input.ID, input.Body.Name))
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/activate",
		Summary:     "Activate a pending or suspended cooperative",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *ActivateTenantInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return tenantOutput(svc.Activate(ctx, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "suspend-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/suspend",
		Summary:     "Suspend an active cooperative",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *ReasonInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return tenantOutput(svc.Suspend(ctx, input.ID, input.reason()))
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/reject",
		Summary:     "Reject a pending cooperative",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *ReasonInput) (*TenantOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		return tenantOutput(svc.Reject(ctx, input.ID, input.reason()))
	})
}

// platformOnly hides operator and signup routes from tenant hosts.
func platformOnly(ctx context.Context) error {
	if _, ok := tenancy.KeyFromContext(ctx); ok {
		return huma.Error404NotFound("not found")
	}
	return nil
}
