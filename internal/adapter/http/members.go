package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/koperasi/internal/app"
	"github.com/neomorfeo/koperasi/internal/tenancy"
)

type RoleResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type MemberResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// --- Register Member ---

type RegisterMemberInput struct {
	Body struct {
		Name     string `json:"name" maxLength:"120" doc:"Member's full name"`
		Email    string `json:"email" maxLength:"254" doc:"Member's email"`
		Password string `json:"password" maxLength:"72" doc:"Member's password"`
		// Read only on the platform host; a tenant host names the cooperative itself.
		Subdomain string `json:"subdomain,omitempty" doc:"Cooperative to join, when registering from the platform host"`
	}
}

type RegisterMemberOutput struct {
	Body MemberResponse
}

// --- Roles ---

type ListRolesOutput struct {
	Body []RoleResponse
}

func registerMembers(api huma.API, svc *app.MemberService) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-member",
		Method:        http.MethodPost,
		Path:          "/api/v1/members",
		Summary:       "Join a cooperative as a member",
		Tags:          []string{"Members"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *RegisterMemberInput) (*RegisterMemberOutput, error) {
		src := tenancy.FromHost()
		if _, ok := tenancy.KeyFromContext(ctx); !ok {
			src = tenancy.FromSubdomain(input.Body.Subdomain)
		}

		h, err := tenancy.Acquire(ctx, src)
		if err != nil {
			return nil, toHumaError(err)
		}

		m, err := svc.Register(ctx, h, app.Registration{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RegisterMemberOutput{Body: MemberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/api/v1/roles",
		Summary:     "List the cooperative's roles",
		Tags:        []string{"Members"},
	}, func(ctx context.Context, _ *struct{}) (*ListRolesOutput, error) {
		h, err := tenancy.HandleFrom(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}

		roles, err := svc.Roles(ctx, h)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]RoleResponse, len(roles))
		for i, r := range roles {
			resp[i] = RoleResponse(r)
		}
		return &ListRolesOutput{Body: resp}, nil
	})
}
