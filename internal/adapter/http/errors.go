package http

import (
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// toHumaError translates domain errors to Huma HTTP errors. Messages of
// unexpected errors never reach the client.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTenantNotFound) {
		return huma.Error404NotFound("cooperative not found")
	}

	var notActive *domain.TenantNotActiveError
	if errors.As(err, &notActive) {
		return huma.Error403Forbidden(notActive.Error())
	}

	if errors.Is(err, domain.ErrNoTenant) {
		return huma.Error400BadRequest("no cooperative selected")
	}

	var conflict *domain.SubdomainConflictError
	if errors.As(err, &conflict) {
		return huma.Error409Conflict(conflict.Error())
	}
	if errors.Is(err, domain.ErrEmailTaken) || errors.Is(err, domain.ErrStatusChanged) {
		return huma.Error409Conflict(err.Error())
	}

	if errors.Is(err, domain.ErrInvalidSubdomain) || errors.Is(err, domain.ErrInvalidInput) {
		return huma.Error422UnprocessableEntity(err.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	slog.Error("request failed", "error", err)

	var provErr *domain.ProvisioningError
	if errors.As(err, &provErr) {
		return huma.Error500InternalServerError(provErr.Error())
	}
	return huma.Error500InternalServerError("internal server error")
}
