package sqlite

import (
	"context"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Insert writes a directory row without a namespace, for repository tests.
func (d *Directory) Insert(ctx context.Context, t domain.Tenant) error {
	return insertTenant(ctx, d.db, t)
}
