package organization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
}

type ClinicRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	// GetByGroupAndName resolves a clinic within a clinic group by its
	// display name. Returns pgx.ErrNoRows when no such clinic exists.
	GetByGroupAndName(ctx context.Context, groupName, name string) (*Clinic, error)
}
