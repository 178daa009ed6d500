package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medsettle/medsettle/pkg/pagination"
)

// ListFilter narrows bill listings. Nil fields are ignored.
type ListFilter struct {
	PayorID   *uuid.UUID
	PayorType *PayorType
	Status    *Status
	Label     *string
}

// Repository is the persistence boundary for bills and payment methods.
//
// The Mark* and Claim* methods perform their status transitions as
// conditional updates so that concurrent sweeps cannot double-apply a
// transition.
type Repository interface {
	Create(ctx context.Context, b *Bill) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*Bill, error)
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]Bill, int, error)

	// ListDueMemberBills returns NEW or FAILED member bills whose schedule
	// is at or before now.
	ListDueMemberBills(ctx context.Context, now time.Time) ([]Bill, error)
	// ListDueEmployerBills is the employer counterpart of
	// ListDueMemberBills.
	ListDueEmployerBills(ctx context.Context, now time.Time) ([]Bill, error)
	// ListReadyEmployerBills returns an organization's NEW or FAILED bills
	// that are due and not yet allocated to any invoice.
	ListReadyEmployerBills(ctx context.Context, orgID uuid.UUID, now time.Time) ([]Bill, error)

	// ClaimForProcessing moves a NEW or FAILED bill into PROCESSING.
	// Returns ErrAlreadyClaimed when the bill is no longer claimable.
	ClaimForProcessing(ctx context.Context, id uuid.UUID) error
	MarkPaid(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorType string) error
	Cancel(ctx context.Context, id uuid.UUID) error

	UpdateFee(ctx context.Context, id uuid.UUID, feeCents int64) error
	UpdateSchedule(ctx context.Context, id uuid.UUID, at *time.Time) error

	// GetPaymentMethod returns nil (with nil error) when the payor has no
	// payment method on file.
	GetPaymentMethod(ctx context.Context, payorID uuid.UUID) (*PayorPaymentMethod, error)
}
