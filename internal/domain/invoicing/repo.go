package invoicing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInvoiceNotFound is returned when an invoice does not exist.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ErrSettingsNotFound is returned when an organization has no invoicing
// settings row.
var ErrSettingsNotFound = errors.New("invoicing settings not found")

// SettingsRepository is the persistence boundary for per-organization
// invoicing settings.
type SettingsRepository interface {
	GetByOrganization(ctx context.Context, orgID uuid.UUID) (*OrganizationInvoicingSettings, error)
	ListWithCadence(ctx context.Context) ([]OrganizationInvoicingSettings, error)
	Upsert(ctx context.Context, s *OrganizationInvoicingSettings) error
}

// InvoiceRepository is the persistence boundary for invoices and their
// bill allocations.
type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, inv *DirectPaymentInvoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*DirectPaymentInvoice, error)
	ListInvoices(ctx context.Context, orgID uuid.UUID) ([]DirectPaymentInvoice, error)

	// UpdateTotals fixes the denormalized sums once the invoice's
	// allocations are known. Called inside the generation transaction only;
	// committed invoices stay immutable.
	UpdateTotals(ctx context.Context, invoiceUUID uuid.UUID, amountCents, feeCents int64) error

	// Allocate attaches a bill to an invoice. A bill already allocated
	// elsewhere is left where it is; Allocate reports whether the row was
	// written.
	Allocate(ctx context.Context, a *BillAllocation) (bool, error)
	ListAllocations(ctx context.Context, invoiceID uuid.UUID) ([]BillAllocation, error)
}
