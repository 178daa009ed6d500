package invoicing

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationInvoicingSettings maps to the org_invoicing_settings table.
// Any settings row excludes the organization's bills from the automatic
// employer sweep. CadenceExpr is a five-field cron line
// ("min hour dom month dow") deciding the days invoices are generated; nil
// means no invoices are generated for the organization yet.
type OrganizationInvoicingSettings struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	DelayDays      int       `db:"delay_days" json:"delay_days"`
	CadenceExpr    *string   `db:"cadence_expr" json:"cadence_expr,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// HasCadence reports whether the organization settles through invoices.
func (s *OrganizationInvoicingSettings) HasCadence() bool {
	return s != nil && s.CadenceExpr != nil && *s.CadenceExpr != ""
}

// Invoice creation actors.
const (
	CreatedByAdmin            = "ADMIN"
	CreatedByInvoiceGenerator = "INVOICE_GENERATOR"
)

// DirectPaymentInvoice maps to the direct_payment_invoice table. Totals are
// denormalized sums over the invoice's allocations, fixed at generation
// time. The period covers the window the allocated bills became ready in.
type DirectPaymentInvoice struct {
	ID               int64      `db:"id" json:"-"`
	UUID             uuid.UUID  `db:"uuid" json:"uuid"`
	OrganizationID   uuid.UUID  `db:"organization_id" json:"organization_id"`
	TotalAmountCents int64      `db:"total_amount" json:"total_amount"`
	TotalFeeCents    int64      `db:"total_fee" json:"total_fee"`
	InvoiceDate      time.Time  `db:"invoice_date" json:"invoice_date"`
	PeriodStart      time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd        time.Time  `db:"period_end" json:"period_end"`
	CreatedByType    string     `db:"created_by_type" json:"created_by_type"`
	CreatedByUserID  *uuid.UUID `db:"created_by_user_id" json:"created_by_user_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// BillAllocation maps to the invoice_bill_allocation table. A bill belongs
// to at most one invoice; the table enforces it with a unique constraint on
// bill_uuid.
type BillAllocation struct {
	InvoiceUUID uuid.UUID `db:"invoice_uuid" json:"invoice_uuid"`
	BillUUID    uuid.UUID `db:"bill_uuid" json:"bill_uuid"`
	AmountCents int64     `db:"amount" json:"amount"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
