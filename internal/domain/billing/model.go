package billing

import (
	"time"

	"github.com/google/uuid"
)

// PayorType identifies who owes (or is owed) a bill.
type PayorType string

const (
	PayorMember   PayorType = "MEMBER"
	PayorClinic   PayorType = "CLINIC"
	PayorEmployer PayorType = "EMPLOYER"
)

func (p PayorType) Valid() bool {
	switch p {
	case PayorMember, PayorClinic, PayorEmployer:
		return true
	}
	return false
}

// Status is the bill lifecycle state. The closed set and the allowed
// transitions between them live in statemachine.go.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// Bill maps to the bill table. Amounts are signed minor currency units
// (cents); a negative amount is a credit back to the payor. Each lifecycle
// timestamp is set exactly once, on the transition into that state, and is
// never cleared.
type Bill struct {
	ID                           int64      `db:"id" json:"-"`
	UUID                         uuid.UUID  `db:"uuid" json:"uuid"`
	AmountCents                  int64      `db:"amount" json:"amount"`
	LastCalculatedFeeCents       int64      `db:"last_calculated_fee" json:"last_calculated_fee"`
	PayorID                      uuid.UUID  `db:"payor_id" json:"payor_id"`
	PayorType                    PayorType  `db:"payor_type" json:"payor_type"`
	ProcedureID                  *uuid.UUID `db:"procedure_id" json:"procedure_id,omitempty"`
	CostBreakdownID              *uuid.UUID `db:"cost_breakdown_id" json:"cost_breakdown_id,omitempty"`
	Status                       Status     `db:"status" json:"status"`
	ProcessingScheduledAtOrAfter *time.Time `db:"processing_scheduled_at_or_after" json:"processing_scheduled_at_or_after,omitempty"`
	Label                        *string    `db:"label" json:"label,omitempty"`
	ErrorType                    *string    `db:"error_type" json:"error_type,omitempty"`
	CreatedAt                    time.Time  `db:"created_at" json:"created_at"`
	ModifiedAt                   time.Time  `db:"modified_at" json:"modified_at"`
	ProcessingAt                 *time.Time `db:"processing_at" json:"processing_at,omitempty"`
	PaidAt                       *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	RefundedAt                   *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	FailedAt                     *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	CancelledAt                  *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// PaymentMethod is how a payor settles bills.
type PaymentMethod string

const (
	MethodPaymentGateway PaymentMethod = "PAYMENT_GATEWAY"
	MethodManual         PaymentMethod = "MANUAL"
)

// PaymentMethodType is the instrument attached to a gateway payment method.
type PaymentMethodType string

const (
	MethodTypeCard        PaymentMethodType = "CARD"
	MethodTypeBankAccount PaymentMethodType = "BANK_ACCOUNT"
)

// CardFunding is the gateway-reported funding source of a card.
type CardFunding string

const (
	FundingCredit  CardFunding = "CREDIT"
	FundingDebit   CardFunding = "DEBIT"
	FundingPrepaid CardFunding = "PREPAID"
	FundingUnknown CardFunding = "UNKNOWN"
)

// PayorPaymentMethod maps to the payor_payment_method table. A payor
// without a row here cannot be charged through the gateway.
type PayorPaymentMethod struct {
	PayorID            uuid.UUID         `db:"payor_id" json:"payor_id"`
	Method             PaymentMethod     `db:"method" json:"method"`
	MethodType         PaymentMethodType `db:"method_type" json:"method_type"`
	CardFunding        CardFunding       `db:"card_funding" json:"card_funding"`
	GatewayCustomerRef string            `db:"gateway_customer_ref" json:"gateway_customer_ref"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

// InvoicingSettings is the slice of an organization's invoicing
// configuration the billing policies consult. Its mere existence marks the
// organization as invoiced; such bills settle through invoice generation
// rather than the automatic sweep.
type InvoicingSettings struct {
	DelayDays int
}
