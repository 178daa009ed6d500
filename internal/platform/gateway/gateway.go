package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubmitStatus is the settlement outcome the gateway reports for a charge.
type SubmitStatus string

const (
	StatusProcessing SubmitStatus = "PROCESSING"
	StatusPaid       SubmitStatus = "PAID"
	StatusFailed     SubmitStatus = "FAILED"
)

// Error is a structured failure reported by the gateway itself, as opposed
// to a transport problem reaching it.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("payments gateway error %d: %s", e.Code, e.Message)
}

// SubmitRequest carries everything the gateway needs to settle one bill.
type SubmitRequest struct {
	BillUUID    uuid.UUID `json:"bill_uuid"`
	AmountCents int64     `json:"amount_cents"`
	FeeCents    int64     `json:"fee_cents"`
	PayorType   string    `json:"payor_type"`
	CustomerRef string    `json:"customer_ref"`
}

// Transfer is one settled transfer record from the gateway's books, used by
// reconciliation to cross-check our paid bills.
type Transfer struct {
	ID          string    `json:"id"`
	PayoutID    string    `json:"payout_id"`
	BillUUID    uuid.UUID `json:"bill_uuid"`
	AmountCents int64     `json:"amount_cents"`
	SettledAt   time.Time `json:"settled_at"`
}

// Gateway is the payment gateway collaborator. SubmitBill either returns the
// resulting settlement status or an error; a *Error means the gateway itself
// rejected or failed the charge, anything else is a transport problem.
type Gateway interface {
	SubmitBill(ctx context.Context, req SubmitRequest) (SubmitStatus, error)
	ListSettledTransfers(ctx context.Context, recipientID string, start, end time.Time) ([]Transfer, error)
}
