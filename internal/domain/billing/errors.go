package billing

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a bill does not exist.
var ErrNotFound = errors.New("bill not found")

// ErrMissingPaymentGatewayInformation means the payor has no gateway
// payment method configured. This is a permanent precondition failure; it
// is surfaced to the caller and never retried automatically.
var ErrMissingPaymentGatewayInformation = errors.New("payor has no payment gateway information")

// ErrAlreadyClaimed means another sweep won the conditional transition into
// PROCESSING first. The loser must not call the gateway.
var ErrAlreadyClaimed = errors.New("bill already claimed for processing")

// InvalidStatusChangeError is returned when a requested transition is not
// permitted from the bill's current status. The bill is left untouched.
type InvalidStatusChangeError struct {
	From Status
	To   Status
}

func (e *InvalidStatusChangeError) Error() string {
	return fmt.Sprintf("invalid bill status change: %s -> %s", e.From, e.To)
}
