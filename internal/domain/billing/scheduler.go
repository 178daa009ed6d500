package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medsettle/medsettle/internal/domain/procedure"
)

// ErrEmployerPayorRequired is returned when an EMPLOYER bill is created
// without an organization payor id.
var ErrEmployerPayorRequired = fmt.Errorf("employer bill requires a payor organization id")

// ComputeSchedule decides the earliest time a new bill may be automatically
// submitted for settlement. A nil result means "never auto-process"; the
// bill must then be handled out of band.
//
// The rules are evaluated in order:
//  1. Member bill for zero cents against a procedure that is still
//     SCHEDULED: nothing is owed yet, do not schedule.
//  2. Member bill for a positive amount: schedule memberOffsetDays out, but
//     only once the procedure has concluded (COMPLETED or
//     PARTIALLY_COMPLETED); otherwise do not schedule.
//  3. Employer bill: apply the organization's configured processing delay
//     (zero when it has no settings).
//  4. Anything else (clinic bills, member credits): process immediately.
//
// The function is deterministic for fixed inputs and mutates nothing; it is
// called once, at bill creation, to stamp ProcessingScheduledAtOrAfter.
func ComputeSchedule(payorType PayorType, amountCents int64, now time.Time, procStatus procedure.Status, payorID uuid.UUID, settings *InvoicingSettings, memberOffsetDays int) (*time.Time, error) {
	switch {
	case payorType == PayorMember && amountCents == 0 && procStatus == procedure.StatusScheduled:
		return nil, nil

	case payorType == PayorMember && amountCents > 0:
		if procStatus != procedure.StatusCompleted && procStatus != procedure.StatusPartiallyCompleted {
			return nil, nil
		}
		at := now.AddDate(0, 0, memberOffsetDays)
		return &at, nil

	case payorType == PayorEmployer:
		if payorID == uuid.Nil {
			return nil, ErrEmployerPayorRequired
		}
		delay := 0
		if settings != nil {
			delay = settings.DelayDays
		}
		at := now.AddDate(0, 0, delay)
		return &at, nil

	default:
		at := now
		return &at, nil
	}
}
