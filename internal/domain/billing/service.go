package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsettle/medsettle/internal/domain/procedure"
	"github.com/medsettle/medsettle/internal/platform/gateway"
	"github.com/medsettle/medsettle/internal/platform/metrics"
	"github.com/medsettle/medsettle/pkg/pagination"
)

// ErrRefundNotAllowed is returned when a refund is requested against a bill
// that has not been paid.
var ErrRefundNotAllowed = errors.New("only paid bills can be refunded")

// Service implements the bill lifecycle: creation with schedule and fee
// stamping, gateway submission, cancellation, and refunds.
type Service struct {
	repo             Repository
	procedures       procedure.Repository
	settings         SettingsProvider
	gateway          gateway.Gateway
	memberOffsetDays int
	metrics          *metrics.Registry
	log              zerolog.Logger
}

func NewService(repo Repository, procedures procedure.Repository, settings SettingsProvider,
	gw gateway.Gateway, memberOffsetDays int, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		repo:             repo,
		procedures:       procedures,
		settings:         settings,
		gateway:          gw,
		memberOffsetDays: memberOffsetDays,
		metrics:          m,
		log:              log,
	}
}

// CreateBillInput is what callers supply to open a new bill.
type CreateBillInput struct {
	AmountCents     int64      `json:"amount" validate:"required"`
	PayorID         uuid.UUID  `json:"payor_id"`
	PayorType       PayorType  `json:"payor_type" validate:"required,oneof=MEMBER CLINIC EMPLOYER"`
	ProcedureID     *uuid.UUID `json:"procedure_id,omitempty"`
	CostBreakdownID *uuid.UUID `json:"cost_breakdown_id,omitempty"`
	Label           *string    `json:"label,omitempty"`
}

// CreateBill opens a NEW bill, stamping its processing schedule and the fee
// current payment information implies. The schedule is computed once here;
// later payment method or settings changes do not move it.
func (s *Service) CreateBill(ctx context.Context, in CreateBillInput) (*Bill, error) {
	if !in.PayorType.Valid() {
		return nil, fmt.Errorf("invalid payor type %q", in.PayorType)
	}

	// A bill without a linked procedure is treated as billable now.
	procStatus := procedure.StatusCompleted
	if in.ProcedureID != nil {
		proc, err := s.procedures.GetByID(ctx, *in.ProcedureID)
		if err != nil {
			return nil, fmt.Errorf("load procedure: %w", err)
		}
		procStatus = proc.Status
	}

	var settings *InvoicingSettings
	if in.PayorType == PayorEmployer && in.PayorID != uuid.Nil {
		var err error
		settings, err = s.settings.InvoicingSettingsFor(ctx, in.PayorID)
		if err != nil {
			return nil, fmt.Errorf("load invoicing settings: %w", err)
		}
		if settings != nil && s.metrics != nil {
			// Downstream dashboards use this to spot invoiced organizations.
			s.metrics.Inc("bill.employer_settings_present", map[string]string{
				"payor_id": in.PayorID.String(),
			})
		}
	}

	scheduledAt, err := ComputeSchedule(in.PayorType, in.AmountCents, time.Now(),
		procStatus, in.PayorID, settings, s.memberOffsetDays)
	if err != nil {
		return nil, err
	}

	fee, err := s.currentFee(ctx, in.PayorID, in.AmountCents)
	if err != nil {
		return nil, err
	}

	b := &Bill{
		UUID:                         uuid.New(),
		AmountCents:                  in.AmountCents,
		LastCalculatedFeeCents:       fee,
		PayorID:                      in.PayorID,
		PayorType:                    in.PayorType,
		ProcedureID:                  in.ProcedureID,
		CostBreakdownID:              in.CostBreakdownID,
		Status:                       StatusNew,
		ProcessingScheduledAtOrAfter: scheduledAt,
		Label:                        in.Label,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.metrics.Inc("bill.created", map[string]string{"payor_type": string(in.PayorType)})
	s.log.Info().
		Str("bill_uuid", b.UUID.String()).
		Str("payor_type", string(b.PayorType)).
		Int64("amount", b.AmountCents).
		Int64("fee", b.LastCalculatedFeeCents).
		Msg("bill created")
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.repo.GetByUUID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) ([]Bill, int, error) {
	return s.repo.List(ctx, f, p)
}

// ProcessBill claims the bill, recalculates its fee against current payment
// information, and submits it to the gateway. FAILED bills may be
// resubmitted through the same path.
//
// The claim is a conditional update, so of all concurrent callers
// exactly one reaches the gateway; the rest get ErrAlreadyClaimed.
func (s *Service) ProcessBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.repo.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	method, err := s.repo.GetPaymentMethod(ctx, b.PayorID)
	if err != nil {
		return nil, err
	}
	if method == nil || method.Method != MethodPaymentGateway {
		return nil, ErrMissingPaymentGatewayInformation
	}

	if err := s.repo.ClaimForProcessing(ctx, b.UUID); err != nil {
		return nil, err
	}

	fee := CalculateFee(method.Method, method.MethodType, b.AmountCents, method.CardFunding)
	if err := s.repo.UpdateFee(ctx, b.UUID, fee); err != nil {
		return nil, err
	}

	status, submitErr := s.gateway.SubmitBill(ctx, gateway.SubmitRequest{
		BillUUID:    b.UUID,
		AmountCents: b.AmountCents,
		FeeCents:    fee,
		PayorType:   string(b.PayorType),
		CustomerRef: method.GatewayCustomerRef,
	})
	if submitErr != nil {
		errorType := fmt.Sprintf("%T", submitErr)
		var gwErr *gateway.Error
		if errors.As(submitErr, &gwErr) {
			errorType = fmt.Sprintf("GATEWAY_%d", gwErr.Code)
		}
		if err := s.repo.MarkFailed(ctx, b.UUID, errorType); err != nil {
			s.log.Error().Err(err).Str("bill_uuid", b.UUID.String()).Msg("could not record submission failure")
		}
		s.metrics.Inc("bill.submitted", map[string]string{"result": "error"})
		return nil, submitErr
	}

	switch status {
	case gateway.StatusPaid:
		if err := s.repo.MarkPaid(ctx, b.UUID); err != nil {
			return nil, err
		}
	case gateway.StatusFailed:
		if err := s.repo.MarkFailed(ctx, b.UUID, "GATEWAY_DECLINED"); err != nil {
			return nil, err
		}
	case gateway.StatusProcessing:
		// Settlement is asynchronous; the bill stays PROCESSING until the
		// gateway reports back.
	}

	s.metrics.Inc("bill.submitted", map[string]string{"result": string(status)})
	s.log.Info().
		Str("bill_uuid", b.UUID.String()).
		Str("gateway_status", string(status)).
		Msg("bill submitted to gateway")
	return s.repo.GetByUUID(ctx, b.UUID)
}

// Cancel moves a NEW or PROCESSING bill to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Bill, error) {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return nil, err
	}
	s.metrics.Inc("bill.cancelled", nil)
	return s.repo.GetByUUID(ctx, id)
}

// Reschedule replaces a bill's processing schedule. A nil time takes the
// bill out of automatic processing entirely.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, at *time.Time) (*Bill, error) {
	if err := s.repo.UpdateSchedule(ctx, id, at); err != nil {
		return nil, err
	}
	return s.repo.GetByUUID(ctx, id)
}

// IssueRefund records a refund of a paid bill as a separate REFUNDED bill
// with the negated amount. The original bill is never mutated; the new row
// carries a label pointing back at it.
func (s *Service) IssueRefund(ctx context.Context, originalID uuid.UUID, amountCents *int64) (*Bill, error) {
	orig, err := s.repo.GetByUUID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if orig.Status != StatusPaid {
		return nil, ErrRefundNotAllowed
	}

	amount := orig.AmountCents
	if amountCents != nil {
		amount = *amountCents
	}
	if amount <= 0 || amount > orig.AmountCents {
		return nil, fmt.Errorf("refund amount %d out of range for bill of %d", amount, orig.AmountCents)
	}

	now := time.Now()
	label := "refund of " + orig.UUID.String()
	refund := &Bill{
		UUID:                   uuid.New(),
		AmountCents:            -amount,
		LastCalculatedFeeCents: 0,
		PayorID:                orig.PayorID,
		PayorType:              orig.PayorType,
		ProcedureID:            orig.ProcedureID,
		CostBreakdownID:        orig.CostBreakdownID,
		Status:                 StatusRefunded,
		Label:                  &label,
		RefundedAt:             &now,
	}
	if err := s.repo.Create(ctx, refund); err != nil {
		return nil, err
	}

	s.metrics.Inc("bill.refunded", nil)
	s.log.Info().
		Str("bill_uuid", refund.UUID.String()).
		Str("original_uuid", orig.UUID.String()).
		Int64("amount", refund.AmountCents).
		Msg("refund recorded")
	return refund, nil
}

// currentFee computes the fee the payor's payment method on file implies.
// No method on file means no gateway charge and no fee.
func (s *Service) currentFee(ctx context.Context, payorID uuid.UUID, amountCents int64) (int64, error) {
	method, err := s.repo.GetPaymentMethod(ctx, payorID)
	if err != nil {
		return 0, err
	}
	if method == nil {
		return 0, nil
	}
	return CalculateFee(method.Method, method.MethodType, amountCents, method.CardFunding), nil
}
