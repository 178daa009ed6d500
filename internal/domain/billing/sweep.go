package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsettle/medsettle/internal/platform/gateway"
	"github.com/medsettle/medsettle/internal/platform/metrics"
)

// Outcome records how one bill fared in a sweep. A gateway rejection is an
// expected outcome of attempting a charge, not a sweep failure, so it
// reports Success true with the gateway's reason in the message.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MemberBillSweep submits all due member bills. One bill failing never stops
// the sweep; every bill gets an Outcome.
type MemberBillSweep struct {
	repo    Repository
	svc     *Service
	metrics *metrics.Registry
	log     zerolog.Logger
}

func NewMemberBillSweep(repo Repository, svc *Service, m *metrics.Registry, log zerolog.Logger) *MemberBillSweep {
	return &MemberBillSweep{repo: repo, svc: svc, metrics: m, log: log}
}

// Run processes every due member bill and returns the per-bill outcomes
// keyed by bill UUID. With dryRun set it only reports which bills would be
// picked up; nothing is claimed or submitted.
func (s *MemberBillSweep) Run(ctx context.Context, dryRun bool) (map[uuid.UUID]Outcome, error) {
	due, err := s.repo.ListDueMemberBills(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("list due member bills: %w", err)
	}
	s.log.Info().Int("due", len(due)).Bool("dry_run", dryRun).Msg("member bill sweep started")

	outcomes := make(map[uuid.UUID]Outcome, len(due))
	for i := range due {
		bill := &due[i]
		outcomes[bill.UUID] = s.processOne(ctx, bill, dryRun)
	}

	s.log.Info().Int("processed", len(outcomes)).Msg("member bill sweep finished")
	return outcomes, nil
}

func (s *MemberBillSweep) processOne(ctx context.Context, bill *Bill, dryRun bool) Outcome {
	if dryRun {
		return Outcome{Success: true, Message: "Dry Run"}
	}

	updated, err := s.svc.ProcessBill(ctx, bill.UUID)
	switch {
	case err == nil:
		s.count("ok")
		ok := updated.Status == StatusProcessing || updated.Status == StatusPaid
		return Outcome{Success: ok, Message: string(updated.Status)}

	case errors.Is(err, ErrAlreadyClaimed):
		// Another sweep won the claim; its outcome stands.
		s.count("skipped")
		return Outcome{Success: true, Message: "claimed by another sweep"}

	default:
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			s.count("gateway_rejected")
			return Outcome{Success: true, Message: fmt.Sprintf("message: %s, code: %d", gwErr.Message, gwErr.Code)}
		}
		s.log.Error().Err(err).Str("bill_uuid", bill.UUID.String()).Msg("member bill sweep: unexpected error")
		s.count("error")
		return Outcome{Success: false, Message: fmt.Sprintf("%T", err)}
	}
}

func (s *MemberBillSweep) count(result string) {
	s.metrics.Inc("member_sweep.bill", map[string]string{"result": result})
}

// EmployerBillSweep submits due employer bills that pass the automatic
// processing gate. Bills held back by the gate are reported with the gate's
// reason and left untouched.
type EmployerBillSweep struct {
	repo    Repository
	svc     *Service
	gate    *EmployerGate
	metrics *metrics.Registry
	log     zerolog.Logger
}

func NewEmployerBillSweep(repo Repository, svc *Service, gate *EmployerGate, m *metrics.Registry, log zerolog.Logger) *EmployerBillSweep {
	return &EmployerBillSweep{repo: repo, svc: svc, gate: gate, metrics: m, log: log}
}

func (s *EmployerBillSweep) Run(ctx context.Context, dryRun bool) (map[uuid.UUID]Outcome, error) {
	due, err := s.repo.ListDueEmployerBills(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("list due employer bills: %w", err)
	}
	s.log.Info().Int("due", len(due)).Bool("dry_run", dryRun).Msg("employer bill sweep started")

	outcomes := make(map[uuid.UUID]Outcome, len(due))
	for i := range due {
		bill := &due[i]

		allowed, reason, err := s.gate.CanAutoProcess(ctx, bill)
		if err != nil {
			s.log.Error().Err(err).Str("bill_uuid", bill.UUID.String()).Msg("employer bill sweep: gate check failed")
			outcomes[bill.UUID] = Outcome{Success: false, Message: fmt.Sprintf("%T", err)}
			continue
		}
		if !allowed {
			outcomes[bill.UUID] = Outcome{Success: true, Message: reason}
			continue
		}

		if dryRun {
			outcomes[bill.UUID] = Outcome{Success: true, Message: "Dry Run"}
			continue
		}

		updated, err := s.svc.ProcessBill(ctx, bill.UUID)
		switch {
		case err == nil:
			ok := updated.Status == StatusProcessing || updated.Status == StatusPaid
			outcomes[bill.UUID] = Outcome{Success: ok, Message: string(updated.Status)}
		case errors.Is(err, ErrAlreadyClaimed):
			outcomes[bill.UUID] = Outcome{Success: true, Message: "claimed by another sweep"}
		default:
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) {
				outcomes[bill.UUID] = Outcome{Success: true, Message: fmt.Sprintf("message: %s, code: %d", gwErr.Message, gwErr.Code)}
			} else {
				s.log.Error().Err(err).Str("bill_uuid", bill.UUID.String()).Msg("employer bill sweep: unexpected error")
				outcomes[bill.UUID] = Outcome{Success: false, Message: fmt.Sprintf("%T", err)}
			}
		}
		s.metrics.Inc("employer_sweep.bill", nil)
	}

	s.log.Info().Int("processed", len(outcomes)).Msg("employer bill sweep finished")
	return outcomes, nil
}
