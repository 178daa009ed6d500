package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsettle/medsettle/internal/platform/metrics"
)

// SettingsProvider looks up an organization's invoicing settings. A nil
// result (with nil error) means the organization has none.
type SettingsProvider interface {
	InvoicingSettingsFor(ctx context.Context, orgID uuid.UUID) (*InvoicingSettings, error)
}

// Gate decision reasons, also used as counter tags.
const (
	ReasonEligible      = "eligible"
	ReasonNoSchedule    = "no processing schedule"
	ReasonNotDue        = "scheduled in the future"
	ReasonInvoicedOrg   = "linked to an invoiced organization"
	ReasonPilotOverride = "forced delay by pilot override"
)

// EmployerGate decides whether an employer bill may be processed. The
// invoicing and pilot-override vetoes apply only to automatic sweeps; bills
// already allocated to an invoice bypass them through CanProcess.
//
// The pilot override list is a transitional safety net and is injected so
// it can be removed without touching the gate.
type EmployerGate struct {
	settings       SettingsProvider
	pilotDelayOrgs map[uuid.UUID]bool
	metrics        *metrics.Registry
	log            zerolog.Logger
}

func NewEmployerGate(settings SettingsProvider, pilotDelayOrgs []uuid.UUID, m *metrics.Registry, log zerolog.Logger) *EmployerGate {
	set := make(map[uuid.UUID]bool, len(pilotDelayOrgs))
	for _, id := range pilotDelayOrgs {
		set[id] = true
	}
	return &EmployerGate{settings: settings, pilotDelayOrgs: set, metrics: m, log: log}
}

// CanAutoProcess reports whether an automatic sweep may submit the bill.
func (g *EmployerGate) CanAutoProcess(ctx context.Context, bill *Bill) (bool, string, error) {
	if ok, reason := scheduleDue(bill, time.Now()); !ok {
		g.record(bill, "auto_process", false, reason)
		return false, reason, nil
	}

	settings, err := g.settings.InvoicingSettingsFor(ctx, bill.PayorID)
	if err != nil {
		return false, "", err
	}
	// Any settings row marks the organization as invoiced, even one that
	// only configures a delay. Such bills settle through invoice generation.
	if settings != nil {
		g.record(bill, "auto_process", false, ReasonInvoicedOrg)
		return false, ReasonInvoicedOrg, nil
	}

	if g.pilotDelayOrgs[bill.PayorID] {
		g.log.Warn().
			Str("bill_uuid", bill.UUID.String()).
			Str("payor_id", bill.PayorID.String()).
			Msg("employer bill held back by pilot override")
		g.record(bill, "auto_process", false, ReasonPilotOverride)
		return false, ReasonPilotOverride, nil
	}

	g.record(bill, "auto_process", true, ReasonEligible)
	return true, ReasonEligible, nil
}

// CanProcess applies only the base schedule condition. It is used where
// invoicing exclusions are intentionally bypassed, such as processing bills
// already inside an invoice or an administrative override.
func (g *EmployerGate) CanProcess(bill *Bill) (bool, string) {
	ok, reason := scheduleDue(bill, time.Now())
	g.record(bill, "process", ok, reason)
	return ok, reason
}

func (g *EmployerGate) record(bill *Bill, check string, allowed bool, reason string) {
	g.log.Info().
		Str("bill_uuid", bill.UUID.String()).
		Str("check", check).
		Bool("allowed", allowed).
		Str("reason", reason).
		Msg("employer bill processing decision")
	if g.metrics != nil {
		g.metrics.Inc("employer_bill."+check, map[string]string{
			"allowed": boolTag(allowed),
			"reason":  reason,
		})
	}
}

// scheduleDue is the base eligibility condition. Persisted schedule times
// have second granularity, so "now" is rounded up to the next whole second
// before comparing; a bill scheduled mid-second must not be spuriously
// rejected.
func scheduleDue(bill *Bill, now time.Time) (bool, string) {
	if bill.ProcessingScheduledAtOrAfter == nil {
		return false, ReasonNoSchedule
	}
	if bill.ProcessingScheduledAtOrAfter.After(ceilToSecond(now)) {
		return false, ReasonNotDue
	}
	return true, ReasonEligible
}

func ceilToSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Second)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
