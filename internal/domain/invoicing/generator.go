package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsettle/medsettle/internal/domain/billing"
	"github.com/medsettle/medsettle/internal/platform/metrics"
)

// errNothingAllocated rolls the generation transaction back when every ready
// bill was claimed by a concurrent allocation; an empty invoice must not
// persist.
var errNothingAllocated = errors.New("no bills allocated")

// TxRunner executes fn atomically. The server wires db.WithTx here;
// repositories pick the transaction up through the context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// GenerationResult summarizes one organization's invoice generation run.
type GenerationResult struct {
	InvoiceUUID *uuid.UUID `json:"invoice_uuid,omitempty"`
	BillCount   int        `json:"bill_count"`
	Submitted   int        `json:"submitted"`
	Message     string     `json:"message"`
}

// Generator produces invoices for every organization whose cadence fires
// today, then submits the allocated bills for settlement.
type Generator struct {
	tx       TxRunner
	settings SettingsRepository
	invoices InvoiceRepository
	bills    billing.Repository
	billSvc  *billing.Service
	gate     *billing.EmployerGate
	metrics  *metrics.Registry
	log      zerolog.Logger
}

func NewGenerator(tx TxRunner, settings SettingsRepository, invoices InvoiceRepository,
	bills billing.Repository, billSvc *billing.Service, gate *billing.EmployerGate,
	m *metrics.Registry, log zerolog.Logger) *Generator {
	return &Generator{
		tx:       tx,
		settings: settings,
		invoices: invoices,
		bills:    bills,
		billSvc:  billSvc,
		gate:     gate,
		metrics:  m,
		log:      log,
	}
}

// Run generates invoices for the given day and returns a per-organization
// summary. One organization failing never stops the run.
func (g *Generator) Run(ctx context.Context, now time.Time) (map[uuid.UUID]GenerationResult, error) {
	all, err := g.settings.ListWithCadence(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invoiced organizations: %w", err)
	}

	results := make(map[uuid.UUID]GenerationResult, len(all))
	for i := range all {
		s := &all[i]
		if !CadenceMatches(*s.CadenceExpr, now, g.log) {
			continue
		}
		results[s.OrganizationID] = g.generateForOrg(ctx, s.OrganizationID, now)
	}

	g.log.Info().Int("organizations", len(results)).Msg("invoice generation finished")
	return results, nil
}

func (g *Generator) generateForOrg(ctx context.Context, orgID uuid.UUID, now time.Time) GenerationResult {
	ready, err := g.bills.ListReadyEmployerBills(ctx, orgID, now)
	if err != nil {
		g.log.Error().Err(err).Str("organization_id", orgID.String()).Msg("could not list ready bills")
		return GenerationResult{Message: fmt.Sprintf("%T", err)}
	}
	if len(ready) == 0 {
		return GenerationResult{Message: "no bills ready"}
	}

	// The invoice covers the window its bills became ready in.
	periodStart := now
	for _, b := range ready {
		if b.ProcessingScheduledAtOrAfter != nil && b.ProcessingScheduledAtOrAfter.Before(periodStart) {
			periodStart = *b.ProcessingScheduledAtOrAfter
		}
	}
	inv := &DirectPaymentInvoice{
		UUID:           uuid.New(),
		OrganizationID: orgID,
		InvoiceDate:    now,
		PeriodStart:    periodStart,
		PeriodEnd:      now,
		CreatedByType:  CreatedByInvoiceGenerator,
	}
	var allocated []billing.Bill

	// Invoice header and allocations commit together; a partial invoice
	// must never become visible. Totals count only the bills actually
	// allocated here: a bill lost to a concurrent allocation stays off
	// this invoice.
	err = g.tx(ctx, func(ctx context.Context) error {
		if err := g.invoices.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		for _, b := range ready {
			ok, err := g.invoices.Allocate(ctx, &BillAllocation{
				InvoiceUUID: inv.UUID,
				BillUUID:    b.UUID,
				AmountCents: b.AmountCents,
			})
			if err != nil {
				return fmt.Errorf("allocate bill %s: %w", b.UUID, err)
			}
			if ok {
				allocated = append(allocated, b)
				inv.TotalAmountCents += b.AmountCents
				inv.TotalFeeCents += b.LastCalculatedFeeCents
			}
		}
		if len(allocated) == 0 {
			return errNothingAllocated
		}
		return g.invoices.UpdateTotals(ctx, inv.UUID, inv.TotalAmountCents, inv.TotalFeeCents)
	})
	if errors.Is(err, errNothingAllocated) {
		return GenerationResult{Message: "no bills ready"}
	}
	if err != nil {
		g.log.Error().Err(err).Str("organization_id", orgID.String()).Msg("invoice generation failed")
		return GenerationResult{Message: fmt.Sprintf("%T", err)}
	}

	g.metrics.Inc("invoice.generated", nil)
	g.log.Info().
		Str("invoice_uuid", inv.UUID.String()).
		Str("organization_id", orgID.String()).
		Int("bills", len(allocated)).
		Int64("total_amount", inv.TotalAmountCents).
		Msg("invoice generated")

	submitted := 0
	for i := range allocated {
		b := &allocated[i]
		// These bills are on the invoice, so the invoiced-organization
		// exclusion does not apply; only the base schedule check does.
		if ok, reason := g.gate.CanProcess(b); !ok {
			g.log.Info().Str("bill_uuid", b.UUID.String()).Str("reason", reason).
				Msg("invoiced bill not submitted")
			continue
		}
		if _, err := g.billSvc.ProcessBill(ctx, b.UUID); err != nil {
			g.log.Error().Err(err).Str("bill_uuid", b.UUID.String()).
				Msg("invoiced bill submission failed")
			continue
		}
		submitted++
	}

	invUUID := inv.UUID
	return GenerationResult{
		InvoiceUUID: &invUUID,
		BillCount:   len(allocated),
		Submitted:   submitted,
		Message:     "ok",
	}
}
