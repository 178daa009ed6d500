package reconciliation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medsettle/medsettle/internal/domain/billing"
	"github.com/medsettle/medsettle/internal/domain/identity"
	"github.com/medsettle/medsettle/internal/domain/organization"
	"github.com/medsettle/medsettle/internal/domain/procedure"
	"github.com/medsettle/medsettle/internal/platform/gateway"
	"github.com/medsettle/medsettle/internal/platform/metrics"
)

// Generator builds reconciliation reports: for a clinic group and time
// window it pulls the gateway's settled transfers per clinic and resolves
// each one back to the procedure and patient it paid for.
type Generator struct {
	clinics    organization.ClinicRepository
	bills      billing.Repository
	procedures procedure.Repository
	patients   identity.Repository
	gateway    gateway.Gateway
	metrics    *metrics.Registry
	log        zerolog.Logger
}

func NewGenerator(clinics organization.ClinicRepository, bills billing.Repository,
	procedures procedure.Repository, patients identity.Repository,
	gw gateway.Gateway, m *metrics.Registry, log zerolog.Logger) *Generator {
	return &Generator{
		clinics:    clinics,
		bills:      bills,
		procedures: procedures,
		patients:   patients,
		gateway:    gw,
		metrics:    m,
		log:        log,
	}
}

// Generate returns one row per resolvable settled transfer. Clinics that
// cannot be mapped to a gateway recipient are skipped, as are transfers
// whose bill, procedure, or patient cannot be resolved; only a failed
// transfer fetch for the whole window reports success=false.
func (g *Generator) Generate(ctx context.Context, groupName string, clinicNames []string, start, end time.Time) ([]ReportRow, bool) {
	var rows []ReportRow
	success := true

	for _, name := range clinicNames {
		clinic, err := g.clinics.GetByGroupAndName(ctx, groupName, name)
		if err != nil {
			g.log.Warn().Str("clinic_group", groupName).Str("clinic", name).
				Msg("clinic not found, skipping")
			g.metrics.Inc("reconciliation.clinic_skipped", nil)
			continue
		}
		if clinic.GatewayRecipientID == nil || *clinic.GatewayRecipientID == "" {
			g.log.Warn().Str("clinic_group", groupName).Str("clinic", name).
				Msg("clinic has no gateway recipient, skipping")
			g.metrics.Inc("reconciliation.clinic_skipped", nil)
			continue
		}

		transfers, err := g.gateway.ListSettledTransfers(ctx, *clinic.GatewayRecipientID, start, end)
		if err != nil {
			g.log.Error().Err(err).Str("clinic", name).
				Msg("could not fetch settled transfers")
			success = false
			continue
		}

		for _, tr := range transfers {
			row, ok := g.resolveRow(ctx, clinic, tr)
			if !ok {
				continue
			}
			rows = append(rows, row)
		}
	}

	g.log.Info().
		Str("clinic_group", groupName).
		Int("rows", len(rows)).
		Bool("success", success).
		Msg("reconciliation report generated")
	return rows, success
}

func (g *Generator) resolveRow(ctx context.Context, clinic *organization.Clinic, tr gateway.Transfer) (ReportRow, bool) {
	bill, err := g.bills.GetByUUID(ctx, tr.BillUUID)
	if err != nil {
		g.skip(tr.ID, "bill")
		return ReportRow{}, false
	}
	if bill.ProcedureID == nil {
		g.skip(tr.ID, "procedure link")
		return ReportRow{}, false
	}
	proc, err := g.procedures.GetByID(ctx, *bill.ProcedureID)
	if err != nil {
		g.skip(tr.ID, "procedure")
		return ReportRow{}, false
	}
	patient, err := g.patients.GetByID(ctx, proc.PatientID)
	if err != nil {
		g.skip(tr.ID, "patient")
		return ReportRow{}, false
	}

	return ReportRow{
		PatientFirstName:   patient.FirstName,
		PatientLastName:    patient.LastName,
		PatientBirthDate:   patient.BirthDate,
		ProcedureName:      proc.Name,
		ClinicName:         clinic.Name,
		ClinicLocationName: clinic.LocationName,
		TransferID:         tr.ID,
		PayoutID:           tr.PayoutID,
		ProcedureStartDate: proc.StartDate,
		ProcedureEndDate:   proc.EndDate,
		BilledAmount:       currencyString(bill.AmountCents),
		SettledAmount:      currencyString(tr.AmountCents),
	}, true
}

func (g *Generator) skip(transferID, missing string) {
	g.log.Warn().Str("transfer_id", transferID).Str("missing", missing).
		Msg("transfer not resolvable, skipping")
	g.metrics.Inc("reconciliation.row_skipped", map[string]string{"missing": missing})
}

func currencyString(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
