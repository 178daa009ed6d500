package invoicing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	settings SettingsRepository
	invoices InvoiceRepository
	log      zerolog.Logger
}

func NewService(settings SettingsRepository, invoices InvoiceRepository, log zerolog.Logger) *Service {
	return &Service{settings: settings, invoices: invoices, log: log}
}

func (s *Service) GetSettings(ctx context.Context, orgID uuid.UUID) (*OrganizationInvoicingSettings, error) {
	return s.settings.GetByOrganization(ctx, orgID)
}

// UpsertSettingsInput configures how an organization settles its bills.
type UpsertSettingsInput struct {
	DelayDays   int     `json:"delay_days" validate:"gte=0,lte=365"`
	CadenceExpr *string `json:"cadence_expr,omitempty"`
}

func (s *Service) UpsertSettings(ctx context.Context, orgID uuid.UUID, in UpsertSettingsInput) (*OrganizationInvoicingSettings, error) {
	if in.CadenceExpr != nil && *in.CadenceExpr != "" {
		if err := ValidateCadence(*in.CadenceExpr); err != nil {
			return nil, err
		}
	}
	settings := &OrganizationInvoicingSettings{
		OrganizationID: orgID,
		DelayDays:      in.DelayDays,
		CadenceExpr:    in.CadenceExpr,
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("organization_id", orgID.String()).
		Int("delay_days", settings.DelayDays).
		Bool("invoiced", settings.HasCadence()).
		Msg("invoicing settings updated")
	return settings, nil
}

// InvoiceDetail is an invoice together with its bill allocations.
type InvoiceDetail struct {
	DirectPaymentInvoice
	Allocations []BillAllocation `json:"allocations"`
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error) {
	inv, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	allocs, err := s.invoices.ListAllocations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InvoiceDetail{DirectPaymentInvoice: *inv, Allocations: allocs}, nil
}

func (s *Service) ListInvoices(ctx context.Context, orgID uuid.UUID) ([]DirectPaymentInvoice, error) {
	return s.invoices.ListInvoices(ctx, orgID)
}
