package invoicing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestService() (*Service, *mockSettingsRepo, *mockInvoiceRepo) {
	settings := newMockSettingsRepo()
	invoices := newMockInvoiceRepo()
	return NewService(settings, invoices, zerolog.Nop()), settings, invoices
}

func TestUpsertSettings_CreatesAndUpdates(t *testing.T) {
	svc, repo, _ := newTestService()
	orgID := uuid.New()
	cadence := "0 0 1 * *"

	created, err := svc.UpsertSettings(context.Background(), orgID, UpsertSettingsInput{
		DelayDays:   14,
		CadenceExpr: &cadence,
	})
	if err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
	if created.DelayDays != 14 || !created.HasCadence() {
		t.Fatalf("unexpected settings: %+v", created)
	}

	updated, err := svc.UpsertSettings(context.Background(), orgID, UpsertSettingsInput{DelayDays: 7})
	if err != nil {
		t.Fatalf("UpsertSettings update: %v", err)
	}
	if updated.DelayDays != 7 || updated.HasCadence() {
		t.Fatalf("update did not clear cadence: %+v", updated)
	}
	if len(repo.items) != 1 {
		t.Fatalf("expected a single settings row, got %d", len(repo.items))
	}
}

func TestUpsertSettings_RejectsBadCadence(t *testing.T) {
	svc, repo, _ := newTestService()
	orgID := uuid.New()

	for _, expr := range []string{"not a cron", "0 0 32 * *", "1,15 * * * *"} {
		e := expr
		if _, err := svc.UpsertSettings(context.Background(), orgID, UpsertSettingsInput{CadenceExpr: &e}); err == nil {
			t.Errorf("cadence %q: expected error", expr)
		}
	}
	if len(repo.items) != 0 {
		t.Fatalf("rejected settings must not be stored")
	}
}

func TestGetInvoice_IncludesAllocations(t *testing.T) {
	svc, _, invoices := newTestService()
	orgID := uuid.New()

	inv := &DirectPaymentInvoice{
		UUID:             uuid.New(),
		OrganizationID:   orgID,
		TotalAmountCents: 5000,
		TotalFeeCents:    150,
		InvoiceDate:      time.Now(),
	}
	if err := invoices.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	billID := uuid.New()
	if _, err := invoices.Allocate(context.Background(), &BillAllocation{
		InvoiceUUID: inv.UUID,
		BillUUID:    billID,
		AmountCents: 5000,
	}); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	detail, err := svc.GetInvoice(context.Background(), inv.UUID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if detail.TotalAmountCents != 5000 {
		t.Fatalf("total = %d, want 5000", detail.TotalAmountCents)
	}
	if len(detail.Allocations) != 1 || detail.Allocations[0].BillUUID != billID {
		t.Fatalf("unexpected allocations: %+v", detail.Allocations)
	}
}

func TestGetInvoice_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.GetInvoice(context.Background(), uuid.New()); err != ErrInvoiceNotFound {
		t.Fatalf("err = %v, want ErrInvoiceNotFound", err)
	}
}
