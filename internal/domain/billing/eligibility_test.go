package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsettle/medsettle/internal/platform/metrics"
)

type mockSettingsProvider struct {
	settings map[uuid.UUID]*InvoicingSettings
}

func (m *mockSettingsProvider) InvoicingSettingsFor(_ context.Context, orgID uuid.UUID) (*InvoicingSettings, error) {
	return m.settings[orgID], nil
}

func newGate(settings map[uuid.UUID]*InvoicingSettings, pilot []uuid.UUID) *EmployerGate {
	return NewEmployerGate(&mockSettingsProvider{settings: settings}, pilot, metrics.NewRegistry(), zerolog.Nop())
}

func dueBill(orgID uuid.UUID, at time.Time) *Bill {
	return &Bill{
		UUID:                         uuid.New(),
		PayorID:                      orgID,
		PayorType:                    PayorEmployer,
		Status:                       StatusNew,
		ProcessingScheduledAtOrAfter: &at,
	}
}

func TestCanAutoProcess(t *testing.T) {
	ctx := context.Background()
	invoiced := uuid.New()
	delayOnly := uuid.New()
	plain := uuid.New()
	piloted := uuid.New()

	gate := newGate(map[uuid.UUID]*InvoicingSettings{
		invoiced:  {DelayDays: 3},
		delayOnly: {DelayDays: 3},
	}, []uuid.UUID{piloted})

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	t.Run("due bill passes", func(t *testing.T) {
		ok, reason, err := gate.CanAutoProcess(ctx, dueBill(plain, past))
		if err != nil {
			t.Fatal(err)
		}
		if !ok || reason != ReasonEligible {
			t.Errorf("got (%v, %q), want eligible", ok, reason)
		}
	})

	t.Run("no schedule is held", func(t *testing.T) {
		b := dueBill(plain, past)
		b.ProcessingScheduledAtOrAfter = nil
		ok, reason, err := gate.CanAutoProcess(ctx, b)
		if err != nil {
			t.Fatal(err)
		}
		if ok || reason != ReasonNoSchedule {
			t.Errorf("got (%v, %q), want no-schedule hold", ok, reason)
		}
	})

	t.Run("future schedule is held", func(t *testing.T) {
		ok, reason, err := gate.CanAutoProcess(ctx, dueBill(plain, future))
		if err != nil {
			t.Fatal(err)
		}
		if ok || reason != ReasonNotDue {
			t.Errorf("got (%v, %q), want not-due hold", ok, reason)
		}
	})

	t.Run("invoiced organization is vetoed", func(t *testing.T) {
		ok, reason, err := gate.CanAutoProcess(ctx, dueBill(invoiced, past))
		if err != nil {
			t.Fatal(err)
		}
		if ok || reason != ReasonInvoicedOrg {
			t.Errorf("got (%v, %q), want invoiced-org veto", ok, reason)
		}
	})

	t.Run("delay-only settings still veto", func(t *testing.T) {
		// The veto keys on the settings row existing, not on what it
		// configures, no matter how overdue the bill is.
		ok, reason, err := gate.CanAutoProcess(ctx, dueBill(delayOnly, time.Now().Add(-24*time.Hour)))
		if err != nil {
			t.Fatal(err)
		}
		if ok || reason != ReasonInvoicedOrg {
			t.Errorf("got (%v, %q), want invoiced-org veto", ok, reason)
		}
	})

	t.Run("pilot override is vetoed", func(t *testing.T) {
		ok, reason, err := gate.CanAutoProcess(ctx, dueBill(piloted, past))
		if err != nil {
			t.Fatal(err)
		}
		if ok || reason != ReasonPilotOverride {
			t.Errorf("got (%v, %q), want pilot veto", ok, reason)
		}
	})
}

func TestCanProcessIgnoresVetoes(t *testing.T) {
	invoiced := uuid.New()
	gate := newGate(map[uuid.UUID]*InvoicingSettings{
		invoiced: {DelayDays: 3},
	}, []uuid.UUID{invoiced})

	ok, reason := gate.CanProcess(dueBill(invoiced, time.Now().Add(-time.Minute)))
	if !ok || reason != ReasonEligible {
		t.Errorf("got (%v, %q), want eligible despite vetoes", ok, reason)
	}

	ok, reason = gate.CanProcess(dueBill(invoiced, time.Now().Add(time.Minute)))
	if ok || reason != ReasonNotDue {
		t.Errorf("got (%v, %q), want not-due hold", ok, reason)
	}
}

func TestScheduleDueSubSecond(t *testing.T) {
	// A bill scheduled inside the current second counts as due.
	now := time.Date(2025, 3, 10, 12, 0, 0, 250_000_000, time.UTC)
	at := time.Date(2025, 3, 10, 12, 0, 0, 900_000_000, time.UTC)
	b := &Bill{UUID: uuid.New(), ProcessingScheduledAtOrAfter: &at}

	if ok, _ := scheduleDue(b, now); !ok {
		t.Error("bill scheduled later in the same second should be due")
	}

	next := time.Date(2025, 3, 10, 12, 0, 1, 100_000_000, time.UTC)
	b.ProcessingScheduledAtOrAfter = &next
	if ok, _ := scheduleDue(b, now); ok {
		t.Error("bill scheduled past the next whole second should not be due")
	}
}

func TestCeilToSecond(t *testing.T) {
	exact := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)
	if got := ceilToSecond(exact); !got.Equal(exact) {
		t.Errorf("whole second should be unchanged, got %v", got)
	}
	mid := time.Date(2025, 1, 1, 0, 0, 5, 1, time.UTC)
	want := time.Date(2025, 1, 1, 0, 0, 6, 0, time.UTC)
	if got := ceilToSecond(mid); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
