package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsettle/medsettle/internal/domain/procedure"
	"github.com/medsettle/medsettle/internal/platform/gateway"
	"github.com/medsettle/medsettle/internal/platform/metrics"
	"github.com/medsettle/medsettle/pkg/pagination"
)

// -- Mocks --

type mockBillRepo struct {
	bills   map[uuid.UUID]*Bill
	methods map[uuid.UUID]*PayorPaymentMethod
	nextID  int64
}

func newMockBillRepo() *mockBillRepo {
	return &mockBillRepo{
		bills:   make(map[uuid.UUID]*Bill),
		methods: make(map[uuid.UUID]*PayorPaymentMethod),
	}
}

func (m *mockBillRepo) Create(_ context.Context, b *Bill) error {
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = time.Now()
	b.ModifiedAt = b.CreatedAt
	cp := *b
	m.bills[b.UUID] = &cp
	return nil
}

func (m *mockBillRepo) GetByUUID(_ context.Context, id uuid.UUID) (*Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBillRepo) List(_ context.Context, f ListFilter, p pagination.Params) ([]Bill, int, error) {
	var out []Bill
	for _, b := range m.bills {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.PayorType != nil && b.PayorType != *f.PayorType {
			continue
		}
		if f.PayorID != nil && b.PayorID != *f.PayorID {
			continue
		}
		if f.Label != nil && (b.Label == nil || *b.Label != *f.Label) {
			continue
		}
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (m *mockBillRepo) listDue(payorType PayorType, now time.Time) []Bill {
	var out []Bill
	for _, b := range m.bills {
		if b.PayorType != payorType {
			continue
		}
		if b.Status != StatusNew && b.Status != StatusFailed {
			continue
		}
		if b.ProcessingScheduledAtOrAfter == nil || b.ProcessingScheduledAtOrAfter.After(now) {
			continue
		}
		out = append(out, *b)
	}
	return out
}

func (m *mockBillRepo) ListDueMemberBills(_ context.Context, now time.Time) ([]Bill, error) {
	return m.listDue(PayorMember, now), nil
}

func (m *mockBillRepo) ListDueEmployerBills(_ context.Context, now time.Time) ([]Bill, error) {
	return m.listDue(PayorEmployer, now), nil
}

func (m *mockBillRepo) ListReadyEmployerBills(_ context.Context, orgID uuid.UUID, now time.Time) ([]Bill, error) {
	var out []Bill
	for _, b := range m.listDue(PayorEmployer, now) {
		if b.PayorID == orgID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBillRepo) ClaimForProcessing(_ context.Context, id uuid.UUID) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrAlreadyClaimed
	}
	if b.Status != StatusNew && b.Status != StatusFailed {
		return ErrAlreadyClaimed
	}
	now := time.Now()
	b.Status = StatusProcessing
	if b.ProcessingAt == nil {
		b.ProcessingAt = &now
	}
	b.ModifiedAt = now
	return nil
}

func (m *mockBillRepo) MarkPaid(_ context.Context, id uuid.UUID) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != StatusProcessing {
		return &InvalidStatusChangeError{From: b.Status, To: StatusPaid}
	}
	now := time.Now()
	b.Status = StatusPaid
	b.LastCalculatedFeeCents = 0
	b.PaidAt = &now
	b.ModifiedAt = now
	return nil
}

func (m *mockBillRepo) MarkFailed(_ context.Context, id uuid.UUID, errorType string) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != StatusProcessing {
		return &InvalidStatusChangeError{From: b.Status, To: StatusFailed}
	}
	now := time.Now()
	b.Status = StatusFailed
	b.ErrorType = &errorType
	b.FailedAt = &now
	b.ModifiedAt = now
	return nil
}

func (m *mockBillRepo) Cancel(_ context.Context, id uuid.UUID) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != StatusNew && b.Status != StatusProcessing {
		return &InvalidStatusChangeError{From: b.Status, To: StatusCancelled}
	}
	now := time.Now()
	b.Status = StatusCancelled
	b.CancelledAt = &now
	b.ModifiedAt = now
	return nil
}

func (m *mockBillRepo) UpdateFee(_ context.Context, id uuid.UUID, feeCents int64) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrNotFound
	}
	b.LastCalculatedFeeCents = feeCents
	return nil
}

func (m *mockBillRepo) UpdateSchedule(_ context.Context, id uuid.UUID, at *time.Time) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrNotFound
	}
	b.ProcessingScheduledAtOrAfter = at
	return nil
}

func (m *mockBillRepo) GetPaymentMethod(_ context.Context, payorID uuid.UUID) (*PayorPaymentMethod, error) {
	return m.methods[payorID], nil
}

type mockProcedureRepo struct {
	items map[uuid.UUID]*procedure.TreatmentProcedure
}

func newMockProcedureRepo() *mockProcedureRepo {
	return &mockProcedureRepo{items: make(map[uuid.UUID]*procedure.TreatmentProcedure)}
}

func (m *mockProcedureRepo) GetByID(_ context.Context, id uuid.UUID) (*procedure.TreatmentProcedure, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockProcedureRepo) add(status procedure.Status) uuid.UUID {
	id := uuid.New()
	m.items[id] = &procedure.TreatmentProcedure{ID: id, PatientID: uuid.New(), ClinicID: uuid.New(), Status: status}
	return id
}

type mockGateway struct {
	status    gateway.SubmitStatus
	err       error
	calls     []gateway.SubmitRequest
	transfers []gateway.Transfer
}

func (m *mockGateway) SubmitBill(_ context.Context, req gateway.SubmitRequest) (gateway.SubmitStatus, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return "", m.err
	}
	return m.status, nil
}

func (m *mockGateway) ListSettledTransfers(_ context.Context, _ string, _, _ time.Time) ([]gateway.Transfer, error) {
	return m.transfers, nil
}

type fixture struct {
	repo  *mockBillRepo
	procs *mockProcedureRepo
	gw    *mockGateway
	m     *metrics.Registry
	svc   *Service
}

func newFixture(settings map[uuid.UUID]*InvoicingSettings) *fixture {
	repo := newMockBillRepo()
	procs := newMockProcedureRepo()
	gw := &mockGateway{status: gateway.StatusProcessing}
	m := metrics.NewRegistry()
	svc := NewService(repo, procs, &mockSettingsProvider{settings: settings}, gw, 7,
		m, zerolog.Nop())
	return &fixture{repo: repo, procs: procs, gw: gw, m: m, svc: svc}
}

func cardMethod(payorID uuid.UUID, funding CardFunding) *PayorPaymentMethod {
	return &PayorPaymentMethod{
		PayorID:            payorID,
		Method:             MethodPaymentGateway,
		MethodType:         MethodTypeCard,
		CardFunding:        funding,
		GatewayCustomerRef: "cus_" + payorID.String()[:8],
	}
}

// -- Tests --

func TestCreateBillStampsScheduleAndFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	member := uuid.New()
	f.repo.methods[member] = cardMethod(member, FundingCredit)
	procID := f.procs.add(procedure.StatusCompleted)

	b, err := f.svc.CreateBill(ctx, CreateBillInput{
		AmountCents: 10000,
		PayorID:     member,
		PayorType:   PayorMember,
		ProcedureID: &procID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusNew {
		t.Errorf("status = %s, want NEW", b.Status)
	}
	if b.LastCalculatedFeeCents != 300 {
		t.Errorf("fee = %d, want 300", b.LastCalculatedFeeCents)
	}
	if b.ProcessingScheduledAtOrAfter == nil {
		t.Fatal("expected a processing schedule")
	}
	wantDay := time.Now().AddDate(0, 0, 7)
	if d := b.ProcessingScheduledAtOrAfter.Sub(wantDay); d < -time.Minute || d > time.Minute {
		t.Errorf("schedule %v not ~7 days out", b.ProcessingScheduledAtOrAfter)
	}
}

func TestCreateBillPendingProcedureHasNoSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	member := uuid.New()
	procID := f.procs.add(procedure.StatusScheduled)

	b, err := f.svc.CreateBill(ctx, CreateBillInput{
		AmountCents: 10000,
		PayorID:     member,
		PayorType:   PayorMember,
		ProcedureID: &procID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.ProcessingScheduledAtOrAfter != nil {
		t.Errorf("expected no schedule, got %v", b.ProcessingScheduledAtOrAfter)
	}
	if b.LastCalculatedFeeCents != 0 {
		t.Errorf("fee without a payment method = %d, want 0", b.LastCalculatedFeeCents)
	}
}

func TestCreateBillEmployerDelay(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	f := newFixture(map[uuid.UUID]*InvoicingSettings{org: {DelayDays: 14}})

	b, err := f.svc.CreateBill(ctx, CreateBillInput{
		AmountCents: 250000,
		PayorID:     org,
		PayorType:   PayorEmployer,
	})
	if err != nil {
		t.Fatal(err)
	}
	wantDay := time.Now().AddDate(0, 0, 14)
	if b.ProcessingScheduledAtOrAfter == nil {
		t.Fatal("expected a processing schedule")
	}
	if d := b.ProcessingScheduledAtOrAfter.Sub(wantDay); d < -time.Minute || d > time.Minute {
		t.Errorf("schedule %v not ~14 days out", b.ProcessingScheduledAtOrAfter)
	}
	if got := f.m.Value("bill.employer_settings_present", map[string]string{"payor_id": org.String()}); got != 1 {
		t.Errorf("settings-present signal = %d, want 1", got)
	}
}

func TestCreateBillEmployerRequiresPayor(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.CreateBill(context.Background(), CreateBillInput{
		AmountCents: 1000,
		PayorType:   PayorEmployer,
	})
	if !errors.Is(err, ErrEmployerPayorRequired) {
		t.Fatalf("expected ErrEmployerPayorRequired, got %v", err)
	}
}

func seedBill(f *fixture, payorType PayorType, amount int64, status Status, schedAgo time.Duration) *Bill {
	at := time.Now().Add(-schedAgo)
	b := &Bill{
		UUID:                         uuid.New(),
		AmountCents:                  amount,
		PayorID:                      uuid.New(),
		PayorType:                    payorType,
		Status:                       status,
		ProcessingScheduledAtOrAfter: &at,
	}
	f.repo.Create(context.Background(), b)
	return b
}

func TestProcessBillPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.gw.status = gateway.StatusPaid
	b := seedBill(f, PayorMember, 10000, StatusNew, time.Hour)
	f.repo.methods[b.PayorID] = cardMethod(b.PayorID, FundingCredit)

	got, err := f.svc.ProcessBill(ctx, b.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
	if got.PaidAt == nil || got.ProcessingAt == nil {
		t.Error("lifecycle timestamps not stamped")
	}
	// The fee was charged with the settlement, so the pending fee resets.
	if got.LastCalculatedFeeCents != 0 {
		t.Errorf("fee after settlement = %d, want 0", got.LastCalculatedFeeCents)
	}
	if len(f.gw.calls) != 1 {
		t.Fatalf("gateway called %d times, want 1", len(f.gw.calls))
	}
	if f.gw.calls[0].FeeCents != 300 || f.gw.calls[0].AmountCents != 10000 {
		t.Errorf("gateway got amount=%d fee=%d", f.gw.calls[0].AmountCents, f.gw.calls[0].FeeCents)
	}
}

func TestProcessBillAsyncStaysProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.gw.status = gateway.StatusProcessing
	b := seedBill(f, PayorMember, 5000, StatusNew, time.Hour)
	f.repo.methods[b.PayorID] = cardMethod(b.PayorID, FundingDebit)

	got, err := f.svc.ProcessBill(ctx, b.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", got.Status)
	}
	if got.LastCalculatedFeeCents != 0 {
		t.Errorf("debit card fee = %d, want 0", got.LastCalculatedFeeCents)
	}
}

func TestProcessBillGatewayErrorMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.gw.err = &gateway.Error{Code: 402, Message: "card declined"}
	b := seedBill(f, PayorMember, 5000, StatusNew, time.Hour)
	f.repo.methods[b.PayorID] = cardMethod(b.PayorID, FundingCredit)

	_, err := f.svc.ProcessBill(ctx, b.UUID)
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	stored, _ := f.repo.GetByUUID(ctx, b.UUID)
	if stored.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", stored.Status)
	}
	if stored.ErrorType == nil || *stored.ErrorType != "GATEWAY_402" {
		t.Errorf("error type = %v, want GATEWAY_402", stored.ErrorType)
	}
}

func TestProcessBillFailedCanRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.gw.status = gateway.StatusPaid
	b := seedBill(f, PayorMember, 5000, StatusFailed, time.Hour)
	f.repo.methods[b.PayorID] = cardMethod(b.PayorID, FundingCredit)

	got, err := f.svc.ProcessBill(ctx, b.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPaid {
		t.Errorf("retried bill status = %s, want PAID", got.Status)
	}
}

func TestProcessBillMissingPaymentInformation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	b := seedBill(f, PayorMember, 5000, StatusNew, time.Hour)

	_, err := f.svc.ProcessBill(ctx, b.UUID)
	if !errors.Is(err, ErrMissingPaymentGatewayInformation) {
		t.Fatalf("expected ErrMissingPaymentGatewayInformation, got %v", err)
	}

	stored, _ := f.repo.GetByUUID(ctx, b.UUID)
	if stored.Status != StatusNew {
		t.Errorf("bill should be untouched, status = %s", stored.Status)
	}
	if len(f.gw.calls) != 0 {
		t.Error("gateway should not be called")
	}
}

func TestProcessBillAlreadyClaimed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	b := seedBill(f, PayorMember, 5000, StatusProcessing, time.Hour)
	f.repo.methods[b.PayorID] = cardMethod(b.PayorID, FundingCredit)

	_, err := f.svc.ProcessBill(ctx, b.UUID)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if len(f.gw.calls) != 0 {
		t.Error("loser of the claim must not reach the gateway")
	}
}

func TestCancelBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	b := seedBill(f, PayorMember, 5000, StatusNew, time.Hour)

	got, err := f.svc.Cancel(ctx, b.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || got.CancelledAt == nil {
		t.Errorf("got status %s, cancelled_at %v", got.Status, got.CancelledAt)
	}

	// Terminal bills cannot be cancelled again.
	_, err = f.svc.Cancel(ctx, b.UUID)
	var invalid *InvalidStatusChangeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStatusChangeError, got %v", err)
	}
}

func TestIssueRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	b := seedBill(f, PayorMember, 10000, StatusNew, time.Hour)
	f.repo.bills[b.UUID].Status = StatusPaid

	refund, err := f.svc.IssueRefund(ctx, b.UUID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if refund.Status != StatusRefunded {
		t.Errorf("refund status = %s, want REFUNDED", refund.Status)
	}
	if refund.AmountCents != -10000 {
		t.Errorf("refund amount = %d, want -10000", refund.AmountCents)
	}
	if refund.RefundedAt == nil {
		t.Error("refunded_at not stamped")
	}
	if refund.Label == nil || *refund.Label != "refund of "+b.UUID.String() {
		t.Errorf("refund label = %v", refund.Label)
	}

	orig, _ := f.repo.GetByUUID(ctx, b.UUID)
	if orig.Status != StatusPaid || orig.AmountCents != 10000 {
		t.Error("original bill must not be mutated by a refund")
	}
}

func TestIssueRefundPartial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	b := seedBill(f, PayorMember, 10000, StatusNew, time.Hour)
	f.repo.bills[b.UUID].Status = StatusPaid

	amount := int64(2500)
	refund, err := f.svc.IssueRefund(ctx, b.UUID, &amount)
	if err != nil {
		t.Fatal(err)
	}
	if refund.AmountCents != -2500 {
		t.Errorf("refund amount = %d, want -2500", refund.AmountCents)
	}

	over := int64(20000)
	if _, err := f.svc.IssueRefund(ctx, b.UUID, &over); err == nil {
		t.Error("refund above the original amount should be rejected")
	}
}

func TestIssueRefundRequiresPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	b := seedBill(f, PayorMember, 10000, StatusNew, time.Hour)

	_, err := f.svc.IssueRefund(ctx, b.UUID, nil)
	if !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("expected ErrRefundNotAllowed, got %v", err)
	}
}
