package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsettle/medsettle/internal/platform/db"
	"github.com/medsettle/medsettle/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const billCols = `id, uuid, amount, last_calculated_fee, payor_id, payor_type, procedure_id,
	cost_breakdown_id, status, processing_scheduled_at_or_after, label, error_type,
	created_at, modified_at, processing_at, paid_at, refunded_at, failed_at, cancelled_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.UUID, &b.AmountCents, &b.LastCalculatedFeeCents, &b.PayorID,
		&b.PayorType, &b.ProcedureID, &b.CostBreakdownID, &b.Status,
		&b.ProcessingScheduledAtOrAfter, &b.Label, &b.ErrorType,
		&b.CreatedAt, &b.ModifiedAt, &b.ProcessingAt, &b.PaidAt, &b.RefundedAt,
		&b.FailedAt, &b.CancelledAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBills(rows pgx.Rows) ([]Bill, error) {
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *b)
	}
	return bills, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, b *Bill) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill (uuid, amount, last_calculated_fee, payor_id, payor_type,
			procedure_id, cost_breakdown_id, status, processing_scheduled_at_or_after, label, refunded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, modified_at`,
		b.UUID, b.AmountCents, b.LastCalculatedFeeCents, b.PayorID, b.PayorType,
		b.ProcedureID, b.CostBreakdownID, b.Status, b.ProcessingScheduledAtOrAfter, b.Label, b.RefundedAt).
		Scan(&b.ID, &b.CreatedAt, &b.ModifiedAt)
}

func (r *repoPG) GetByUUID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billCols+` FROM bill WHERE uuid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]Bill, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if f.PayorID != nil {
		args = append(args, *f.PayorID)
		where += fmt.Sprintf(" AND payor_id = $%d", len(args))
	}
	if f.PayorType != nil {
		args = append(args, *f.PayorType)
		where += fmt.Sprintf(" AND payor_type = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Label != nil {
		args = append(args, *f.Label)
		where += fmt.Sprintf(" AND label = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM bill`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+billCols+` FROM bill`+where+
			fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	bills, err := collectBills(rows)
	return bills, total, err
}

const dueBillsQuery = `SELECT ` + billCols + ` FROM bill
	WHERE payor_type = $1
	  AND status IN ('NEW', 'FAILED')
	  AND processing_scheduled_at_or_after IS NOT NULL
	  AND processing_scheduled_at_or_after <= $2
	ORDER BY processing_scheduled_at_or_after, id`

func (r *repoPG) ListDueMemberBills(ctx context.Context, now time.Time) ([]Bill, error) {
	rows, err := r.conn(ctx).Query(ctx, dueBillsQuery, PayorMember, now)
	if err != nil {
		return nil, err
	}
	return collectBills(rows)
}

func (r *repoPG) ListDueEmployerBills(ctx context.Context, now time.Time) ([]Bill, error) {
	rows, err := r.conn(ctx).Query(ctx, dueBillsQuery, PayorEmployer, now)
	if err != nil {
		return nil, err
	}
	return collectBills(rows)
}

func (r *repoPG) ListReadyEmployerBills(ctx context.Context, orgID uuid.UUID, now time.Time) ([]Bill, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+billCols+` FROM bill b
		WHERE b.payor_type = $1
		  AND b.payor_id = $2
		  AND b.status IN ('NEW', 'FAILED')
		  AND b.processing_scheduled_at_or_after IS NOT NULL
		  AND b.processing_scheduled_at_or_after <= $3
		  AND NOT EXISTS (
			SELECT 1 FROM invoice_bill_allocation a WHERE a.bill_uuid = b.uuid
		  )
		ORDER BY b.processing_scheduled_at_or_after, b.id`,
		PayorEmployer, orgID, now)
	if err != nil {
		return nil, err
	}
	return collectBills(rows)
}

func (r *repoPG) ClaimForProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill
		SET status = 'PROCESSING',
		    processing_at = COALESCE(processing_at, now()),
		    modified_at = now()
		WHERE uuid = $1 AND status IN ('NEW', 'FAILED')`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID) error {
	// The fee has been charged at this point; the pending amount resets.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill
		SET status = 'PAID', last_calculated_fee = 0,
		    paid_at = COALESCE(paid_at, now()), modified_at = now()
		WHERE uuid = $1 AND status = 'PROCESSING'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.invalidTransition(ctx, id, StatusPaid)
	}
	return nil
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, errorType string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill
		SET status = 'FAILED', error_type = $2,
		    failed_at = COALESCE(failed_at, now()), modified_at = now()
		WHERE uuid = $1 AND status = 'PROCESSING'`, id, errorType)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.invalidTransition(ctx, id, StatusFailed)
	}
	return nil
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill
		SET status = 'CANCELLED',
		    cancelled_at = COALESCE(cancelled_at, now()), modified_at = now()
		WHERE uuid = $1 AND status IN ('NEW', 'PROCESSING')`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.invalidTransition(ctx, id, StatusCancelled)
	}
	return nil
}

// invalidTransition resolves a zero-row conditional update into either
// ErrNotFound or an InvalidStatusChangeError carrying the current status.
func (r *repoPG) invalidTransition(ctx context.Context, id uuid.UUID, to Status) error {
	var current Status
	err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM bill WHERE uuid = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &InvalidStatusChangeError{From: current, To: to}
}

func (r *repoPG) UpdateFee(ctx context.Context, id uuid.UUID, feeCents int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill SET last_calculated_fee = $2, modified_at = now() WHERE uuid = $1`,
		id, feeCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateSchedule(ctx context.Context, id uuid.UUID, at *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill SET processing_scheduled_at_or_after = $2, modified_at = now() WHERE uuid = $1`,
		id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) GetPaymentMethod(ctx context.Context, payorID uuid.UUID) (*PayorPaymentMethod, error) {
	var m PayorPaymentMethod
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT payor_id, method, method_type, card_funding, gateway_customer_ref, created_at
		FROM payor_payment_method WHERE payor_id = $1`, payorID).
		Scan(&m.PayorID, &m.Method, &m.MethodType, &m.CardFunding, &m.GatewayCustomerRef, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
