package invoicing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsettle/medsettle/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type settingsRepoPG struct{ pool *pgxpool.Pool }

func NewSettingsRepoPG(pool *pgxpool.Pool) SettingsRepository { return &settingsRepoPG{pool: pool} }

func (r *settingsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const settingsCols = `id, organization_id, delay_days, cadence_expr, created_at, updated_at`

func scanSettings(row pgx.Row) (*OrganizationInvoicingSettings, error) {
	var s OrganizationInvoicingSettings
	err := row.Scan(&s.ID, &s.OrganizationID, &s.DelayDays, &s.CadenceExpr, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepoPG) GetByOrganization(ctx context.Context, orgID uuid.UUID) (*OrganizationInvoicingSettings, error) {
	s, err := scanSettings(r.conn(ctx).QueryRow(ctx,
		`SELECT `+settingsCols+` FROM org_invoicing_settings WHERE organization_id = $1`, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	return s, err
}

func (r *settingsRepoPG) ListWithCadence(ctx context.Context) ([]OrganizationInvoicingSettings, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+settingsCols+` FROM org_invoicing_settings
		WHERE cadence_expr IS NOT NULL AND cadence_expr <> ''
		ORDER BY organization_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrganizationInvoicingSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *settingsRepoPG) Upsert(ctx context.Context, s *OrganizationInvoicingSettings) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO org_invoicing_settings (id, organization_id, delay_days, cadence_expr)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id) DO UPDATE
		SET delay_days = EXCLUDED.delay_days,
		    cadence_expr = EXCLUDED.cadence_expr,
		    updated_at = now()
		RETURNING id, created_at, updated_at`,
		s.ID, s.OrganizationID, s.DelayDays, s.CadenceExpr).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const invoiceCols = `id, uuid, organization_id, total_amount, total_fee, invoice_date,
	period_start, period_end, created_by_type, created_by_user_id, created_at`

func scanInvoice(row pgx.Row) (*DirectPaymentInvoice, error) {
	var inv DirectPaymentInvoice
	err := row.Scan(&inv.ID, &inv.UUID, &inv.OrganizationID, &inv.TotalAmountCents,
		&inv.TotalFeeCents, &inv.InvoiceDate, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.CreatedByType, &inv.CreatedByUserID, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepoPG) CreateInvoice(ctx context.Context, inv *DirectPaymentInvoice) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO direct_payment_invoice (uuid, organization_id, total_amount, total_fee,
			invoice_date, period_start, period_end, created_by_type, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		inv.UUID, inv.OrganizationID, inv.TotalAmountCents, inv.TotalFeeCents,
		inv.InvoiceDate, inv.PeriodStart, inv.PeriodEnd, inv.CreatedByType, inv.CreatedByUserID).
		Scan(&inv.ID, &inv.CreatedAt)
}

func (r *invoiceRepoPG) UpdateTotals(ctx context.Context, invoiceUUID uuid.UUID, amountCents, feeCents int64) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE direct_payment_invoice SET total_amount = $2, total_fee = $3 WHERE uuid = $1`,
		invoiceUUID, amountCents, feeCents)
	return err
}

func (r *invoiceRepoPG) GetInvoice(ctx context.Context, id uuid.UUID) (*DirectPaymentInvoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM direct_payment_invoice WHERE uuid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *invoiceRepoPG) ListInvoices(ctx context.Context, orgID uuid.UUID) ([]DirectPaymentInvoice, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+invoiceCols+` FROM direct_payment_invoice
		WHERE organization_id = $1
		ORDER BY invoice_date DESC, id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DirectPaymentInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepoPG) Allocate(ctx context.Context, a *BillAllocation) (bool, error) {
	// bill_uuid is unique across all invoices, so re-running generation
	// cannot double-bill: the losing insert is a no-op.
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_bill_allocation (invoice_uuid, bill_uuid, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (bill_uuid) DO NOTHING`,
		a.InvoiceUUID, a.BillUUID, a.AmountCents)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *invoiceRepoPG) ListAllocations(ctx context.Context, invoiceID uuid.UUID) ([]BillAllocation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT invoice_uuid, bill_uuid, amount, created_at
		FROM invoice_bill_allocation
		WHERE invoice_uuid = $1
		ORDER BY created_at, bill_uuid`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BillAllocation
	for rows.Next() {
		var a BillAllocation
		if err := rows.Scan(&a.InvoiceUUID, &a.BillUUID, &a.AmountCents, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
