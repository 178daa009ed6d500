package organization

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var o Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, active, created_at, updated_at FROM organization WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type clinicRepoPG struct{ pool *pgxpool.Pool }

func NewClinicRepoPG(pool *pgxpool.Pool) ClinicRepository { return &clinicRepoPG{pool: pool} }

const clinicCols = `id, organization_id, group_name, name, location_name, gateway_recipient_id, created_at`

func (r *clinicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := r.pool.QueryRow(ctx, `SELECT `+clinicCols+` FROM clinic WHERE id = $1`, id).
		Scan(&c.ID, &c.OrganizationID, &c.GroupName, &c.Name, &c.LocationName, &c.GatewayRecipientID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clinicRepoPG) GetByGroupAndName(ctx context.Context, groupName, name string) (*Clinic, error) {
	var c Clinic
	err := r.pool.QueryRow(ctx,
		`SELECT `+clinicCols+` FROM clinic WHERE group_name = $1 AND name = $2`, groupName, name).
		Scan(&c.ID, &c.OrganizationID, &c.GroupName, &c.Name, &c.LocationName, &c.GatewayRecipientID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
