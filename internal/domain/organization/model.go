package organization

import (
	"time"

	"github.com/google/uuid"
)

// Organization maps to the organization table. Employers and clinic groups
// are both organizations; employer organizations are the payors of
// EMPLOYER bills.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Clinic maps to the clinic table. GatewayRecipientID is the payment
// gateway account that receives this clinic's settled transfers; clinics
// without one cannot be reconciled.
type Clinic struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OrganizationID     uuid.UUID `db:"organization_id" json:"organization_id"`
	GroupName          string    `db:"group_name" json:"group_name"`
	Name               string    `db:"name" json:"name"`
	LocationName       string    `db:"location_name" json:"location_name"`
	GatewayRecipientID *string   `db:"gateway_recipient_id" json:"gateway_recipient_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
