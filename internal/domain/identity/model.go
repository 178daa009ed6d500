package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Only the fields the settlement and
// reconciliation paths need are carried here; full demographics live upstream.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
