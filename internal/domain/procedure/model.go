package procedure

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a treatment procedure as reported by the
// upstream clinical system.
type Status string

const (
	StatusScheduled          Status = "SCHEDULED"
	StatusCompleted          Status = "COMPLETED"
	StatusPartiallyCompleted Status = "PARTIALLY_COMPLETED"
	StatusCancelled          Status = "CANCELLED"
)

// TreatmentProcedure maps to the treatment_procedure table.
type TreatmentProcedure struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	ClinicID  uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	Name      string     `db:"name" json:"name"`
	Status    Status     `db:"status" json:"status"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
