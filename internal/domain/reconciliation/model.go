package reconciliation

import "time"

// ReportRow is one settled transfer cross-referenced back to the procedure
// and patient it paid for. Amounts are two-decimal currency strings.
type ReportRow struct {
	PatientFirstName   string     `json:"patient_first_name"`
	PatientLastName    string     `json:"patient_last_name"`
	PatientBirthDate   *time.Time `json:"patient_birth_date,omitempty"`
	ProcedureName      string     `json:"procedure_name"`
	ClinicName         string     `json:"clinic_name"`
	ClinicLocationName string     `json:"clinic_location_name"`
	TransferID         string     `json:"transfer_id"`
	PayoutID           string     `json:"payout_id"`
	ProcedureStartDate *time.Time `json:"procedure_start_date,omitempty"`
	ProcedureEndDate   *time.Time `json:"procedure_end_date,omitempty"`
	BilledAmount       string     `json:"billed_amount"`
	SettledAmount      string     `json:"settled_amount"`
}
