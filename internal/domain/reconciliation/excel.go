package reconciliation

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	reportSheet = "Reconciliation"
	dateFormat  = "2006-01-02"
)

var reportHeader = []string{
	"Patient First Name",
	"Patient Last Name",
	"Date of Birth",
	"Procedure",
	"Clinic",
	"Location",
	"Transfer ID",
	"Payout ID",
	"Procedure Start",
	"Procedure End",
	"Billed Amount",
	"Settled Amount",
}

// WriteExcel writes the report rows as an XLSX workbook at path.
func WriteExcel(rows []ReportRow, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(reportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}

	header := make([]interface{}, len(reportHeader))
	for i, h := range reportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []interface{}{
			row.PatientFirstName,
			row.PatientLastName,
			optionalDate(row.PatientBirthDate),
			row.ProcedureName,
			row.ClinicName,
			row.ClinicLocationName,
			row.TransferID,
			row.PayoutID,
			optionalDate(row.ProcedureStartDate),
			optionalDate(row.ProcedureEndDate),
			row.BilledAmount,
			row.SettledAmount,
		}
		if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateFormat)
}
