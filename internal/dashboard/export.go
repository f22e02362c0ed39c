package dashboard

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Payments"

var exportHeader = []any{
	"Payment ID", "User ID", "First Name", "Last Name", "Waste Type",
	"Flat Fee", "Payback Fee", "Total Bill", "Status",
}

// Export writes the current rows as an xlsx workbook. Amounts are written
// as their exact decimal text.
func (d *Dashboard) Export(w io.Writer) error {
	rows := d.Rows()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("export header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		values := []any{
			r.PaymentID, r.UserID, r.FirstName, r.LastName, r.WasteType,
			r.FlatFee.String(), r.PaybackFee.String(), r.TotalBill.String(),
			r.Status,
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("export row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export write: %w", err)
	}
	return nil
}
