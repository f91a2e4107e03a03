package report

import (
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
	"github.com/iota-uz/helpdesk-recon/pkg/recon"
)

const sheetName = "Sheet1"

// WriteOutcomesXLSX writes the outcome report as a spreadsheet for
// operators who live in Excel.
func WriteOutcomesXLSX(path string, outcomes []recon.OutcomeRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeRow(f, 1, outcomeHeader); err != nil {
		return err
	}
	for i, o := range outcomes {
		row := []string{
			strconv.Itoa(o.RowNumber),
			o.Identity,
			string(o.Status),
			snapshotCell(o.Before),
			snapshotCell(o.After),
			o.Error,
		}
		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func WriteRowErrorsXLSX(path string, invalid []batch.RowErrors) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeRow(f, 1, []string{"Row", "Errors"}); err != nil {
		return err
	}
	for i, re := range invalid {
		if err := writeRow(f, i+2, []string{strconv.Itoa(re.RowNumber), JoinErrors(re.Errors)}); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeRow(f *excelize.File, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
	}
	return nil
}
