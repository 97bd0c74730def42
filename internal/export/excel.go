package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

const (
	snapshotSheet = "SNAPSHOT"
	warningsSheet = "WARNINGS"
)

// ExcelWriter writes the snapshot as an .xlsx workbook with a SNAPSHOT sheet
// and, when the run degraded, a WARNINGS sheet.
type ExcelWriter struct {
	path string
}

// NewExcelWriter creates an ExcelWriter targeting path.
func NewExcelWriter(path string) *ExcelWriter {
	return &ExcelWriter{path: path}
}

func (w *ExcelWriter) Write(_ context.Context, snap domain.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", snapshotSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	header := []any{"Asset", "Amount", "Price", "Price time", "Price source", "Value", "Approx"}
	if err := f.SetSheetRow(snapshotSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	line := 2
	for _, row := range sortedBySymbol(snap.Rows) {
		approx := ""
		if row.Approximate {
			approx = "~"
		}
		cells := []any{
			row.Asset.String(),
			toFloat(row.Amount),
			toFloat(row.Price),
			row.PriceTime.UTC().Format(time.RFC3339),
			row.PriceSource,
			toFloat(row.Value),
			approx,
		}
		if err := f.SetSheetRow(snapshotSheet, fmt.Sprintf("A%d", line), &cells); err != nil {
			return fmt.Errorf("writing row %d: %w", line, err)
		}
		line++
	}

	total := []any{"TOTAL", nil, nil, nil, nil, toFloat(snap.Total), ""}
	if err := f.SetSheetRow(snapshotSheet, fmt.Sprintf("A%d", line+1), &total); err != nil {
		return fmt.Errorf("writing total: %w", err)
	}

	meta := []any{
		fmt.Sprintf("Taken at %s (%s), valued in %s",
			snap.TakenAt.Format("2006-01-02 15:04:05"), snap.Timezone, snap.Fiat),
	}
	if err := f.SetSheetRow(snapshotSheet, fmt.Sprintf("A%d", line+3), &meta); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	if len(snap.Warnings) > 0 {
		if _, err := f.NewSheet(warningsSheet); err != nil {
			return fmt.Errorf("creating warnings sheet: %w", err)
		}
		warnHeader := []any{"Scope", "Subject", "Message"}
		if err := f.SetSheetRow(warningsSheet, "A1", &warnHeader); err != nil {
			return fmt.Errorf("writing warnings header: %w", err)
		}
		for i, warn := range snap.Warnings {
			cells := []any{string(warn.Scope), warn.Subject, warn.Message}
			if err := f.SetSheetRow(warningsSheet, fmt.Sprintf("A%d", i+2), &cells); err != nil {
				return fmt.Errorf("writing warning %d: %w", i, err)
			}
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving %s: %w", w.path, err)
	}
	return nil
}
