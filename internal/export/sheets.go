package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// SheetsWriter writes the snapshot to a Google spreadsheet.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write ensures required sheets exist, then clears and rewrites them.
func (w *SheetsWriter) Write(ctx context.Context, snap domain.Snapshot) error {
	if err := w.ensureSheets(ctx, snapshotSheet, warningsSheet); err != nil {
		return err
	}

	_, err := w.svc.Spreadsheets.Values.BatchClear(
		w.spreadsheetID,
		&sheets.BatchClearValuesRequest{
			Ranges: []string{snapshotSheet + "!A:G", warningsSheet + "!A:C"},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing sheets: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data: []*sheets.ValueRange{
				{Range: snapshotSheet + "!A1", Values: buildSnapshotValues(snap)},
				{Range: warningsSheet + "!A1", Values: buildWarningValues(snap)},
			},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing sheets: %w", err)
	}

	return nil
}

// buildSnapshotValues builds the SNAPSHOT sheet data.
// Columns: Asset | Amount | Price | Price time | Price source | Value | Approx
func buildSnapshotValues(snap domain.Snapshot) [][]any {
	data := make([][]any, 0, len(snap.Rows)+4)
	data = append(data, []any{
		"Asset", "Amount", "Price", "Price time", "Price source", "Value", "Approx",
	})

	for _, row := range sortedBySymbol(snap.Rows) {
		approx := ""
		if row.Approximate {
			approx = "~"
		}
		data = append(data, []any{
			row.Asset.String(),
			toFloat(row.Amount),
			toFloat(row.Price),
			row.PriceTime.UTC().Format(time.RFC3339),
			row.PriceSource,
			toFloat(row.Value),
			approx,
		})
	}

	data = append(data,
		[]any{"TOTAL", nil, nil, nil, nil, toFloat(snap.Total), ""},
		[]any{},
		[]any{fmt.Sprintf("Taken at %s (%s), valued in %s",
			snap.TakenAt.Format("2006-01-02 15:04:05"), snap.Timezone, snap.Fiat)},
	)

	return data
}

// buildWarningValues builds the WARNINGS sheet data.
func buildWarningValues(snap domain.Snapshot) [][]any {
	data := [][]any{{"Scope", "Subject", "Message"}}
	for _, warn := range snap.Warnings {
		data = append(data, []any{string(warn.Scope), warn.Subject, warn.Message})
	}
	return data
}

// ensureSheets creates any of the named sheets that do not already exist.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) error {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	existing := make(map[string]bool, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		existing[s.Properties.Title] = true
	}

	var requests []*sheets.Request
	for _, name := range names {
		if !existing[name] {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return nil
	}

	_, err = w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating sheets: %w", err)
	}

	return nil
}
