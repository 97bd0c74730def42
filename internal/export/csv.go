package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// CSVWriter writes the snapshot as a flat CSV file.
type CSVWriter struct {
	path string
}

// NewCSVWriter creates a CSVWriter targeting path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

func (w *CSVWriter) Write(_ context.Context, snap domain.Snapshot) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"asset", "amount", "price", "price_time", "price_source", "value", "approximate"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, row := range sortedBySymbol(snap.Rows) {
		record := []string{
			row.Asset.String(),
			domain.FormatAmount(row.Amount),
			row.Price.String(),
			row.PriceTime.UTC().Format(time.RFC3339),
			row.PriceSource,
			row.Value.StringFixed(2),
			fmt.Sprintf("%t", row.Approximate),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	if err := cw.Write([]string{"TOTAL", "", "", "", "", snap.Total.StringFixed(2), ""}); err != nil {
		return fmt.Errorf("writing csv total: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
