// Package export renders finished snapshots to file and spreadsheet targets.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// Writer renders one snapshot to a destination.
type Writer interface {
	Write(ctx context.Context, snap domain.Snapshot) error
}

// Service fans a snapshot out to all configured writers.
// Implements worker.AfterSnapshotHook.
type Service struct {
	writers []Writer
}

// NewService creates an export Service over the given writers.
func NewService(writers ...Writer) *Service {
	return &Service{writers: writers}
}

// Export writes the snapshot to every writer. Writers are independent; a
// failure in one does not stop the others, but the first error is returned.
func (s *Service) Export(ctx context.Context, snap domain.Snapshot) error {
	var firstErr error
	for _, w := range s.writers {
		if err := w.Write(ctx, snap); err != nil {
			slog.Error("export: writer failed", "writer", fmt.Sprintf("%T", w), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// sortedBySymbol returns the rows in ascending symbol order. File exports use
// symbol order so that diffs between runs stay readable; the snapshot itself
// keeps value order.
func sortedBySymbol(rows []domain.AssetRow) []domain.AssetRow {
	out := make([]domain.AssetRow, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
