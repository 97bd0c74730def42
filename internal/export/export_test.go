package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

func sampleSnapshot() domain.Snapshot {
	at := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)
	return domain.Snapshot{
		ID:       "test-id",
		TakenAt:  at,
		Timezone: "UTC",
		Fiat:     "USD",
		Rows: []domain.AssetRow{
			{
				Asset:       "BTC",
				Amount:      decimal.RequireFromString("0.75"),
				Price:       decimal.NewFromInt(60000),
				PriceTime:   at,
				PriceSource: "coingecko",
				Value:       decimal.NewFromInt(45000),
			},
			{
				Asset:       "ETH",
				Amount:      decimal.NewFromInt(2),
				Price:       decimal.NewFromInt(3000),
				PriceTime:   at.Add(-30 * time.Minute),
				PriceSource: "coingecko",
				Value:       decimal.NewFromInt(6000),
				Approximate: true,
			},
		},
		Total: decimal.NewFromInt(51000),
		Warnings: []domain.Warning{
			{Scope: domain.WarningProvider, Subject: "kraken-main", Message: "rate limited"},
		},
		CreatedAt: at,
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	w := NewCSVWriter(path)

	if err := w.Write(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header, two rows, total)", len(lines))
	}
	if !strings.HasPrefix(lines[1], "BTC,0.75,60000,") {
		t.Errorf("BTC row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "true") {
		t.Errorf("ETH row should be marked approximate: %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "TOTAL,") || !strings.Contains(lines[3], "51000.00") {
		t.Errorf("total row = %q", lines[3])
	}
}

func TestExcelWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.xlsx")
	w := NewExcelWriter(path)

	if err := w.Write(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
}

func TestBuildSnapshotValuesSymbolOrder(t *testing.T) {
	values := buildSnapshotValues(sampleSnapshot())
	if values[1][0] != "BTC" || values[2][0] != "ETH" {
		t.Errorf("row order = %v, %v; want BTC, ETH", values[1][0], values[2][0])
	}
	if values[2][6] != "~" {
		t.Errorf("approximate marker = %v, want ~", values[2][6])
	}
}

type failingWriter struct{}

func (failingWriter) Write(context.Context, domain.Snapshot) error {
	return errors.New("boom")
}

type countingWriter struct{ calls int }

func (c *countingWriter) Write(context.Context, domain.Snapshot) error {
	c.calls++
	return nil
}

func TestServiceContinuesPastFailedWriter(t *testing.T) {
	counter := &countingWriter{}
	svc := NewService(failingWriter{}, counter)

	err := svc.Export(context.Background(), sampleSnapshot())
	if err == nil {
		t.Error("expected the first writer's error")
	}
	if counter.calls != 1 {
		t.Errorf("second writer called %d times, want 1", counter.calls)
	}
}
