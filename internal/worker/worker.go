// Package worker runs periodic portfolio valuations in watch mode.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// Builder produces a valuation snapshot for the given instant.
type Builder interface {
	Build(ctx context.Context, at domain.PointInTime) (domain.Snapshot, error)
}

// Store persists finished snapshots.
type Store interface {
	Save(ctx context.Context, snap domain.Snapshot) error
}

// Pruner removes snapshots created before the cutoff. Stores that also
// implement it get retention enforcement after each save.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// AfterSnapshotHook is called after each successful valuation.
type AfterSnapshotHook interface {
	Export(ctx context.Context, snap domain.Snapshot) error
}

// SnapshotWorker periodically values the portfolio at the current instant.
type SnapshotWorker struct {
	builder    Builder
	interval   time.Duration
	runTimeout time.Duration
	retention  time.Duration
	zone       *time.Location
	store      Store             // optional
	hook       AfterSnapshotHook // optional
}

// NewSnapshotWorker creates a SnapshotWorker. store and hook may be nil.
// retention of zero keeps every snapshot; a positive retention prunes
// snapshots older than that after each save, when the store supports it.
func NewSnapshotWorker(builder Builder, interval, runTimeout, retention time.Duration, zone *time.Location, store Store, hook AfterSnapshotHook) *SnapshotWorker {
	if zone == nil {
		zone = time.UTC
	}
	return &SnapshotWorker{
		builder:    builder,
		interval:   interval,
		runTimeout: runTimeout,
		retention:  retention,
		zone:       zone,
		store:      store,
		hook:       hook,
	}
}

// Run starts the worker loop. It blocks until the context is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("SnapshotWorker: starting", "interval", w.interval)

	// Value immediately on startup
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SnapshotWorker: shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SnapshotWorker) runOnce(ctx context.Context) {
	runCtx := ctx
	if w.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.runTimeout)
		defer cancel()
	}

	at := domain.NewPointInTime(time.Now(), w.zone)
	snap, err := w.builder.Build(runCtx, at)
	if err != nil {
		slog.Error("SnapshotWorker: valuation failed", "error", err)
		return
	}
	slog.Info("SnapshotWorker: valuation completed",
		"total", snap.Total.String(), "fiat", snap.Fiat.String(), "warnings", len(snap.Warnings))

	if w.store != nil {
		if err := w.store.Save(runCtx, snap); err != nil {
			slog.Error("SnapshotWorker: save failed", "error", err)
		} else {
			w.enforceRetention(runCtx)
		}
	}
	if w.hook != nil {
		if err := w.hook.Export(runCtx, snap); err != nil {
			slog.Error("SnapshotWorker: export hook failed", "error", err)
		} else {
			slog.Info("SnapshotWorker: export hook completed")
		}
	}
}

func (w *SnapshotWorker) enforceRetention(ctx context.Context) {
	if w.retention <= 0 {
		return
	}
	pruner, ok := w.store.(Pruner)
	if !ok {
		return
	}

	removed, err := pruner.Prune(ctx, time.Now().Add(-w.retention))
	if err != nil {
		slog.Error("SnapshotWorker: retention prune failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("SnapshotWorker: pruned expired snapshots", "removed", removed, "retention", w.retention)
	}
}
