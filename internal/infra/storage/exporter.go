package storage

import (
	"context"
	"time"

	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

// SnapshotSource produces the state to export.
type SnapshotSource func() Snapshot

// Exporter periodically replaces the stored snapshot with a fresh one.
type Exporter struct {
	repo     SnapshotRepository
	source   SnapshotSource
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Collector
}

func NewExporter(repo SnapshotRepository, source SnapshotSource, interval time.Duration, log *logger.Logger, m *metrics.Collector) *Exporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if m == nil {
		m = metrics.Get()
	}
	return &Exporter{
		repo:     repo,
		source:   source,
		interval: interval,
		logger:   log,
		metrics:  m,
	}
}

// Export writes one snapshot.
func (e *Exporter) Export(ctx context.Context) error {
	start := time.Now()
	snap := e.source()
	if snap.TakenAt.IsZero() {
		snap.TakenAt = start
	}
	err := e.repo.Save(ctx, snap)
	e.metrics.RecordExport(time.Since(start), err)
	if err != nil {
		e.logger.Warn("snapshot export failed", "tick", snap.Tick, "error", err)
		return err
	}
	e.logger.Debug("snapshot exported", "tick", snap.Tick, "banks", len(snap.Banks), "households", len(snap.Households))
	return nil
}

// Run resets the store, then exports every interval until ctx is done. A
// last export is attempted on the way out. Failed exports are logged and
// retried on the next interval.
func (e *Exporter) Run(ctx context.Context) error {
	if err := e.repo.Reset(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = e.Export(final)
			cancel()
			return nil
		case <-ticker.C:
			_ = e.Export(ctx)
		}
	}
}
