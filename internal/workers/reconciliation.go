package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/usecases"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (usecases.SweepStats, error)
}

// ReconciliationScheduler polls the ledger and settles pending recharges on a fixed interval.
type ReconciliationScheduler struct {
	logger   *slog.Logger
	sweeper  Sweeper
	interval time.Duration
}

func NewReconciliationScheduler(logger *slog.Logger, sweeper Sweeper, interval time.Duration) *ReconciliationScheduler {
	if interval < ports.MinPollInterval {
		interval = ports.MinPollInterval
	}
	return &ReconciliationScheduler{logger: logger, sweeper: sweeper, interval: interval}
}

// Start sweeps immediately and then every interval until ctx is done.
func (s *ReconciliationScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting reconciliation worker", "interval", s.interval.String())

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconciliation worker stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReconciliationScheduler) sweep(ctx context.Context) {
	started := time.Now()

	stats, err := s.sweeper.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, ports.ErrLedgerUnavailable):
		s.logger.WarnContext(ctx, "Ledger unavailable, retrying next cycle", "pending", stats.Pending)
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
		return
	}

	if stats.Settled > 0 || stats.Expired > 0 || stats.Flagged > 0 {
		s.logger.InfoContext(ctx, "Reconciliation sweep finished",
			"pending", stats.Pending,
			"transfers", stats.Transfers,
			"settled", stats.Settled,
			"expired", stats.Expired,
			"flagged", stats.Flagged,
			"duration", time.Since(started).String(),
		)
		return
	}
	s.logger.DebugContext(ctx, "Reconciliation sweep finished", "pending", stats.Pending, "transfers", stats.Transfers)
}
