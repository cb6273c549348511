package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

// сколько просроченных заказов перечислять в логе за один проход
const expiredLogBatch = 50

// OrderExpirer is the part of the order store the cleaner needs.
type OrderExpirer interface {
	FindExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]entities.RechargeOrder, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// OrderCleaner worker moves overdue pending recharge orders to expired
type OrderCleaner struct {
	logger *slog.Logger
	orders OrderExpirer
	clock  ports.Clock

	// How often to run the cleanup process
	cleanupInterval time.Duration
}

// NewOrderCleaner creates a new order cleaner worker
func NewOrderCleaner(
	logger *slog.Logger,
	orders OrderExpirer,
	clock ports.Clock,
	cleanupInterval time.Duration,
) *OrderCleaner {
	if clock == nil {
		clock = time.Now
	}
	return &OrderCleaner{
		logger:          logger,
		orders:          orders,
		clock:           clock,
		cleanupInterval: cleanupInterval,
	}
}

// Start begins the periodic expiry of overdue orders
func (oc *OrderCleaner) Start(ctx context.Context) {
	oc.logger.Info("Starting order cleaner worker", "cleanup_interval", oc.cleanupInterval.String())

	// Run an initial cleanup immediately
	if err := oc.expireOverdueOrders(ctx); err != nil {
		oc.logger.Error("Initial order cleanup failed", "error", err)
	}

	ticker := time.NewTicker(oc.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			oc.logger.Info("Order cleaner worker stopped")
			return
		case <-ticker.C:
			if err := oc.expireOverdueOrders(ctx); err != nil {
				oc.logger.Error("Order cleanup failed", "error", err)
			}
		}
	}
}

func (oc *OrderCleaner) expireOverdueOrders(ctx context.Context) error {
	now := oc.clock()

	candidates, err := oc.orders.FindExpiredCandidates(ctx, now, expiredLogBatch)
	if err != nil {
		return err
	}
	for _, order := range candidates {
		oc.logger.Debug("Expiring recharge order", "order_id", order.ID, "user_id", order.UserID,
			"expected", order.ExpectedAmount.StringFixed(4))
	}

	count, err := oc.orders.ExpireOverdue(ctx, now)
	if err != nil {
		return err
	}

	if count > 0 {
		oc.logger.Info("Expired overdue orders", "count", count)
	} else {
		oc.logger.Debug("No overdue orders")
	}
	return nil
}
