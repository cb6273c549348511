package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

// SettlementResult is the outcome of matching one order against the ledger.
type SettlementResult string

const (
	SettlementSettled        SettlementResult = "settled"
	SettlementAlreadySettled SettlementResult = "already_settled"
	SettlementExpired        SettlementResult = "expired"
	SettlementCanceled       SettlementResult = "canceled"
	SettlementNoMatch        SettlementResult = "no_match"
)

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	Pending   int
	Transfers int
	Settled   int
	Expired   int
	Flagged   int
}

// SettlementOptions are the matching parameters.
type SettlementOptions struct {
	Address      string
	Grace        time.Duration
	BatchSize    int
	FetchLimit   int
	LateLookback time.Duration
}

type SettlementCoordinator struct {
	logger     *slog.Logger
	orders     ports.OrderStore
	accounts   ports.AccountStore
	review     ports.ReviewQueue
	ledger     ports.LedgerClient
	transactor ports.Transactor
	notifier   ports.NotificationSink
	clock      ports.Clock
	opts       SettlementOptions
}

func NewSettlementCoordinator(
	logger *slog.Logger,
	orders ports.OrderStore,
	accounts ports.AccountStore,
	review ports.ReviewQueue,
	ledger ports.LedgerClient,
	transactor ports.Transactor,
	notifier ports.NotificationSink,
	clock ports.Clock,
	opts SettlementOptions,
) *SettlementCoordinator {
	if clock == nil {
		clock = time.Now
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = ports.DefaultSweepBatchSize
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = ports.DefaultLedgerFetchLimit
	}
	if opts.LateLookback <= 0 {
		opts.LateLookback = ports.DefaultLateMatchLookback
	}
	return &SettlementCoordinator{
		logger:     logger,
		orders:     orders,
		accounts:   accounts,
		review:     review,
		ledger:     ledger,
		transactor: transactor,
		notifier:   notifier,
		clock:      clock,
		opts:       opts,
	}
}

// matches reports whether t pays order: same recipient, exact amount, not older than created - grace.
func (c *SettlementCoordinator) matches(order *entities.RechargeOrder, t entities.LedgerTransfer) bool {
	if !t.PaysTo(order.Address) {
		return false
	}
	if !t.Amount.Equal(order.ExpectedAmount) {
		return false
	}
	return !t.Timestamp.Before(order.CreatedAt.Add(-c.opts.Grace))
}

// Reconcile settles order with the first matching transfer. It is safe to call concurrently for
// the same order: the conditional pending -> paid transition decides the single winner.
func (c *SettlementCoordinator) Reconcile(
	ctx context.Context,
	order *entities.RechargeOrder,
	transfers []entities.LedgerTransfer,
	now time.Time,
) (SettlementResult, error) {
	switch order.Status {
	case entities.OrderStatusPaid:
		return SettlementAlreadySettled, nil
	case entities.OrderStatusExpired:
		return SettlementExpired, nil
	case entities.OrderStatusCanceled:
		return SettlementCanceled, nil
	}

	if order.IsExpired(now) {
		err := c.orders.Transition(ctx, order.ID, entities.OrderStatusPending, entities.OrderStatusExpired,
			entities.TransitionFields{})
		if err != nil && !errors.Is(err, ports.ErrConflict) {
			return "", fmt.Errorf("failed to expire order %s: %w", order.ID, err)
		}
		if errors.Is(err, ports.ErrConflict) {
			return c.currentResult(ctx, order.ID)
		}
		order.Status = entities.OrderStatusExpired
		c.logger.InfoContext(ctx, "Recharge order expired", "order_id", order.ID)
		return SettlementExpired, nil
	}

	for _, t := range transfers {
		if !c.matches(order, t) {
			continue
		}

		result, err := c.settle(ctx, order, t, now)
		if errors.Is(err, ports.ErrTransferAlreadyClaimed) {
			c.logger.WarnContext(ctx, "Transfer already settled another order",
				"order_id", order.ID, "tx_id", t.TxID)
			continue
		}
		return result, err
	}

	return SettlementNoMatch, nil
}

func (c *SettlementCoordinator) settle(
	ctx context.Context,
	order *entities.RechargeOrder,
	t entities.LedgerTransfer,
	now time.Time,
) (SettlementResult, error) {
	paidAt := now.UTC()
	txID := t.TxID
	from := t.FromAddress
	won := false

	var account *entities.UserAccount
	err := c.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		err := c.orders.Transition(ctx, order.ID, entities.OrderStatusPending, entities.OrderStatusPaid,
			entities.TransitionFields{PaidAt: &paidAt, TxID: &txID, FromAddress: &from})
		if errors.Is(err, ports.ErrConflict) {
			return nil
		}
		if err != nil {
			return err
		}

		balance, err := c.accounts.Credit(ctx, order.UserID, order.BaseAmount)
		if err != nil {
			return fmt.Errorf("failed to credit user %d: %w", order.UserID, err)
		}
		won = true
		account = &entities.UserAccount{UserID: order.UserID, Balance: balance}
		return nil
	})
	if err != nil {
		return "", err
	}

	if !won {
		c.logger.InfoContext(ctx, "Order settled concurrently", "order_id", order.ID, "tx_id", txID)
		return c.currentResult(ctx, order.ID)
	}

	order.Status = entities.OrderStatusPaid
	order.PaidAt = &paidAt
	order.TxID = &txID
	order.FromAddress = &from

	c.logger.InfoContext(ctx, "Recharge order settled",
		"order_id", order.ID, "user_id", order.UserID, "tx_id", txID, "provider", t.Provider,
		"expected", order.ExpectedAmount.StringFixed(4), "credited", order.BaseAmount.StringFixed(2),
		"balance", account.Balance.String())
	c.notifier.NotifySettled(ctx, order, account.Balance)
	return SettlementSettled, nil
}

// currentResult maps the stored status of an order that another caller moved.
func (c *SettlementCoordinator) currentResult(ctx context.Context, orderID uuid.UUID) (SettlementResult, error) {
	current, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to reload order %s: %w", orderID, err)
	}
	switch current.Status {
	case entities.OrderStatusPaid:
		return SettlementAlreadySettled, nil
	case entities.OrderStatusExpired:
		return SettlementExpired, nil
	case entities.OrderStatusCanceled:
		return SettlementCanceled, nil
	default:
		return SettlementNoMatch, nil
	}
}

// VerifyOrder is the user's "check my payment" action for one order.
func (c *SettlementCoordinator) VerifyOrder(
	ctx context.Context,
	userID int64,
	orderID uuid.UUID,
) (SettlementResult, *entities.RechargeOrder, error) {
	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", nil, err
	}
	if order.UserID != userID {
		return "", nil, ports.ErrNotFound
	}

	var transfers []entities.LedgerTransfer
	if order.Status == entities.OrderStatusPending && !order.IsExpired(c.clock()) {
		transfers, err = c.ledger.Fetch(ctx, order.Address, c.opts.FetchLimit)
		if err != nil {
			c.logger.WarnContext(ctx, "Ledger unavailable during manual verification",
				"order_id", orderID, "error", err)
			return SettlementNoMatch, order, nil
		}
	}

	result, err := c.Reconcile(ctx, order, transfers, c.clock())
	if err != nil {
		return "", nil, err
	}
	return result, order, nil
}

// Sweep runs one reconciliation pass over the configured address with a single ledger fetch.
func (c *SettlementCoordinator) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := c.clock()

	pending, err := c.orders.FindPendingByAddress(ctx, c.opts.Address, now, c.opts.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to load pending orders: %w", err)
	}
	closed, err := c.orders.FindRecentlyClosed(ctx, c.opts.Address, now.Add(-c.opts.LateLookback), c.opts.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to load recently closed orders: %w", err)
	}
	stats.Pending = len(pending)
	if len(pending) == 0 && len(closed) == 0 {
		return stats, nil
	}

	transfers, err := c.ledger.Fetch(ctx, c.opts.Address, c.opts.FetchLimit)
	if err != nil {
		return stats, err
	}
	stats.Transfers = len(transfers)
	if len(transfers) == 0 {
		return stats, nil
	}

	for i := range pending {
		result, err := c.Reconcile(ctx, &pending[i], transfers, now)
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to reconcile order", "order_id", pending[i].ID, "error", err)
			continue
		}
		switch result {
		case SettlementSettled:
			stats.Settled++
		case SettlementExpired:
			stats.Expired++
		}
	}

	flagged, err := c.FlagLateMatches(ctx, closed, transfers)
	if err != nil {
		return stats, err
	}
	stats.Flagged = flagged
	return stats, nil
}

// FlagLateMatches queues transfers that match an expired or canceled order and settled nothing.
// They are never credited automatically.
func (c *SettlementCoordinator) FlagLateMatches(
	ctx context.Context,
	closed []entities.RechargeOrder,
	transfers []entities.LedgerTransfer,
) (int, error) {
	flagged := 0
	for i := range closed {
		order := &closed[i]
		for _, t := range transfers {
			if !c.matches(order, t) {
				continue
			}

			claimed, err := c.orders.IsTransferClaimed(ctx, t.TxID)
			if err != nil {
				return flagged, err
			}
			if claimed {
				continue
			}

			reason := entities.FlagReasonPaidAfterExpiry
			if order.Status == entities.OrderStatusCanceled {
				reason = entities.FlagReasonPaidAfterCancel
			}
			flag := &entities.ReconciliationFlag{
				TxID:        t.TxID,
				OrderID:     order.ID,
				UserID:      order.UserID,
				Address:     order.Address,
				FromAddress: t.FromAddress,
				Amount:      t.Amount,
				TransferAt:  t.Timestamp,
				Reason:      reason,
			}
			created, err := c.review.Flag(ctx, flag)
			if err != nil {
				return flagged, fmt.Errorf("failed to flag transfer %s: %w", t.TxID, err)
			}
			if !created {
				continue
			}

			flagged++
			c.logger.WarnContext(ctx, "Transfer needs manual reconciliation",
				"order_id", order.ID, "user_id", order.UserID, "tx_id", t.TxID, "reason", reason,
				"amount", t.Amount.StringFixed(4))
			c.notifier.NotifyFlagged(ctx, flag)
		}
	}
	return flagged, nil
}

// OpenFlags lists unresolved review entries.
func (c *SettlementCoordinator) OpenFlags(ctx context.Context, limit int) ([]entities.ReconciliationFlag, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return c.review.ListOpen(ctx, limit)
}
