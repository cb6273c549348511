package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

const maxHistoryLimit = 100

// RechargeSettings are the read-only parameters of the recharge channel.
type RechargeSettings struct {
	Network   string
	Token     string
	Address   string
	MinAmount decimal.Decimal
	TTL       time.Duration
}

type RechargeService struct {
	logger      *slog.Logger
	orders      ports.OrderStore
	fingerprint *FingerprintAllocator
	clock       ports.Clock
	settings    RechargeSettings
}

func NewRechargeService(
	logger *slog.Logger,
	orders ports.OrderStore,
	fingerprint *FingerprintAllocator,
	clock ports.Clock,
	settings RechargeSettings,
) *RechargeService {
	if clock == nil {
		clock = time.Now
	}
	if settings.TTL <= 0 {
		settings.TTL = ports.DefaultOrderTTL
	}
	return &RechargeService{
		logger:      logger,
		orders:      orders,
		fingerprint: fingerprint,
		clock:       clock,
		settings:    settings,
	}
}

// CreateOrder opens a pending recharge order whose expected amount identifies the payer.
func (s *RechargeService) CreateOrder(ctx context.Context, userID int64, base decimal.Decimal) (*entities.RechargeOrder, error) {
	if userID <= 0 {
		return nil, ports.NewValidationError("user_id", "must be positive")
	}
	if !base.Equal(base.Truncate(2)) {
		return nil, ports.NewValidationError("amount", "at most 2 decimal places allowed")
	}
	if base.LessThan(s.settings.MinAmount) {
		return nil, ports.NewValidationError("amount", "minimum recharge is %s", s.settings.MinAmount.StringFixed(2))
	}

	var order *entities.RechargeOrder
	fp, err := s.fingerprint.Allocate(ctx, s.settings.Address, base, func(ctx context.Context, fp Fingerprint) error {
		now := s.clock().UTC()
		candidate := &entities.RechargeOrder{
			ID:             uuid.New(),
			UserID:         userID,
			Network:        s.settings.Network,
			Token:          s.settings.Token,
			Address:        s.settings.Address,
			BaseAmount:     base.Truncate(2),
			ExpectedAmount: fp.Expected,
			UniqueCode:     fp.Code,
			Status:         entities.OrderStatusPending,
			CreatedAt:      now,
			ExpireAt:       now.Add(s.settings.TTL),
		}
		if err := s.orders.CreateOrder(ctx, candidate); err != nil {
			return fmt.Errorf("failed to create recharge order: %w", err)
		}
		order = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Recharge order created",
		"order_id", order.ID, "user_id", userID, "base", base.StringFixed(2), "expected", fp.Expected.StringFixed(4))
	return order, nil
}

// GetOrder returns the order only to its owner.
func (s *RechargeService) GetOrder(ctx context.Context, userID int64, orderID uuid.UUID) (*entities.RechargeOrder, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ports.ErrNotFound
	}
	return order, nil
}

func (s *RechargeService) ListOrders(
	ctx context.Context,
	userID int64,
	includeCanceled bool,
	limit int,
) ([]entities.RechargeOrder, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.orders.FindUserOrders(ctx, userID, includeCanceled, limit)
}

// CancelOrder withdraws a pending order. It returns ErrConflict when settlement or expiry won.
func (s *RechargeService) CancelOrder(ctx context.Context, userID int64, orderID uuid.UUID) (*entities.RechargeOrder, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != entities.OrderStatusPending {
		return order, ports.ErrConflict
	}

	now := s.clock().UTC()
	err = s.orders.Transition(ctx, orderID, entities.OrderStatusPending, entities.OrderStatusCanceled,
		entities.TransitionFields{CanceledAt: &now})
	if errors.Is(err, ports.ErrConflict) {
		s.logger.InfoContext(ctx, "Cancel lost to a concurrent transition", "order_id", orderID)
		return order, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	order.Status = entities.OrderStatusCanceled
	order.CanceledAt = &now
	s.logger.InfoContext(ctx, "Recharge order canceled", "order_id", orderID, "user_id", userID)
	return order, nil
}
