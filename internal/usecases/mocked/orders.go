package mocked

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

func (m *Memory) CreateOrder(ctx context.Context, order *entities.RechargeOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.Status == entities.OrderStatusPending &&
			strings.EqualFold(o.Address, order.Address) &&
			o.ExpectedAmount.Equal(order.ExpectedAmount) {
			return ports.ErrAmountInUse
		}
	}
	stored := *order
	m.orders[order.ID] = &stored
	remember(ctx, func() { delete(m.orders, order.ID) })
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id uuid.UUID) (*entities.RechargeOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := *order
	return &out, nil
}

func (m *Memory) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to entities.OrderStatus,
	fields entities.TransitionFields,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok || order.Status != from {
		return ports.ErrConflict
	}
	if fields.TxID != nil {
		for _, other := range m.orders {
			if other.ID != id && other.TxID != nil && *other.TxID == *fields.TxID {
				return ports.ErrTransferAlreadyClaimed
			}
		}
	}

	before := *order
	order.Status = to
	if fields.PaidAt != nil {
		order.PaidAt = fields.PaidAt
	}
	if fields.CanceledAt != nil {
		order.CanceledAt = fields.CanceledAt
	}
	if fields.TxID != nil {
		order.TxID = fields.TxID
	}
	if fields.FromAddress != nil {
		order.FromAddress = fields.FromAddress
	}
	remember(ctx, func() {
		if order.Status == to {
			*order = before
		}
	})
	return nil
}

func (m *Memory) FindPendingByAddress(
	_ context.Context,
	address string,
	now time.Time,
	limit int,
) ([]entities.RechargeOrder, error) {
	return m.selectOrders(func(o *entities.RechargeOrder) bool {
		return o.Status == entities.OrderStatusPending &&
			strings.EqualFold(o.Address, address) &&
			!o.ExpireAt.Before(now)
	}, newestFirst, limit), nil
}

func (m *Memory) FindExpiredCandidates(_ context.Context, now time.Time, limit int) ([]entities.RechargeOrder, error) {
	return m.selectOrders(func(o *entities.RechargeOrder) bool {
		return o.Status == entities.OrderStatusPending && o.ExpireAt.Before(now)
	}, func(a, b *entities.RechargeOrder) bool { return a.ExpireAt.Before(b.ExpireAt) }, limit), nil
}

func (m *Memory) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for id, order := range m.orders {
		if order.Status == entities.OrderStatusPending && order.ExpireAt.Before(now) {
			order.Status = entities.OrderStatusExpired
			remember(ctx, func() {
				if o := m.orders[id]; o.Status == entities.OrderStatusExpired {
					o.Status = entities.OrderStatusPending
				}
			})
			count++
		}
	}
	return count, nil
}

func (m *Memory) ExpectedAmountInUse(
	_ context.Context,
	address string,
	expected decimal.Decimal,
	paidSince time.Time,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if !strings.EqualFold(o.Address, address) || !o.ExpectedAmount.Equal(expected) {
			continue
		}
		if o.Status == entities.OrderStatusPending {
			return true, nil
		}
		if o.Status == entities.OrderStatusPaid && o.PaidAt != nil && !o.PaidAt.Before(paidSince) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FindUserOrders(
	_ context.Context,
	userID int64,
	includeCanceled bool,
	limit int,
) ([]entities.RechargeOrder, error) {
	return m.selectOrders(func(o *entities.RechargeOrder) bool {
		return o.UserID == userID && (includeCanceled || o.Status != entities.OrderStatusCanceled)
	}, newestFirst, limit), nil
}

func (m *Memory) FindRecentlyClosed(
	_ context.Context,
	address string,
	since time.Time,
	limit int,
) ([]entities.RechargeOrder, error) {
	return m.selectOrders(func(o *entities.RechargeOrder) bool {
		closed := o.Status == entities.OrderStatusExpired || o.Status == entities.OrderStatusCanceled
		return closed && strings.EqualFold(o.Address, address) && !o.CreatedAt.Before(since)
	}, newestFirst, limit), nil
}

func (m *Memory) IsTransferClaimed(_ context.Context, txID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.TxID != nil && *o.TxID == txID {
			return true, nil
		}
	}
	return false, nil
}

func newestFirst(a, b *entities.RechargeOrder) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func (m *Memory) selectOrders(
	match func(*entities.RechargeOrder) bool,
	less func(a, b *entities.RechargeOrder) bool,
	limit int,
) []entities.RechargeOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	picked := make([]*entities.RechargeOrder, 0)
	for _, o := range m.orders {
		if match(o) {
			picked = append(picked, o)
		}
	}
	sort.Slice(picked, func(i, j int) bool { return less(picked[i], picked[j]) })
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}

	out := make([]entities.RechargeOrder, 0, len(picked))
	for _, o := range picked {
		out = append(out, *o)
	}
	return out
}
