package mocked

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

func (m *Memory) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.accounts[userID]
	acc := m.account(userID)
	acc.Balance = acc.Balance.Add(amount)
	acc.UpdatedAt = time.Now()
	// откат дельтой: чужие коммиты между шагом и откатом остаются
	remember(ctx, func() {
		acc := m.accounts[userID]
		acc.Balance = acc.Balance.Sub(amount)
		if !existed && acc.Balance.IsZero() && acc.LifetimeSpend.IsZero() && acc.PurchaseCount == 0 {
			delete(m.accounts, userID)
		}
	})
	return acc.Balance, nil
}

func (m *Memory) Debit(ctx context.Context, userID int64, amount decimal.Decimal, units int) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[userID]
	if !ok || acc.Balance.LessThan(amount) {
		return decimal.Zero, ports.ErrInsufficientBalance
	}
	acc.Balance = acc.Balance.Sub(amount)
	acc.LifetimeSpend = acc.LifetimeSpend.Add(amount)
	acc.PurchaseCount += int64(units)
	acc.UpdatedAt = time.Now()
	remember(ctx, func() {
		acc := m.accounts[userID]
		acc.Balance = acc.Balance.Add(amount)
		acc.LifetimeSpend = acc.LifetimeSpend.Sub(amount)
		acc.PurchaseCount -= int64(units)
	})
	return acc.Balance, nil
}

func (m *Memory) GetAccount(_ context.Context, userID int64) (*entities.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[userID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := *acc
	return &out, nil
}
