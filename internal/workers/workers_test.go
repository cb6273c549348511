package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/internal/usecases"
	"github.com/sand/storefront/backend/internal/usecases/mocked"
)

const address = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) Sweep(context.Context) (usecases.SweepStats, error) {
	s.calls.Add(1)
	return usecases.SweepStats{Pending: 1}, s.err
}

func runUntilStopped(t *testing.T, start func(ctx context.Context)) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		start(ctx)
	}()

	return func() {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop after cancellation")
		}
	}
}

func TestSchedulerSweepsImmediatelyAndStops(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler := NewReconciliationScheduler(testLogger(), sweeper, time.Second)
	assert.Equal(t, ports.MinPollInterval, scheduler.interval)

	stop := runUntilStopped(t, scheduler.Start)
	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestSchedulerSurvivesLedgerOutage(t *testing.T) {
	sweeper := &countingSweeper{err: errors.Join(ports.ErrLedgerUnavailable, errors.New("timeout"))}
	scheduler := NewReconciliationScheduler(testLogger(), sweeper, ports.MinPollInterval)

	stop := runUntilStopped(t, scheduler.Start)
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestSchedulerSettlesPendingOrder(t *testing.T) {
	logger := testLogger()
	now := time.Now().UTC()
	store := mocked.NewMemory(logger)

	order := &entities.RechargeOrder{
		ID:             uuid.New(),
		UserID:         3,
		Network:        "tron",
		Token:          "USDT",
		Address:        address,
		BaseAmount:     decimal.RequireFromString("20"),
		ExpectedAmount: decimal.RequireFromString("20.0042"),
		UniqueCode:     42,
		Status:         entities.OrderStatusPending,
		CreatedAt:      now,
		ExpireAt:       now.Add(10 * time.Minute),
	}
	require.NoError(t, store.CreateOrder(context.Background(), order))

	ledger := mocked.NewLedger(entities.LedgerTransfer{
		ToAddress: address,
		Amount:    decimal.RequireFromString("20.0042"),
		Timestamp: now,
		TxID:      "tx-auto",
	})
	notifier := &mocked.Notifier{}
	settlement := usecases.NewSettlementCoordinator(logger, store, store, store, ledger, mocked.NewTransactor(store),
		notifier, nil, usecases.SettlementOptions{Address: address, Grace: 5 * time.Minute})

	stop := runUntilStopped(t, NewReconciliationScheduler(logger, settlement, ports.MinPollInterval).Start)
	require.Eventually(t, func() bool { return notifier.SettledCount() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	stored, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPaid, stored.Status)

	account, err := store.GetAccount(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("20")))
}

func TestOrderCleanerExpiresOverdue(t *testing.T) {
	logger := testLogger()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := mocked.NewMemory(logger)

	overdue := &entities.RechargeOrder{
		ID: uuid.New(), UserID: 1, Address: address, Status: entities.OrderStatusPending,
		BaseAmount: decimal.RequireFromString("10"), ExpectedAmount: decimal.RequireFromString("10.0001"),
		CreatedAt: now.Add(-20 * time.Minute), ExpireAt: now.Add(-10 * time.Minute),
	}
	fresh := &entities.RechargeOrder{
		ID: uuid.New(), UserID: 1, Address: address, Status: entities.OrderStatusPending,
		BaseAmount: decimal.RequireFromString("10"), ExpectedAmount: decimal.RequireFromString("10.0002"),
		CreatedAt: now, ExpireAt: now.Add(10 * time.Minute),
	}
	require.NoError(t, store.CreateOrder(context.Background(), overdue))
	require.NoError(t, store.CreateOrder(context.Background(), fresh))

	cleaner := NewOrderCleaner(logger, store, func() time.Time { return now }, time.Minute)
	require.NoError(t, cleaner.expireOverdueOrders(context.Background()))
	// повторный запуск ничего не меняет
	require.NoError(t, cleaner.expireOverdueOrders(context.Background()))

	got, err := store.GetOrder(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusExpired, got.Status)

	got, err = store.GetOrder(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, got.Status)
}
