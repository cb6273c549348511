package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

func TestSweepSettlesExactAmount(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)
	require.True(t, order.ExpectedAmount.Equal(dec("10.1234")))

	f.clock.Advance(2 * time.Minute)
	f.ledger.Add(transferFor("10.1234", f.clock.Now(), "tx-a"))

	stats, err := f.settler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Settled)

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.TxID)
	assert.Equal(t, "tx-a", *stored.TxID)
	require.NotNil(t, stored.FromAddress)
	require.NotNil(t, stored.PaidAt)

	account, err := f.store.GetAccount(ctx, 42)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("10")), "credited base, not expected: %s", account.Balance)
	assert.Equal(t, 1, f.notifier.SettledCount())
}

func TestSweepIgnoresNearMisses(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.ledger.Add(
		transferFor("10.1233", f.clock.Now(), "tx-low"),
		transferFor("10.1235", f.clock.Now(), "tx-high"),
	)

	stats, err := f.settler.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Settled)

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, stored.Status)

	_, err = f.store.GetAccount(ctx, 42)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestReconcileGraceWindow(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234, 5678))

	order, err := f.recharges.CreateOrder(ctx, 7, dec("10"))
	require.NoError(t, err)

	tooOld := transferFor("10.1234", order.CreatedAt.Add(-6*time.Minute), "tx-old")
	result, err := f.settler.Reconcile(ctx, order, []entities.LedgerTransfer{tooOld}, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, SettlementNoMatch, result)

	withinGrace := transferFor("10.1234", order.CreatedAt.Add(-4*time.Minute), "tx-grace")
	result, err = f.settler.Reconcile(ctx, order, []entities.LedgerTransfer{withinGrace}, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, SettlementSettled, result)
}

func TestReconcileRecipientIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 7, dec("10"))
	require.NoError(t, err)

	transfer := transferFor("10.1234", f.clock.Now(), "tx-case")
	transfer.ToAddress = " " + testAddress + " "
	result, err := f.settler.Reconcile(ctx, order, []entities.LedgerTransfer{transfer}, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, SettlementSettled, result)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)
	transfers := []entities.LedgerTransfer{transferFor("10.1234", f.clock.Now(), "tx-a")}

	const workers = 16
	results := make([]SettlementResult, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stale := *order
			res, err := f.settler.Reconcile(ctx, &stale, transfers, f.clock.Now())
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	settled := 0
	for _, r := range results {
		if r == SettlementSettled {
			settled++
		} else {
			assert.Equal(t, SettlementAlreadySettled, r)
		}
	}
	assert.Equal(t, 1, settled)

	account, err := f.store.GetAccount(ctx, 42)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("10")))
	assert.Equal(t, 1, f.notifier.SettledCount())
}

func TestReconcileDoesNotReuseTransfer(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	first, err := f.recharges.CreateOrder(ctx, 1, dec("10"))
	require.NoError(t, err)
	transfers := []entities.LedgerTransfer{transferFor("10.1234", f.clock.Now(), "tx-once")}

	result, err := f.settler.Reconcile(ctx, first, transfers, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, SettlementSettled, result)

	// an order that slipped past the collision check with the same expected amount
	second := &entities.RechargeOrder{
		ID:             newID(),
		UserID:         2,
		Address:        testAddress,
		BaseAmount:     dec("10"),
		ExpectedAmount: first.ExpectedAmount,
		Status:         entities.OrderStatusPending,
		CreatedAt:      first.CreatedAt,
		ExpireAt:       first.ExpireAt,
	}
	require.NoError(t, f.store.CreateOrder(ctx, second))

	result, err = f.settler.Reconcile(ctx, second, transfers, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, SettlementNoMatch, result)

	stored, err := f.store.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, stored.Status)
	_, err = f.store.GetAccount(ctx, 2)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestReconcileExpiresLazily(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	transfers := []entities.LedgerTransfer{transferFor("10.1234", f.clock.Now(), "tx-late")}
	result, err := f.settler.Reconcile(ctx, order, transfers, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, SettlementExpired, result)

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusExpired, stored.Status)

	result, err = f.settler.Reconcile(ctx, stored, transfers, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, SettlementExpired, result)
}

func TestLateTransferIsFlagged(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	expired, err := f.store.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	f.clock.Advance(time.Minute)
	f.ledger.Add(transferFor("10.1234", f.clock.Now(), "tx-minute-12"))

	stats, err := f.settler.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Settled)
	assert.Equal(t, 1, stats.Flagged)

	// the same transfer is queued once
	stats, err = f.settler.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Flagged)

	flags, err := f.settler.OpenFlags(ctx, 10)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, order.ID, flags[0].OrderID)
	assert.Equal(t, entities.FlagReasonPaidAfterExpiry, flags[0].Reason)
	assert.Equal(t, 1, f.notifier.FlaggedCount())

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusExpired, stored.Status)
	_, err = f.store.GetAccount(ctx, 42)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestTransferAfterCancelIsFlagged(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)
	_, err = f.recharges.CancelOrder(ctx, 42, order.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.ledger.Add(transferFor("10.1234", f.clock.Now(), "tx-after-cancel"))

	stats, err := f.settler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Flagged)

	flags, err := f.settler.OpenFlags(ctx, 10)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, entities.FlagReasonPaidAfterCancel, flags[0].Reason)
}

func TestSweepLedgerUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)
	f.ledger.Fail(ports.ErrLedgerUnavailable)

	_, err = f.settler.Sweep(ctx)
	require.ErrorIs(t, err, ports.ErrLedgerUnavailable)

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, stored.Status)
}

func TestSweepSkipsFetchWithoutOrders(t *testing.T) {
	f := newRechargeFixture(fixedCodes(1234))

	stats, err := f.settler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, f.ledger.Calls())
}

func TestVerifyOrder(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 42, dec("10"))
	require.NoError(t, err)

	_, _, err = f.settler.VerifyOrder(ctx, 43, order.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)

	result, _, err := f.settler.VerifyOrder(ctx, 42, order.ID)
	require.NoError(t, err)
	assert.Equal(t, SettlementNoMatch, result)

	f.ledger.Add(transferFor("10.1234", f.clock.Now(), "tx-verify"))
	result, verified, err := f.settler.VerifyOrder(ctx, 42, order.ID)
	require.NoError(t, err)
	assert.Equal(t, SettlementSettled, result)
	assert.Equal(t, entities.OrderStatusPaid, verified.Status)

	result, _, err = f.settler.VerifyOrder(ctx, 42, order.ID)
	require.NoError(t, err)
	assert.Equal(t, SettlementAlreadySettled, result)
}
