package mocked

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

var errRollback = errors.New("rollback")

func newTestMemory() (*Memory, *Transactor) {
	store := NewMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return store, NewTransactor(store)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRollbackKeepsUnitClaimedByAnotherBuyer(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()
	store.PutUnits(entities.InventoryUnit{ID: "u1", ItemID: "item-1"})

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		claimed, err := store.ClaimUnits(ctx, "item-1", 1, 1)
		require.NoError(t, err)
		require.Equal(t, []string{"u1"}, claimed)

		released, err := store.ReleaseUnits(ctx, claimed, 1)
		require.NoError(t, err)
		require.EqualValues(t, 1, released)

		// другой покупатель забирает освободившуюся единицу вне транзакции
		other, err := store.ClaimUnits(context.Background(), "item-1", 1, 2)
		require.NoError(t, err)
		require.Equal(t, []string{"u1"}, other)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	units, err := store.GetUnits(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, entities.UnitStateSold, units[0].State)
	require.NotNil(t, units[0].BuyerID)
	assert.EqualValues(t, 2, *units[0].BuyerID)

	available, err := store.CountAvailable(ctx, "item-1")
	require.NoError(t, err)
	assert.Zero(t, available)
}

func TestRollbackRestoresOwnClaim(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()
	store.PutUnits(entities.InventoryUnit{ID: "u1", ItemID: "item-1"}, entities.InventoryUnit{ID: "u2", ItemID: "item-1"})

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := store.ClaimUnits(ctx, "item-1", 2, 1)
		require.NoError(t, err)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	available, err := store.CountAvailable(ctx, "item-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, available)
}

func TestRollbackOfReleaseGivesUnitBack(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()
	store.PutUnits(entities.InventoryUnit{ID: "u1", ItemID: "item-1"})
	_, err := store.ClaimUnits(ctx, "item-1", 1, 1)
	require.NoError(t, err)

	err = tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := store.ReleaseUnits(ctx, []string{"u1"}, 1)
		require.NoError(t, err)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	units, err := store.GetUnits(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, entities.UnitStateSold, units[0].State)
	require.NotNil(t, units[0].BuyerID)
	assert.EqualValues(t, 1, *units[0].BuyerID)
	assert.NotNil(t, units[0].SoldAt)
}

func TestRollbackKeepsConcurrentDebit(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()
	store.SetBalance(1, dec("100"))

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := store.Debit(ctx, 1, dec("40"), 1)
		require.NoError(t, err)

		balance, err := store.Debit(context.Background(), 1, dec("40"), 1)
		require.NoError(t, err)
		require.True(t, balance.Equal(dec("20")))
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	acc, err := store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("60")), "balance %s", acc.Balance)
	assert.True(t, acc.LifetimeSpend.Equal(dec("40")))
	assert.EqualValues(t, 1, acc.PurchaseCount)
}

func TestRollbackKeepsConcurrentCredit(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := store.Credit(ctx, 1, dec("10.0042"))
		require.NoError(t, err)
		_, err = store.Credit(context.Background(), 1, dec("5"))
		require.NoError(t, err)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	acc, err := store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("5")), "balance %s", acc.Balance)
}

func TestRollbackDropsAccountCreatedByCredit(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := store.Credit(ctx, 7, dec("10"))
		require.NoError(t, err)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	_, err = store.GetAccount(ctx, 7)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func pendingOrder(address, expected string) *entities.RechargeOrder {
	now := time.Now()
	return &entities.RechargeOrder{
		ID:             uuid.New(),
		UserID:         1,
		Address:        address,
		BaseAmount:     dec("10"),
		ExpectedAmount: dec(expected),
		Status:         entities.OrderStatusPending,
		CreatedAt:      now,
		ExpireAt:       now.Add(10 * time.Minute),
	}
}

func TestRollbackRevertsTransition(t *testing.T) {
	ctx := context.Background()
	store, tx := newTestMemory()
	order := pendingOrder("TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE", "10.0042")
	require.NoError(t, store.CreateOrder(ctx, order))

	txID := "tx-1"
	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		paidAt := time.Now()
		require.NoError(t, store.Transition(ctx, order.ID, entities.OrderStatusPending, entities.OrderStatusPaid,
			entities.TransitionFields{PaidAt: &paidAt, TxID: &txID}))
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	stored, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.TxID)

	claimed, err := store.IsTransferClaimed(ctx, txID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestCreateOrderRejectsDuplicatePendingAmount(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemory()
	address := "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"
	first := pendingOrder(address, "10.0042")
	require.NoError(t, store.CreateOrder(ctx, first))

	err := store.CreateOrder(ctx, pendingOrder(strings.ToLower(address), "10.0042"))
	require.ErrorIs(t, err, ports.ErrAmountInUse)
	require.NoError(t, store.CreateOrder(ctx, pendingOrder(address, "10.0043")))

	// закрытый заказ сумму не держит
	now := time.Now()
	require.NoError(t, store.Transition(ctx, first.ID, entities.OrderStatusPending, entities.OrderStatusCanceled,
		entities.TransitionFields{CanceledAt: &now}))
	require.NoError(t, store.CreateOrder(ctx, pendingOrder(address, "10.0042")))
}
