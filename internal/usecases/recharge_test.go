package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	_, err := f.recharges.CreateOrder(ctx, 1, dec("9.99"))
	require.ErrorIs(t, err, ports.ErrValidation)

	_, err = f.recharges.CreateOrder(ctx, 1, dec("10.001"))
	require.ErrorIs(t, err, ports.ErrValidation)

	_, err = f.recharges.CreateOrder(ctx, 0, dec("10"))
	require.ErrorIs(t, err, ports.ErrValidation)

	orders, err := f.recharges.ListOrders(ctx, 1, true, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderFields(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 5, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, order.Status)
	assert.Equal(t, testAddress, order.Address)
	assert.Equal(t, 1234, order.UniqueCode)
	assert.Equal(t, 10*time.Minute, order.ExpireAt.Sub(order.CreatedAt))
	assert.True(t, order.BaseAmount.Equal(dec("10")))
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234, 2222))

	order, err := f.recharges.CreateOrder(ctx, 5, dec("10"))
	require.NoError(t, err)

	_, err = f.recharges.CancelOrder(ctx, 6, order.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)

	canceled, err := f.recharges.CancelOrder(ctx, 5, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	_, err = f.recharges.CancelOrder(ctx, 5, order.ID)
	require.ErrorIs(t, err, ports.ErrConflict)

	visible, err := f.recharges.ListOrders(ctx, 5, false, 10)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := f.recharges.ListOrders(ctx, 5, true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCancelLosesToSettlement(t *testing.T) {
	ctx := context.Background()
	f := newRechargeFixture(fixedCodes(1234))

	order, err := f.recharges.CreateOrder(ctx, 5, dec("10"))
	require.NoError(t, err)
	_, err = f.settler.Reconcile(ctx, order, []entities.LedgerTransfer{transferFor("10.1234", f.clock.Now(), "tx")}, f.clock.Now())
	require.NoError(t, err)

	_, err = f.recharges.CancelOrder(ctx, 5, order.ID)
	require.ErrorIs(t, err, ports.ErrConflict)

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPaid, stored.Status)
}
