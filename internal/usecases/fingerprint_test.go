package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/internal/usecases/mocked"
)

func TestExpectedAmount(t *testing.T) {
	a := NewFingerprintAllocator(testLogger(), nil, nil, nil, 4, 5, 0)

	cases := []struct {
		base string
		code int
		want string
	}{
		{"10", 1234, "10.1234"},
		{"10.00", 1, "10.0001"},
		{"25.5", 9999, "26.4999"},
		{"10.12", 34, "10.1234"},
	}
	for _, tc := range cases {
		got := a.ExpectedAmount(dec(tc.base), tc.code)
		assert.True(t, got.Equal(dec(tc.want)), "base %s code %d: got %s", tc.base, tc.code, got)
	}
}

func TestAllocateKeepsBasePrefix(t *testing.T) {
	store := mocked.NewMemory(testLogger())
	a := NewFingerprintAllocator(testLogger(), store, nil, nil, 4, 5, 5*time.Minute)
	base := dec("10.50")

	for range 200 {
		fp, err := a.Allocate(context.Background(), testAddress, base, nil)
		require.NoError(t, err)
		require.GreaterOrEqual(t, fp.Code, 1)
		require.LessOrEqual(t, fp.Code, 9999)
		assert.True(t, fp.Expected.GreaterThan(base))
		assert.True(t, fp.Expected.LessThan(base.Add(dec("1"))))
		assert.LessOrEqual(t, -fp.Expected.Exponent(), int32(4))
	}
}

func TestAllocateSkipsAmountsInUse(t *testing.T) {
	ctx := context.Background()
	store := mocked.NewMemory(testLogger())
	now := time.Now()
	require.NoError(t, store.CreateOrder(ctx, &entities.RechargeOrder{
		ID:             newID(),
		UserID:         1,
		Address:        testAddress,
		BaseAmount:     dec("10"),
		ExpectedAmount: dec("10.1234"),
		Status:         entities.OrderStatusPending,
		CreatedAt:      now,
		ExpireAt:       now.Add(10 * time.Minute),
	}))

	a := NewFingerprintAllocator(testLogger(), store, fixedCodes(1234, 4321), nil, 4, 5, 5*time.Minute)
	fp, err := a.Allocate(ctx, testAddress, dec("10"), nil)
	require.NoError(t, err)
	assert.Equal(t, 4321, fp.Code)
	assert.True(t, fp.Expected.Equal(dec("10.4321")))
}

func TestAllocateIgnoresOtherAddress(t *testing.T) {
	ctx := context.Background()
	store := mocked.NewMemory(testLogger())
	now := time.Now()
	require.NoError(t, store.CreateOrder(ctx, &entities.RechargeOrder{
		ID:             newID(),
		Address:        "TOtherAddressxxxxxxxxxxxxxxxxxxxxx",
		ExpectedAmount: dec("10.1234"),
		Status:         entities.OrderStatusPending,
		CreatedAt:      now,
		ExpireAt:       now.Add(10 * time.Minute),
	}))

	a := NewFingerprintAllocator(testLogger(), store, fixedCodes(1234), nil, 4, 5, 5*time.Minute)
	fp, err := a.Allocate(ctx, testAddress, dec("10"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1234, fp.Code)
}

func TestAllocateRecentlyPaidCollides(t *testing.T) {
	ctx := context.Background()
	store := mocked.NewMemory(testLogger())
	now := time.Now()
	paidAt := now.Add(-time.Minute)
	require.NoError(t, store.CreateOrder(ctx, &entities.RechargeOrder{
		ID:             newID(),
		Address:        testAddress,
		ExpectedAmount: dec("10.1234"),
		Status:         entities.OrderStatusPaid,
		PaidAt:         &paidAt,
		CreatedAt:      now.Add(-3 * time.Minute),
		ExpireAt:       now.Add(7 * time.Minute),
	}))

	a := NewFingerprintAllocator(testLogger(), store, fixedCodes(1234, 2), func() time.Time { return now }, 4, 5, 5*time.Minute)
	fp, err := a.Allocate(ctx, testAddress, dec("10"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fp.Code)
}

func TestAllocateExhaustion(t *testing.T) {
	ctx := context.Background()
	store := mocked.NewMemory(testLogger())
	now := time.Now()
	require.NoError(t, store.CreateOrder(ctx, &entities.RechargeOrder{
		ID:             newID(),
		Address:        testAddress,
		ExpectedAmount: dec("10.0007"),
		Status:         entities.OrderStatusPending,
		CreatedAt:      now,
		ExpireAt:       now.Add(10 * time.Minute),
	}))

	draws := 0
	codes := func(int) (int, error) {
		draws++
		return 7, nil
	}
	a := NewFingerprintAllocator(testLogger(), store, codes, nil, 4, 5, 5*time.Minute)
	_, err := a.Allocate(ctx, testAddress, dec("10"), nil)
	require.ErrorIs(t, err, ports.ErrCollisionExhaustion)
	assert.Equal(t, 5, draws)
}

// staleCheck answers every collision check with "free", like a read that raced a concurrent insert.
type staleCheck struct {
	ports.OrderStore
}

func (staleCheck) ExpectedAmountInUse(context.Context, string, decimal.Decimal, time.Time) (bool, error) {
	return false, nil
}

func TestAllocateRedrawsWhenReserveLoses(t *testing.T) {
	ctx := context.Background()
	a := NewFingerprintAllocator(testLogger(), staleCheck{}, fixedCodes(1234, 4321), nil, 4, 5, 5*time.Minute)

	var reserved []string
	fp, err := a.Allocate(ctx, testAddress, dec("10"), func(_ context.Context, fp Fingerprint) error {
		reserved = append(reserved, fp.Expected.String())
		if fp.Code == 1234 {
			return fmt.Errorf("failed to create recharge order: %w", ports.ErrAmountInUse)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4321, fp.Code)
	assert.Equal(t, []string{"10.1234", "10.4321"}, reserved)
}

func TestAllocateReserveErrorStops(t *testing.T) {
	boom := errors.New("boom")
	draws := 0
	codes := func(int) (int, error) {
		draws++
		return 5, nil
	}
	a := NewFingerprintAllocator(testLogger(), staleCheck{}, codes, nil, 4, 5, 5*time.Minute)

	_, err := a.Allocate(context.Background(), testAddress, dec("10"), func(context.Context, Fingerprint) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, draws)
}

func TestCreateOrderRacingCheckGetsDistinctAmounts(t *testing.T) {
	ctx := context.Background()
	store := mocked.NewMemory(testLogger())
	a := NewFingerprintAllocator(testLogger(), staleCheck{store}, fixedCodes(1234, 1234, 4321), nil, 4, 5, 5*time.Minute)
	recharges := NewRechargeService(testLogger(), store, a, nil, RechargeSettings{
		Address:   testAddress,
		MinAmount: dec("10"),
	})

	first, err := recharges.CreateOrder(ctx, 1, dec("10"))
	require.NoError(t, err)
	second, err := recharges.CreateOrder(ctx, 2, dec("10"))
	require.NoError(t, err)

	assert.True(t, first.ExpectedAmount.Equal(dec("10.1234")))
	assert.True(t, second.ExpectedAmount.Equal(dec("10.4321")))
}

func TestConcurrentCreateOrderNeverSharesAmount(t *testing.T) {
	ctx := context.Background()
	store := mocked.NewMemory(testLogger())
	a := NewFingerprintAllocator(testLogger(), staleCheck{store}, fixedCodes(1234), nil, 4, 5, 5*time.Minute)
	recharges := NewRechargeService(testLogger(), store, a, nil, RechargeSettings{
		Address:   testAddress,
		MinAmount: dec("10"),
	})

	const workers = 16
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = recharges.CreateOrder(ctx, int64(i+1), dec("10"))
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, ports.ErrCollisionExhaustion)
	}
	assert.Equal(t, 1, created)

	pending, err := store.FindPendingByAddress(ctx, testAddress, time.Now(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCryptoCodesRange(t *testing.T) {
	for range 1000 {
		code, err := CryptoCodes(9999)
		require.NoError(t, err)
		require.GreaterOrEqual(t, code, 1)
		require.LessOrEqual(t, code, 9999)
	}
}
