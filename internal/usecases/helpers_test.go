package usecases

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/internal/usecases/mocked"
)

const testAddress = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedCodes returns the given codes in order, repeating the last one.
func fixedCodes(codes ...int) CodeSource {
	var mu sync.Mutex
	i := 0
	return func(int) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

func newID() uuid.UUID {
	return uuid.New()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type rechargeFixture struct {
	clock     *fakeClock
	store     *mocked.Memory
	ledger    *mocked.Ledger
	notifier  *mocked.Notifier
	recharges *RechargeService
	settler   *SettlementCoordinator
}

func newRechargeFixture(codes CodeSource) *rechargeFixture {
	logger := testLogger()
	clock := newFakeClock()
	store := mocked.NewMemory(logger)
	ledger := mocked.NewLedger()
	notifier := &mocked.Notifier{}

	fingerprint := NewFingerprintAllocator(logger, store, codes, clock.Now, 4, 5, 5*time.Minute)
	recharges := NewRechargeService(logger, store, fingerprint, clock.Now, RechargeSettings{
		Network:   "tron",
		Token:     "USDT",
		Address:   testAddress,
		MinAmount: dec("10"),
		TTL:       10 * time.Minute,
	})
	settler := NewSettlementCoordinator(logger, store, store, store, ledger, mocked.NewTransactor(store), notifier,
		clock.Now, SettlementOptions{Address: testAddress, Grace: 5 * time.Minute})

	return &rechargeFixture{
		clock:     clock,
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		recharges: recharges,
		settler:   settler,
	}
}

func transferFor(amount string, at time.Time, txID string) entities.LedgerTransfer {
	return entities.LedgerTransfer{
		ToAddress:   testAddress,
		FromAddress: "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8",
		Amount:      dec(amount),
		Timestamp:   at,
		TxID:        txID,
		Provider:    "test",
	}
}
