package usecases

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
)

// Fingerprint is a candidate expected amount and the code embedded in it.
type Fingerprint struct {
	Code     int
	Expected decimal.Decimal
}

// CodeSource draws a code in [1, max].
type CodeSource func(max int) (int, error)

// CryptoCodes draws codes from crypto/rand.
func CryptoCodes(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("failed to draw fingerprint code: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

// FingerprintAllocator embeds a random code into the fractional digits of a base amount so that
// pending orders on one shared address never expect the same payment.
type FingerprintAllocator struct {
	logger *slog.Logger
	orders ports.OrderStore
	codes  CodeSource
	clock  ports.Clock

	width       int32
	maxAttempts int
	grace       time.Duration
}

func NewFingerprintAllocator(
	logger *slog.Logger,
	orders ports.OrderStore,
	codes CodeSource,
	clock ports.Clock,
	width, maxAttempts int,
	grace time.Duration,
) *FingerprintAllocator {
	if codes == nil {
		codes = CryptoCodes
	}
	if clock == nil {
		clock = time.Now
	}
	if width <= 0 {
		width = ports.DefaultCodeWidth
	}
	if maxAttempts <= 0 {
		maxAttempts = ports.DefaultFingerprintRetries
	}
	return &FingerprintAllocator{
		logger:      logger,
		orders:      orders,
		codes:       codes,
		clock:       clock,
		width:       int32(width),
		maxAttempts: maxAttempts,
		grace:       grace,
	}
}

// ExpectedAmount returns floor(base + code/10^width) at width decimals.
func (a *FingerprintAllocator) ExpectedAmount(base decimal.Decimal, code int) decimal.Decimal {
	return base.Add(decimal.New(int64(code), -a.width)).RoundFloor(a.width)
}

// Reserve persists a candidate fingerprint. It returns ports.ErrAmountInUse when a concurrent order
// took the same expected amount first.
type Reserve func(ctx context.Context, fp Fingerprint) error

// Allocate finds an expected amount not used by another live order on address and hands it to
// reserve. A lost race on reserve counts as a collision and redraws.
func (a *FingerprintAllocator) Allocate(
	ctx context.Context,
	address string,
	base decimal.Decimal,
	reserve Reserve,
) (Fingerprint, error) {
	maxCode := int(decimal.New(1, a.width).IntPart()) - 1
	paidSince := a.clock().Add(-a.grace)

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, err := a.codes(maxCode)
		if err != nil {
			return Fingerprint{}, err
		}

		fp := Fingerprint{Code: code, Expected: a.ExpectedAmount(base, code)}
		inUse, err := a.orders.ExpectedAmountInUse(ctx, address, fp.Expected, paidSince)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("failed to check fingerprint collision: %w", err)
		}
		if !inUse {
			if reserve == nil {
				return fp, nil
			}
			err = reserve(ctx, fp)
			if err == nil {
				return fp, nil
			}
			if !errors.Is(err, ports.ErrAmountInUse) {
				return Fingerprint{}, err
			}
		}

		a.logger.DebugContext(ctx, "Fingerprint collision", "address", address, "expected", fp.Expected.String(),
			"attempt", attempt)
	}

	a.logger.WarnContext(ctx, "Fingerprint space exhausted", "address", address, "base", base.String(),
		"attempts", a.maxAttempts)
	return Fingerprint{}, ports.ErrCollisionExhaustion
}
