package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

// Provider is one source of transfer history normalized to entities.LedgerTransfer.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error)
}

// KeyedProvider needs an API credential per request.
type KeyedProvider interface {
	Name() string
	FetchWithKey(ctx context.Context, key, address string, limit int) ([]entities.LedgerTransfer, error)
}

// StatusError is a non-200 provider answer.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
}

// Transient reports whether another credential or attempt may succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	// transport errors and timeouts
	return true
}

// Client queries the keyed provider first, rotating credentials, then falls back to public providers.
type Client struct {
	logger *slog.Logger

	keyed  KeyedProvider
	keys   []string
	next   atomic.Uint64
	public []Provider
}

func NewClient(logger *slog.Logger, keyed KeyedProvider, keys []string, public ...Provider) *Client {
	return &Client{
		logger: logger,
		keyed:  keyed,
		keys:   keys,
		public: public,
	}
}

func (c *Client) nextKey() string {
	if len(c.keys) == 0 {
		return ""
	}
	n := c.next.Add(1) - 1
	return c.keys[n%uint64(len(c.keys))]
}

// Fetch returns the newest transfers to address. When every provider fails it returns an empty
// slice and ports.ErrLedgerUnavailable; an empty answer from a healthy provider is not an error.
func (c *Client) Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	if limit <= 0 || limit > ports.MaxLedgerPageSize {
		limit = ports.DefaultLedgerFetchLimit
	}

	var errs []error
	if c.keyed != nil && len(c.keys) > 0 {
		transfers, err := c.fetchKeyed(ctx, address, limit)
		if err == nil {
			return transfers, nil
		}
		errs = append(errs, err)
	}

	for _, p := range c.public {
		transfers, err := p.Fetch(ctx, address, limit)
		if err == nil {
			return transfers, nil
		}
		c.logger.WarnContext(ctx, "Ledger provider failed", "provider", p.Name(), "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	c.logger.ErrorContext(ctx, "All ledger providers failed", "address", address, "error", errors.Join(errs...))
	return []entities.LedgerTransfer{}, ports.ErrLedgerUnavailable
}

func (c *Client) fetchKeyed(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	attempts := max(len(c.keys), 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		transfers, err := c.keyed.FetchWithKey(ctx, c.nextKey(), address, limit)
		if err == nil {
			return transfers, nil
		}
		lastErr = err
		c.logger.WarnContext(ctx, "Keyed ledger request failed",
			"provider", c.keyed.Name(), "attempt", attempt, "error", err)
		if !isTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%s exhausted after rotating keys: %w", c.keyed.Name(), lastErr)
}
