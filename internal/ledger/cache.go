package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

const cacheKeyPrefix = "ledger:transfers:"

// CachedClient keeps successful answers in Redis for a short TTL so that overlapping sweeps and
// manual verifications share one provider call.
type CachedClient struct {
	logger *slog.Logger
	next   ports.LedgerClient
	redis  redis.UniversalClient
	ttl    time.Duration
}

// NewCachedClient falls back to ports.DefaultLedgerCacheTTL for a non-positive ttl: Redis stores
// zero-TTL keys forever.
func NewCachedClient(logger *slog.Logger, next ports.LedgerClient, rdb redis.UniversalClient, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = ports.DefaultLedgerCacheTTL
	}
	return &CachedClient{logger: logger, next: next, redis: rdb, ttl: ttl}
}

func cacheKey(address string, limit int) string {
	return fmt.Sprintf("%s%s:%d", cacheKeyPrefix, strings.ToLower(address), limit)
}

func (c *CachedClient) Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	key := cacheKey(address, limit)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var transfers []entities.LedgerTransfer
		if err = json.Unmarshal(cached, &transfers); err == nil {
			return transfers, nil
		}
		c.logger.WarnContext(ctx, "Dropping unreadable cached transfers", "key", key, "error", err)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "Ledger cache read failed", "key", key, "error", err)
	}

	transfers, err := c.next.Fetch(ctx, address, limit)
	if err != nil {
		return transfers, err
	}

	payload, err := json.Marshal(transfers)
	if err != nil {
		return transfers, nil
	}
	if err = c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Ledger cache write failed", "key", key, "error", err)
	}
	return transfers, nil
}
