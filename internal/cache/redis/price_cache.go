package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opine-markets/opined/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// latest price vector is stored at key "prices:{marketID}" with fields
// "bps" (comma-joined basis points, one entry per outcome) and "ts" (Unix
// nanosecond timestamp), expiring after the configured TTL.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(marketID string) string {
	return "prices:" + marketID
}

// SetPrices stores the latest price vector and timestamp for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID string, pricesBps []int64, ts time.Time) error {
	parts := make([]string, len(pricesBps))
	for i, p := range pricesBps {
		parts[i] = strconv.FormatInt(p, 10)
	}

	key := priceKey(marketID)
	fields := map[string]interface{}{
		"bps": strings.Join(parts, ","),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the latest price vector and timestamp for a market.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) ([]int64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	bpsStr, ok := vals["bps"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	parts := strings.Split(bpsStr, ",")
	bps := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("redis: parse prices %s: %w", marketID, err)
		}
		bps[i] = v
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}

	return bps, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached vector for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
