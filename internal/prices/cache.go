package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
)

const missMarker = "-"

// Cache is a read-through Redis cache in front of another Source. Single-day
// lookups are cached, including misses for a shorter TTL. Range and Trailing
// queries pass through since new bars keep arriving at the tail.
type Cache struct {
	next    Source
	rdb     redis.Cmdable
	ttl     time.Duration
	missTTL time.Duration
}

// NewCache wraps next with a Redis cache.
func NewCache(next Source, rdb redis.Cmdable, ttl, missTTL time.Duration) *Cache {
	return &Cache{next: next, rdb: rdb, ttl: ttl, missTTL: missTTL}
}

func cacheKey(ticker string, date time.Time) string {
	return "price:" + ticker + ":" + dates.Format(date)
}

func (c *Cache) Bar(ctx context.Context, ticker string, date time.Time) (Bar, error) {
	ticker = NormalizeTicker(ticker)
	date = dates.Normalize(date)
	key := cacheKey(ticker, date)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil && raw == missMarker:
		return Bar{}, fmt.Errorf("%s on %s: %w", ticker, dates.Format(date), ErrNoData)
	case err == nil:
		var b Bar
		if jerr := json.Unmarshal([]byte(raw), &b); jerr == nil {
			return b, nil
		}
		log.Warn("discarding corrupt price cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		log.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
	}

	b, err := c.next.Bar(ctx, ticker, date)
	if errors.Is(err, ErrNoData) {
		c.store(ctx, key, missMarker, c.missTTL)
		return Bar{}, err
	}
	if err != nil {
		return Bar{}, err
	}

	data, err := json.Marshal(b)
	if err == nil {
		c.store(ctx, key, string(data), c.ttl)
	}
	return b, nil
}

func (c *Cache) store(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the cached entry of ticker at date, e.g. after an import.
func (c *Cache) Invalidate(ctx context.Context, ticker string, date time.Time) error {
	key := cacheKey(NormalizeTicker(ticker), dates.Normalize(date))
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Range(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	return c.next.Range(ctx, ticker, start, end)
}

func (c *Cache) Trailing(ctx context.Context, ticker string, before time.Time, n int) ([]Bar, error) {
	return c.next.Trailing(ctx, ticker, before, n)
}
