package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// buyCounterTTL keeps daily counters around for two days so a cycle spanning
// midnight still reads yesterday's key, then lets Redis reap them.
const buyCounterTTL = 48 * time.Hour

// BuyCounter implements domain.BuyCounter using per-day Redis counters at
// key "buys:{day}" where day is "2006-01-02".
type BuyCounter struct {
	rdb *redis.Client
}

// NewBuyCounter creates a BuyCounter backed by the given Client.
func NewBuyCounter(c *Client) *BuyCounter {
	return &BuyCounter{rdb: c.Underlying()}
}

func buyKey(day string) string {
	return "buys:" + day
}

// IncrBuys increments the executed-buy counter for the trading day and
// returns the new count.
func (bc *BuyCounter) IncrBuys(ctx context.Context, day string) (int64, error) {
	key := buyKey(day)
	pipe := bc.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, buyCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: incr buys %s: %w", day, err)
	}
	return incr.Val(), nil
}

// Buys returns the executed-buy count for the trading day. A missing key
// counts as zero.
func (bc *BuyCounter) Buys(ctx context.Context, day string) (int64, error) {
	n, err := bc.rdb.Get(ctx, buyKey(day)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: get buys %s: %w", day, err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.BuyCounter = (*BuyCounter)(nil)
