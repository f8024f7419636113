package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// tradeStream is the Redis stream carrying executed trade events.
const tradeStream = "trades"

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus. Trade events go to a capped Redis
// stream for durable ordered delivery and are mirrored on Pub/Sub for live
// listeners.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// PublishTrade appends a trade event to the trade stream and publishes it on
// the "trades" Pub/Sub channel. The stream append is the durable half; a
// Pub/Sub failure is not reported.
func (sb *SignalBus) PublishTrade(ctx context.Context, ev domain.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal trade event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: tradeStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", tradeStream, err)
	}

	_ = sb.rdb.Publish(ctx, tradeStream, payload).Err()
	return nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
