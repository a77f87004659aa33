package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	commandList   = "user_input"
	eventChPrefix = "backend_com_"

	retryAttempts = 3
	retryInterval = time.Second
)

// RedisBus polls a command list and publishes events on a per-engine channel.
// Transient redis failures are retried a bounded number of times before they
// surface.
type RedisBus struct {
	client   *redis.Client
	engineID string
}

func NewRedisBus(client *redis.Client, engineID string) *RedisBus {
	return &RedisBus{client: client, engineID: engineID}
}

// Poll pops the next pending command. A drained list returns (nil, nil).
func (b *RedisBus) Poll(ctx context.Context) (*Command, error) {
	var raw string
	err := b.retry(ctx, func() error {
		var rerr error
		raw, rerr = b.client.LPop(ctx, commandList).Result()
		return rerr
	})
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cmd Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		zap.S().Errorw("discarding malformed command", "raw", raw, "err", err)
		return nil, nil
	}
	return &cmd, nil
}

// Publish sends an event to the frontend channel. Failure to notify must not
// stall trading, so errors are logged and swallowed after the retries.
func (b *RedisBus) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.S().Errorw("marshal event", "type", ev.Type, "err", err)
		return
	}
	err = b.retry(ctx, func() error {
		return b.client.Publish(ctx, eventChPrefix+b.engineID, payload).Err()
	})
	if err != nil {
		zap.S().Errorw("publish event failed", "type", ev.Type, "err", err)
	}
}

func (b *RedisBus) retry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), retryAttempts-1),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if err == redis.Nil {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
