package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisBodyField = "body"
	redisGroup     = "hrm-service"
)

// Redis is a Queue on Redis Streams. Each channel is a stream read through a
// consumer group; unacknowledged entries are reclaimed with XAUTOCLAIM once
// they have been idle for the visibility timeout.
type Redis struct {
	client            redis.Cmdable
	consumer          string
	visibilityTimeout time.Duration
	maxReceiveCount   int
	logger            *slog.Logger

	groups sync.Map
}

// NewRedis creates a Redis Streams queue. The caller owns the client lifecycle.
func NewRedis(client redis.Cmdable, consumer string, visibilityTimeout time.Duration, maxReceiveCount int, logger *slog.Logger) *Redis {
	return &Redis{
		client:            client,
		consumer:          consumer,
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
		logger:            logger,
	}
}

func (q *Redis) ensureGroup(ctx context.Context, stream string) error {
	if _, ok := q.groups.Load(stream); ok {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, stream, redisGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("queue/redis: create group on %s: %w", stream, err)
	}
	q.groups.Store(stream, struct{}{})
	return nil
}

func (q *Redis) Publish(ctx context.Context, channel string, body []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: channel,
		Values: map[string]any{redisBodyField: body},
	}).Err()
	if err != nil {
		return fmt.Errorf("queue/redis: add to %s: %w", channel, err)
	}
	return nil
}

func (q *Redis) Receive(ctx context.Context, channel string, max int) ([]*Message, error) {
	if err := q.ensureGroup(ctx, channel); err != nil {
		return nil, err
	}

	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   channel,
		Group:    redisGroup,
		Consumer: q.consumer,
		MinIdle:  q.visibilityTimeout,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("queue/redis: reclaim on %s: %w", channel, err)
	}

	entries := claimed
	if len(entries) < max {
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    redisGroup,
			Consumer: q.consumer,
			Streams:  []string{channel, ">"},
			Count:    int64(max - len(entries)),
			Block:    -1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("queue/redis: read from %s: %w", channel, err)
		}
		for _, s := range streams {
			entries = append(entries, s.Messages...)
		}
	}

	msgs := make([]*Message, 0, len(entries))
	for _, e := range entries {
		count, err := q.deliveryCount(ctx, channel, e.ID)
		if err != nil {
			return nil, err
		}
		if q.maxReceiveCount > 0 && count > q.maxReceiveCount {
			q.deadLetter(ctx, channel, e)
			continue
		}
		msgs = append(msgs, &Message{
			ID:           e.ID,
			Body:         entryBody(e),
			ReceiveCount: count,
			handle:       e.ID,
		})
	}
	return msgs, nil
}

func (q *Redis) deliveryCount(ctx context.Context, stream, id string) (int, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  redisGroup,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue/redis: pending on %s: %w", stream, err)
	}
	if len(pending) == 0 {
		return 1, nil
	}
	return int(pending[0].RetryCount), nil
}

func (q *Redis) deadLetter(ctx context.Context, channel string, e redis.XMessage) {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetter(channel),
		Values: map[string]any{redisBodyField: entryBody(e), "source_id": e.ID},
	})
	pipe.XAck(ctx, channel, redisGroup, e.ID)
	pipe.XDel(ctx, channel, e.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to dead-letter message",
			slog.String("channel", channel),
			slog.String("id", e.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	q.logger.Warn("message moved to dead-letter stream",
		slog.String("channel", channel),
		slog.String("id", e.ID),
	)
}

func entryBody(e redis.XMessage) []byte {
	switch v := e.Values[redisBodyField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

func (q *Redis) Ack(ctx context.Context, channel string, msg *Message) error {
	id := msg.handle.(string)
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, channel, redisGroup, id)
	pipe.XDel(ctx, channel, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue/redis: ack on %s: %w", channel, err)
	}
	return nil
}

// Nack leaves the entry pending. Streams have no per-entry release, so it is
// reclaimed by the next Receive once it has been idle for the visibility timeout.
func (q *Redis) Nack(context.Context, string, *Message) error {
	return nil
}

// Close is a no-op; the caller owns the client.
func (q *Redis) Close() error { return nil }
