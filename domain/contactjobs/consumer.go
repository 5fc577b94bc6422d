package contactjobs

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/queue"
	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/metrics"
)

// Consumer drains the completion channel into the CompletionHandler.
//
// A message is acknowledged once it has been applied. Any error leaves it
// unacknowledged, so the queue redelivers it until its redrive policy moves it
// to the dead-letter channel.
type Consumer struct {
	consumer    queue.Consumer
	channel     string
	handler     *CompletionHandler
	batch       int
	concurrency int
	log         *slog.Logger
}

// NewConsumer creates a new completion consumer
func NewConsumer(consumer queue.Consumer, channels queue.Channels, handler *CompletionHandler, cfg *config.ContactJobsConfig, log *slog.Logger) *Consumer {
	return &Consumer{
		consumer:    consumer,
		channel:     channels.Completion(),
		handler:     handler,
		batch:       max(cfg.CompletionBatch, 1),
		concurrency: max(cfg.CompletionConcurrency, 1),
		log:         log.With(logger.Scope("contactjobs.consumer")),
	}
}

// Tick adapts Drain to the poller.
func (c *Consumer) Tick(ctx context.Context) error {
	_, err := c.Drain(ctx)
	return err
}

// Drain receives batches until the channel is empty or ctx is done, and
// returns the number of messages acknowledged.
func (c *Consumer) Drain(ctx context.Context) (int, error) {
	acked := 0
	for ctx.Err() == nil {
		msgs, err := c.consumer.Receive(ctx, c.channel, c.batch)
		if err != nil {
			c.log.Error("failed to receive completion messages", logger.Error(err))
			return acked, err
		}
		if len(msgs) == 0 {
			return acked, nil
		}

		acked += c.handleBatch(ctx, msgs)

		if len(msgs) < c.batch {
			return acked, nil
		}
	}
	return acked, ctx.Err()
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []*queue.Message) int {
	results := make([]bool, len(msgs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			results[i] = c.handleMessage(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n
}

func (c *Consumer) handleMessage(ctx context.Context, msg *queue.Message) bool {
	log := c.log.With(
		slog.String("message_id", msg.ID),
		slog.Int("receive_count", msg.ReceiveCount),
	)

	completion, err := ParseCompletionMessage(msg.Body)
	if err == nil {
		_, err = c.handler.Handle(ctx, completion)
	}
	if err != nil {
		metrics.CompletionMessageErrors.Inc()
		log.Error("failed to handle completion message", logger.Error(err))
		if nerr := c.consumer.Nack(ctx, c.channel, msg); nerr != nil {
			log.Warn("failed to release completion message", logger.Error(nerr))
		}
		return false
	}

	if err := c.consumer.Ack(ctx, c.channel, msg); err != nil {
		// The message will be redelivered and applied again, which is safe.
		log.Warn("failed to acknowledge completion message", logger.Error(err))
		return false
	}
	return true
}
