package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

var Module = fx.Module("queue",
	fx.Provide(
		NewQueue,
		func(q Queue) Publisher { return q },
		func(q Queue) Consumer { return q },
		func(cfg *config.QueueConfig) Channels { return Channels{Prefix: cfg.Prefix} },
	),
)

// NewQueue builds the backend selected by QUEUE_BACKEND and closes it on stop.
func NewQueue(lc fx.Lifecycle, cfg *config.QueueConfig, log *slog.Logger) (Queue, error) {
	log = log.With(logger.Scope("queue"))

	q, err := open(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Info("queue backend initialized",
		slog.String("backend", cfg.Backend),
		slog.String("prefix", cfg.Prefix),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing queue backend")
			return q.Close()
		},
	})
	return q, nil
}

func open(cfg *config.QueueConfig, log *slog.Logger) (Queue, error) {
	switch cfg.Backend {
	case config.QueueBackendMemory:
		return NewMemory(cfg.VisibilityTimeout, cfg.MaxReceiveCount), nil

	case config.QueueBackendSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.SQSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.SQSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.SQSEndpoint)
			}
		})
		return NewSQS(client, cfg.SQSWaitTimeSeconds, int32(cfg.VisibilityTimeout.Seconds())), nil

	case config.QueueBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("queue/redis: ping %s: %w", cfg.RedisAddr, err)
		}
		return &closingRedis{
			Redis:  NewRedis(client, consumerName(), cfg.VisibilityTimeout, cfg.MaxReceiveCount, log),
			client: client,
		}, nil

	case config.QueueBackendAMQP:
		return NewAMQP(cfg.AMQPURL, cfg.MaxReceiveCount)

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// closingRedis owns the client it was built with.
type closingRedis struct {
	*Redis
	client *redis.Client
}

func (c *closingRedis) Close() error { return c.client.Close() }

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "hrm-service"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
