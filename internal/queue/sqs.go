package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsMaxBatch is the SQS limit on messages per ReceiveMessage call.
const sqsMaxBatch = 10

// SQS is a Queue on Amazon SQS. Channels map to queue names; the queues and
// their redrive policies are provisioned outside the service.
type SQS struct {
	client            *sqs.Client
	waitTimeSeconds   int32
	visibilityTimeout int32

	mu   sync.RWMutex
	urls map[string]string
}

// NewSQS wraps an SQS client.
func NewSQS(client *sqs.Client, waitTimeSeconds, visibilityTimeoutSeconds int32) *SQS {
	return &SQS{
		client:            client,
		waitTimeSeconds:   waitTimeSeconds,
		visibilityTimeout: visibilityTimeoutSeconds,
		urls:              make(map[string]string),
	}
}

func (q *SQS) queueURL(ctx context.Context, channel string) (string, error) {
	q.mu.RLock()
	url, ok := q.urls[channel]
	q.mu.RUnlock()
	if ok {
		return url, nil
	}

	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(channel)})
	if err != nil {
		return "", fmt.Errorf("queue/sqs: resolve %s: %w", channel, err)
	}

	q.mu.Lock()
	q.urls[channel] = aws.ToString(out.QueueUrl)
	q.mu.Unlock()
	return aws.ToString(out.QueueUrl), nil
}

func (q *SQS) Publish(ctx context.Context, channel string, body []byte) error {
	url, err := q.queueURL(ctx, channel)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue/sqs: send to %s: %w", channel, err)
	}
	return nil
}

func (q *SQS) Receive(ctx context.Context, channel string, max int) ([]*Message, error) {
	url, err := q.queueURL(ctx, channel)
	if err != nil {
		return nil, err
	}
	if max > sqsMaxBatch {
		max = sqsMaxBatch
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(url),
		MaxNumberOfMessages:         int32(max),
		WaitTimeSeconds:             q.waitTimeSeconds,
		VisibilityTimeout:           q.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return nil, fmt.Errorf("queue/sqs: receive from %s: %w", channel, err)
	}

	msgs := make([]*Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		msgs = append(msgs, &Message{
			ID:           aws.ToString(m.MessageId),
			Body:         []byte(aws.ToString(m.Body)),
			ReceiveCount: count,
			handle:       aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

func (q *SQS) Ack(ctx context.Context, channel string, msg *Message) error {
	url, err := q.queueURL(ctx, channel)
	if err != nil {
		return err
	}
	_, err = q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(msg.handle.(string)),
	})
	if err != nil {
		return fmt.Errorf("queue/sqs: delete from %s: %w", channel, err)
	}
	return nil
}

// Nack leaves the message in flight; SQS redelivers it once the visibility
// timeout expires.
func (q *SQS) Nack(context.Context, string, *Message) error {
	return nil
}

// Close is a no-op; the SDK client holds no connections that need closing.
func (q *SQS) Close() error { return nil }
