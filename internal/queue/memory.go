package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errUnknownMessage = errors.New("queue: message not in flight")

type memoryEntry struct {
	id           string
	body         []byte
	receiveCount int
	visibleAt    time.Time
}

// Memory is an in-process Queue. It applies the same visibility timeout and
// redrive rules as the networked backends and is used for local runs and tests.
type Memory struct {
	mu                sync.Mutex
	channels          map[string][]*memoryEntry
	visibilityTimeout time.Duration
	maxReceiveCount   int
	now               func() time.Time
}

// MemoryOption configures a Memory queue.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory queue. maxReceiveCount <= 0 disables redrive.
func NewMemory(visibilityTimeout time.Duration, maxReceiveCount int, opts ...MemoryOption) *Memory {
	m := &Memory{
		channels:          make(map[string][]*memoryEntry),
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
		now:               time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Publish(ctx context.Context, channel string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.channels[channel] = append(m.channels[channel], &memoryEntry{
		id:        uuid.NewString(),
		body:      append([]byte(nil), body...),
		visibleAt: m.now(),
	})
	return nil
}

func (m *Memory) Receive(ctx context.Context, channel string, max int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []*Message
	kept := m.channels[channel][:0]
	for _, e := range m.channels[channel] {
		if len(out) >= max || e.visibleAt.After(now) {
			kept = append(kept, e)
			continue
		}
		if m.maxReceiveCount > 0 && e.receiveCount >= m.maxReceiveCount {
			dlq := DeadLetter(channel)
			m.channels[dlq] = append(m.channels[dlq], &memoryEntry{id: e.id, body: e.body, visibleAt: now})
			continue
		}
		e.receiveCount++
		e.visibleAt = now.Add(m.visibilityTimeout)
		kept = append(kept, e)
		out = append(out, &Message{
			ID:           e.id,
			Body:         append([]byte(nil), e.body...),
			ReceiveCount: e.receiveCount,
			handle:       e.id,
		})
	}
	m.channels[channel] = kept
	return out, nil
}

func (m *Memory) Ack(_ context.Context, channel string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.channels[channel]
	for i, e := range entries {
		if e.id == msg.handle {
			m.channels[channel] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return errUnknownMessage
}

// Nack leaves the message in flight until its visibility timeout expires.
func (m *Memory) Nack(_ context.Context, channel string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.channels[channel] {
		if e.id == msg.handle {
			return nil
		}
	}
	return errUnknownMessage
}

// Len returns the number of messages on a channel, in flight or not.
func (m *Memory) Len(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels[channel])
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
