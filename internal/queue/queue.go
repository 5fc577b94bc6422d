// Package queue is the message transport between the service and the external
// transcript workers. Each job type has its own dispatch channel and all
// workers report back on a single completion channel.
//
// Delivery is at-least-once on every backend. A received message that is not
// acknowledged becomes visible again after the visibility timeout, and the
// backend's redrive policy moves it to a dead-letter channel once it has been
// received too many times.
package queue

import (
	"context"
	"strings"
)

// Message is one received message.
type Message struct {
	ID   string
	Body []byte
	// ReceiveCount is 1 on first delivery.
	ReceiveCount int

	handle any
}

// Publisher sends messages to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, body []byte) error
}

// Consumer receives and settles messages from a channel.
type Consumer interface {
	// Receive returns up to max ready messages without blocking for long.
	// An empty result is not an error.
	Receive(ctx context.Context, channel string, max int) ([]*Message, error)
	// Ack removes the message from the channel.
	Ack(ctx context.Context, channel string, msg *Message) error
	// Nack gives the message up. It is redelivered according to the
	// backend's policy and counts toward the redrive limit.
	Nack(ctx context.Context, channel string, msg *Message) error
}

// Queue is a backend implementing both sides.
type Queue interface {
	Publisher
	Consumer
	Close() error
}

// Channels derives channel names from a deployment prefix.
type Channels struct {
	Prefix string
}

// Dispatch returns the channel a job type is dispatched on, e.g.
// "hrm-retrieve-contact-transcript".
func (c Channels) Dispatch(jobType string) string {
	return c.name(strings.ReplaceAll(strings.ToLower(jobType), "_", "-"))
}

// Completion returns the channel workers publish completions on.
func (c Channels) Completion() string {
	return c.name("contact-job-complete")
}

func (c Channels) name(suffix string) string {
	if c.Prefix == "" {
		return suffix
	}
	return c.Prefix + "-" + suffix
}

// DeadLetter returns the dead-letter channel for a channel.
func DeadLetter(channel string) string {
	return channel + "-dlq"
}
