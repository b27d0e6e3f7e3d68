// Package messaging hides NSQ, NATS and Kafka behind one publish/consume API.
//
// Publish returns once the broker accepted the message, so a nil error is a
// durable hand-off. Delivery is at-least-once on every driver and handlers
// must tolerate duplicates.
package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrUnsupported = errors.New("messaging: unsupported operation")

type Messaging interface {
	Publisher
	Consumer
	io.Closer
}

type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// Consumer blocks in Consume until ctx is cancelled or the client is closed.
type Consumer interface {
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler returns an error to have the message retried.
type Handler func(ctx context.Context, msg Message) error

type OutgoingMessage struct {
	Body    []byte
	Headers []Header

	// Key picks the Kafka partition.
	Key []byte

	// Delay is honoured by NSQ and rejected by the other drivers.
	Delay time.Duration
}

type Header struct {
	Key   string
	Value []byte
}

type PublishResult struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

type Message interface {
	ID() string
	Topic() string
	Body() []byte
	Headers() []Header
	Timestamp() time.Time
}

// HeaderValue returns the value of the first header named key.
func HeaderValue(headers []Header, key string) string {
	for i := range headers {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}
