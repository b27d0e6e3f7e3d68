package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	ErrNATSSubjectRequired = errors.New("messaging: nats subject is required")
	ErrNATSURLRequired     = errors.New("messaging: nats url is required")
)

const natsRetryBackoff = 100 * time.Millisecond

type NATSConfig struct {
	URL     string
	Options []nats.Option
}

// NATS uses core NATS subjects with queue groups. Core NATS never redelivers,
// so failing handlers are retried in process and then dropped.
type NATS struct {
	conn  *nats.Conn
	group closeGroup
}

func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, ErrNATSURLRequired
	}

	conn, err := nats.Connect(cfg.URL, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}
	return &NATS{conn: conn}, nil
}

// Close drains subscriptions first, then the connection.
func (n *NATS) Close() error {
	first, err := n.group.close()
	if !first {
		return nil
	}

	err = errors.Join(err, n.conn.Drain())
	n.conn.Close()
	return err
}

// Publish returns after the server acknowledged the flush.
func (n *NATS) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if destination == "" {
		return PublishResult{}, ErrNATSSubjectRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}

	nm := nats.NewMsg(destination)
	nm.Data = msg.Body
	for _, h := range msg.Headers {
		if h.Key != "" {
			nm.Header.Add(h.Key, string(h.Value))
		}
	}

	if err := n.conn.PublishMsg(nm); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nats publish: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nats flush: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}

// Consume blocks until ctx is done.
func (n *NATS) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if source == "" {
		return ErrNATSSubjectRequired
	}

	co := newConsumeOptions(opts...)
	inbox := make(chan *nats.Msg, co.concurrency)

	sub, err := n.conn.QueueSubscribe(source, co.group, func(m *nats.Msg) {
		select {
		case inbox <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("messaging: nats subscribe: %w", err)
	}

	untrack, err := n.group.add(sub.Drain)
	if err != nil {
		return errors.Join(err, sub.Unsubscribe())
	}
	defer untrack()

	var wg sync.WaitGroup
	for range co.concurrency {
		wg.Go(func() {
			for {
				var m *nats.Msg
				select {
				case m = <-inbox:
				case <-ctx.Done():
					return
				}

				msg := natsMessage{m: m, receivedAt: time.Now()}
				if err := deliverWithRetry(ctx, "nats", handler, msg, co.maxAttempts, natsRetryBackoff); err != nil {
					logDropped(ctx, "nats", m.Subject, err)
				}
			}
		})
	}

	// inbox is never closed: the subscription callback may still run while
	// the drain completes in the background.
	<-ctx.Done()
	derr := sub.Drain()
	wg.Wait()

	if errors.Is(derr, nats.ErrConnectionClosed) || errors.Is(derr, nats.ErrConnectionDraining) || errors.Is(derr, nats.ErrBadSubscription) {
		derr = nil
	}
	return errors.Join(ctx.Err(), derr)
}

type natsMessage struct {
	m          *nats.Msg
	receivedAt time.Time
}

func (nm natsMessage) Body() []byte { return nm.m.Data }

func (nm natsMessage) Headers() []Header {
	var out []Header
	for k, vs := range nm.m.Header {
		for _, v := range vs {
			out = append(out, Header{Key: k, Value: []byte(v)})
		}
	}
	return out
}

// ID is empty: core NATS messages carry no broker id.
func (nm natsMessage) ID() string           { return "" }
func (nm natsMessage) Topic() string        { return nm.m.Subject }
func (nm natsMessage) Timestamp() time.Time { return nm.receivedAt }
