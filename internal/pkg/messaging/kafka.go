package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrKafkaTopicRequired   = errors.New("messaging: kafka topic is required")
	ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")
	ErrKafkaGroupRequired   = errors.New("messaging: kafka consumer group is required")
)

const defaultKafkaBackoff = 200 * time.Millisecond

type KafkaConfig struct {
	Brokers []string
	Dialer  *kafka.Dialer
	// RetryBackoff is the first delay between handler attempts; it doubles.
	RetryBackoff time.Duration
}

// Kafka publishes with acks from all in-sync replicas and consumes through
// consumer groups. An offset is committed once its handler succeeded or ran
// out of attempts, so a poison message never blocks its partition.
type Kafka struct {
	brokers []string
	dialer  *kafka.Dialer
	backoff time.Duration

	group closeGroup

	wmu     sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultKafkaBackoff
	}

	return &Kafka{
		brokers: append([]string(nil), cfg.Brokers...),
		dialer:  cfg.Dialer,
		backoff: backoff,
		writers: map[string]*kafka.Writer{},
	}, nil
}

func (k *Kafka) Close() error {
	_, err := k.group.close()
	return err
}

func (k *Kafka) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	switch {
	case ctx.Err() != nil:
		return PublishResult{}, ctx.Err()
	case destination == "":
		return PublishResult{}, ErrKafkaTopicRequired
	case msg.Delay > 0:
		return PublishResult{}, ErrUnsupported
	}

	w, err := k.writerFor(destination)
	if err != nil {
		return PublishResult{}, err
	}

	km := kafka.Message{Key: msg.Key, Value: msg.Body, Time: time.Now()}
	for _, h := range msg.Headers {
		if h.Key != "" {
			km.Headers = append(km.Headers, kafka.Header{Key: h.Key, Value: h.Value})
		}
	}

	if err := w.WriteMessages(ctx, km); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: kafka publish: %w", err)
	}
	return PublishResult{Topic: destination, Timestamp: km.Time}, nil
}

func (k *Kafka) writerFor(topic string) (*kafka.Writer, error) {
	k.wmu.Lock()
	defer k.wmu.Unlock()

	if w, ok := k.writers[topic]; ok && !k.group.isClosed() {
		return w, nil
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	if k.dialer != nil {
		w.Transport = &kafka.Transport{TLS: k.dialer.TLS, SASL: k.dialer.SASLMechanism}
	}
	if _, err := k.group.add(w.Close); err != nil {
		return nil, err
	}

	k.writers[topic] = w
	return w, nil
}

// Consume blocks until ctx is done or the reader fails.
func (k *Kafka) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if source == "" {
		return ErrKafkaTopicRequired
	}

	co := newConsumeOptions(opts...)
	if co.group == "" {
		return ErrKafkaGroupRequired
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  co.group,
		Topic:    source,
		MaxBytes: 10e6,
		Dialer:   k.dialer,
	})
	untrack, err := k.group.add(reader.Close)
	if err != nil {
		return errors.Join(err, reader.Close())
	}
	defer untrack()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	fetched := make(chan kafka.Message)
	go func() {
		defer close(fetched)
		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				cancel(err)
				return
			}
			select {
			case fetched <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range co.concurrency {
		wg.Go(func() {
			for m := range fetched {
				if err := deliverWithRetry(ctx, "kafka", handler, kafkaMessage{m}, co.maxAttempts, k.backoff); err != nil {
					logDropped(ctx, "kafka", m.Topic, err, "partition", m.Partition, "offset", m.Offset)
				}
				if err := reader.CommitMessages(ctx, m); err != nil {
					cancel(err)
					return
				}
			}
		})
	}

	<-ctx.Done()
	wg.Wait()

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, io.EOF):
		// reader closed by Close
		cause = nil
	case !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded):
		cause = fmt.Errorf("messaging: kafka consume: %w", cause)
	}
	return errors.Join(cause, reader.Close())
}

type kafkaMessage struct {
	m kafka.Message
}

func (km kafkaMessage) Body() []byte { return km.m.Value }

func (km kafkaMessage) Headers() []Header {
	out := make([]Header, len(km.m.Headers))
	for i, h := range km.m.Headers {
		out[i] = Header{Key: h.Key, Value: h.Value}
	}
	return out
}

func (km kafkaMessage) ID() string {
	return km.m.Topic + "/" + strconv.Itoa(km.m.Partition) + "/" + strconv.FormatInt(km.m.Offset, 10)
}

func (km kafkaMessage) Topic() string        { return km.m.Topic }
func (km kafkaMessage) Timestamp() time.Time { return km.m.Time }
