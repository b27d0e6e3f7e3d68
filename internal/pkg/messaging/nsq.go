package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

var (
	ErrNSQTopicRequired         = errors.New("messaging: nsq topic is required")
	ErrNSQChannelRequired       = errors.New("messaging: nsq channel is required")
	ErrNSQProducerAddrRequired  = errors.New("messaging: nsq producer address is required")
	ErrNSQConsumerAddrsRequired = errors.New("messaging: nsq consumer nsqd/lookupd addresses are required")
)

type NSQConfig struct {
	// ProducerAddr is optional for consume-only processes.
	ProducerAddr string
	// Lookupd addresses win over direct nsqd addresses when both are set.
	ConsumerNSQDAddrs    []string
	ConsumerLookupdAddrs []string
	ProducerConfig       *nsq.Config
	ConsumerConfig       *nsq.Config
}

// nsqEnvelope wraps the body because NSQ messages have no headers.
type nsqEnvelope struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body"`
}

// NSQ relies on nsqd for redelivery: a failing handler requeues the message
// until the channel's max attempts are spent.
type NSQ struct {
	producer *nsq.Producer
	nsqd     []string
	lookupd  []string
	ccfg     *nsq.Config
	group    closeGroup
}

func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	n := &NSQ{
		nsqd:    append([]string(nil), cfg.ConsumerNSQDAddrs...),
		lookupd: append([]string(nil), cfg.ConsumerLookupdAddrs...),
		ccfg:    cfg.ConsumerConfig,
	}
	if n.ccfg == nil {
		n.ccfg = nsq.NewConfig()
	}

	if cfg.ProducerAddr == "" {
		return n, nil
	}

	pcfg := cfg.ProducerConfig
	if pcfg == nil {
		pcfg = nsq.NewConfig()
	}
	p, err := nsq.NewProducer(cfg.ProducerAddr, pcfg)
	if err != nil {
		return nil, fmt.Errorf("messaging: nsq new producer: %w", err)
	}
	p.SetLoggerLevel(nsq.LogLevelError)
	n.producer = p

	return n, nil
}

func (n *NSQ) Close() error {
	first, err := n.group.close()
	if first && n.producer != nil {
		n.producer.Stop()
	}
	return err
}

// Publish returns once nsqd acknowledged the message. Delay uses deferred
// publish.
func (n *NSQ) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	switch {
	case ctx.Err() != nil:
		return PublishResult{}, ctx.Err()
	case destination == "":
		return PublishResult{}, ErrNSQTopicRequired
	case n.producer == nil:
		return PublishResult{}, ErrNSQProducerAddrRequired
	}

	body, err := encodeNSQEnvelope(msg)
	if err != nil {
		return PublishResult{}, err
	}

	if msg.Delay > 0 {
		err = n.producer.DeferredPublish(destination, msg.Delay, body)
	} else {
		err = n.producer.Publish(destination, body)
	}
	if err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nsq publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}

// Consume blocks until ctx is done or the consumer stops.
func (n *NSQ) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case source == "":
		return ErrNSQTopicRequired
	case len(n.nsqd) == 0 && len(n.lookupd) == 0:
		return ErrNSQConsumerAddrsRequired
	}

	co := newConsumeOptions(opts...)
	if co.group == "" {
		return ErrNSQChannelRequired
	}

	ccfg := *n.ccfg
	ccfg.MaxInFlight = max(ccfg.MaxInFlight, co.concurrency)
	ccfg.MaxAttempts = uint16(min(co.maxAttempts, 65535)) //nolint:gosec // bounded above

	consumer, err := nsq.NewConsumer(source, co.group, &ccfg)
	if err != nil {
		return fmt.Errorf("messaging: nsq new consumer: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelError)
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		msg, err := newNSQMessage(source, m)
		if err != nil {
			// undecodable payloads would fail forever
			logDropped(ctx, "nsq", source, err)
			m.Finish()
			return nil
		}
		return safeCall(ctx, "nsq", handler, msg)
	}), co.concurrency)

	stop := func() error {
		consumer.Stop()
		<-consumer.StopChan
		return nil
	}

	untrack, err := n.group.add(stop)
	if err != nil {
		return errors.Join(err, stop())
	}
	defer untrack()

	if len(n.lookupd) > 0 {
		err = consumer.ConnectToNSQLookupds(n.lookupd)
	} else {
		err = consumer.ConnectToNSQDs(n.nsqd)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("messaging: nsq connect: %w", err), stop())
	}

	select {
	case <-ctx.Done():
		return errors.Join(ctx.Err(), stop())
	case <-consumer.StopChan:
		return nil
	}
}

func encodeNSQEnvelope(msg OutgoingMessage) ([]byte, error) {
	env := nsqEnvelope{Body: msg.Body}
	for _, h := range msg.Headers {
		if h.Key == "" {
			continue
		}
		if env.Headers == nil {
			env.Headers = map[string]string{}
		}
		env.Headers[h.Key] = string(h.Value)
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("messaging: nsq encode: %w", err)
	}
	return b, nil
}

type nsqMessage struct {
	topic   string
	raw     *nsq.Message
	body    []byte
	headers []Header
}

func newNSQMessage(topic string, m *nsq.Message) (nsqMessage, error) {
	var env nsqEnvelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		return nsqMessage{}, fmt.Errorf("messaging: nsq decode: %w", err)
	}

	msg := nsqMessage{topic: topic, raw: m, body: env.Body}
	for k, v := range env.Headers {
		msg.headers = append(msg.headers, Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

func (m nsqMessage) Body() []byte         { return m.body }
func (m nsqMessage) Headers() []Header    { return m.headers }
func (m nsqMessage) ID() string           { return string(m.raw.ID[:]) }
func (m nsqMessage) Topic() string        { return m.topic }
func (m nsqMessage) Timestamp() time.Time { return time.Unix(0, m.raw.Timestamp) }
