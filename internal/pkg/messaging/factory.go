package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/segmentio/kafka-go"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
)

const (
	DriverNSQ   = "nsq"
	DriverNATS  = "nats"
	DriverKafka = "kafka"
)

var ErrUnknownDriver = errors.New("messaging: unknown driver")

// FactoryOptions carries the settings of every backend; only the one picked
// by the driver name is read.
type FactoryOptions struct {
	NSQ   NSQConfig
	NATS  NATSConfig
	Kafka KafkaConfig
}

// OptionsFromConfig reads the messaging.nsq, messaging.nats and
// messaging.kafka sections.
func OptionsFromConfig(cfg config.Config) FactoryOptions {
	producer := nsq.NewConfig()
	producer.DialTimeout = cfg.GetSecond("messaging.nsq.producer_config.dial_timeout_seconds")
	producer.ReadTimeout = cfg.GetSecond("messaging.nsq.producer_config.read_timeout_seconds")
	producer.WriteTimeout = cfg.GetSecond("messaging.nsq.producer_config.write_timeout_seconds")

	consumer := nsq.NewConfig()
	consumer.MaxInFlight = cfg.GetInt("messaging.nsq.consumer_config.max_in_flight")
	consumer.LookupdPollInterval = cfg.GetSecond("messaging.nsq.consumer_config.lookupd_poll_interval_seconds")
	consumer.DialTimeout = cfg.GetSecond("messaging.nsq.consumer_config.dial_timeout_seconds")
	consumer.ReadTimeout = cfg.GetSecond("messaging.nsq.consumer_config.read_timeout_seconds")
	consumer.WriteTimeout = cfg.GetSecond("messaging.nsq.consumer_config.write_timeout_seconds")
	consumer.DefaultRequeueDelay = cfg.GetSecond("messaging.nsq.consumer_config.default_requeue_delay_seconds")
	consumer.MaxRequeueDelay = cfg.GetSecond("messaging.nsq.consumer_config.max_requeue_delay_seconds")

	return FactoryOptions{
		NSQ: NSQConfig{
			ProducerAddr:         cfg.GetString("messaging.nsq.producer_addr"),
			ConsumerNSQDAddrs:    cfg.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			ConsumerLookupdAddrs: cfg.GetArray("messaging.nsq.consumer_lookupd_addrs"),
			ProducerConfig:       producer,
			ConsumerConfig:       consumer,
		},
		NATS: NATSConfig{
			URL: cfg.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(cfg.GetString("messaging.nats.name")),
				nats.MaxReconnects(cfg.GetInt("messaging.nats.max_reconnects")),
				nats.Timeout(cfg.GetSecond("messaging.nats.timeout_seconds")),
				nats.ReconnectWait(cfg.GetSecond("messaging.nats.reconnect_wait_seconds")),
				nats.PingInterval(cfg.GetSecond("messaging.nats.ping_interval_seconds")),
				nats.MaxPingsOutstanding(cfg.GetInt("messaging.nats.max_pings_outstanding")),
				nats.RetryOnFailedConnect(cfg.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
		Kafka: KafkaConfig{
			Brokers: cfg.GetArray("messaging.kafka.brokers"),
			Dialer: &kafka.Dialer{
				ClientID:  cfg.GetString("messaging.kafka.client_id"),
				Timeout:   cfg.GetSecond("messaging.kafka.dial_timeout_seconds"),
				DualStack: true,
			},
			RetryBackoff: time.Duration(cfg.GetInt64("messaging.kafka.retry_backoff_millis")) * time.Millisecond,
		},
	}
}

func NewFromDriver(driver string, opts FactoryOptions) (Messaging, error) {
	switch strings.TrimSpace(driver) {
	case DriverNSQ:
		return NewNSQ(opts.NSQ)
	case DriverNATS:
		return NewNATS(opts.NATS)
	case DriverKafka:
		return NewKafka(opts.Kafka)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
