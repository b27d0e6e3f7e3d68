package messaging

type consumeOptions struct {
	// group is the NSQ channel, NATS queue group or Kafka consumer group.
	group string
	// concurrency is the number of handler goroutines.
	concurrency int
	// maxAttempts bounds handler retries for brokers without native redelivery.
	maxAttempts int
}

// ConsumeOption configures consumer behavior.
type ConsumeOption func(*consumeOptions)

func newConsumeOptions(opts ...ConsumeOption) consumeOptions {
	co := consumeOptions{concurrency: 1, maxAttempts: 3}
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	if co.concurrency < 1 {
		co.concurrency = 1
	}
	if co.maxAttempts < 1 {
		co.maxAttempts = 1
	}
	return co
}

// WithGroup sets the load-balancing group shared by replicas of one consumer.
func WithGroup(group string) ConsumeOption {
	return func(o *consumeOptions) { o.group = group }
}

// WithConcurrency sets how many handler goroutines process messages in parallel.
func WithConcurrency(n int) ConsumeOption {
	return func(o *consumeOptions) { o.concurrency = n }
}

// WithMaxAttempts sets how often a failing handler runs before the message is dropped.
func WithMaxAttempts(n int) ConsumeOption {
	return func(o *consumeOptions) { o.maxAttempts = n }
}
