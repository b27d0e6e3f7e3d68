package inbound

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const (
	defaultConcurrency = 10
	defaultMaxAttempts = 5
)

type subscription struct {
	name    string
	source  string
	handler messaging.Handler
}

// RegisterMQConsumer starts one background consumer per subscription listed
// in modules.notification.consumer_names. The subscription name doubles as
// the consumer group, so replicas share the load.
func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	consumer messaging.Consumer,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	h := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	subs := []subscription{
		{
			name:    event.SMSDispatchConsumerNotification,
			source:  event.SMSDispatchDestination,
			handler: h.SMSDispatchNotification,
		},
	}

	enabled := cfg.GetArray("modules.notification.consumer_names")
	opts := []messaging.ConsumeOption{
		messaging.WithConcurrency(positiveOr(cfg.GetInt("modules.notification.concurrency"), defaultConcurrency)),
		messaging.WithMaxAttempts(positiveOr(cfg.GetInt("modules.notification.max_attempts"), defaultMaxAttempts)),
	}

	for _, sub := range subs {
		if !slices.Contains(enabled, sub.name) {
			continue
		}

		started := routine.Go(ctx, func(ctx context.Context) error {
			slog.InfoContext(ctx, "consumer started", "consumer", sub.name, "source", sub.source)
			return consumer.Consume(ctx, sub.source, sub.handler, append(opts, messaging.WithGroup(sub.name))...)
		})
		if !started {
			slog.ErrorContext(ctx, "consumer not started", "consumer", sub.name)
		}
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
