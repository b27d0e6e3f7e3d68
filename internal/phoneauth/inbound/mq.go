package inbound

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type mqUC interface {
	DiscardUndelivered(ctx context.Context, in usecase.DiscardUndeliveredInput) error
}

// RegisterMQConsumer listens for codes the notification consumer could not
// deliver and withdraws their challenges.
func RegisterMQConsumer(
	ctx context.Context,
	routine *goroutine.Manager,
	consumer messaging.Consumer,
	uc mqUC,
	ins instrument.Instrumentation,
) {
	h := &MQHandler{uc: uc, ins: ins}

	started := routine.Go(ctx, func(ctx context.Context) error {
		slog.InfoContext(ctx, "consumer started", "consumer", event.SMSUndeliveredConsumerPhoneAuth, "source", event.SMSUndeliveredDestination)
		return consumer.Consume(ctx, event.SMSUndeliveredDestination, h.SMSUndelivered,
			messaging.WithGroup(event.SMSUndeliveredConsumerPhoneAuth))
	})
	if !started {
		slog.ErrorContext(ctx, "consumer not started", "consumer", event.SMSUndeliveredConsumerPhoneAuth)
	}
}
