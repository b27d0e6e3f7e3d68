package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const defaultSendTimeout = 10 * time.Second

type repoSMS interface {
	Send(ctx context.Context, phone, code string) error
}

type repoEvent interface {
	PublishUndelivered(ctx context.Context, msg event.SMSUndeliveredMessage) error
}

type Dependency struct {
	RepoSMS    repoSMS
	RepoEvent  repoEvent
	Clock      clock.Clocker
	Config     config.Config
	Validator  validator.Validator
	Instrument instrument.Instrumentation
}

type Usecase struct {
	repoSMS   repoSMS
	repoEvent repoEvent
	clock     clock.Clocker
	validator validator.Validator
	tracer    trace.Tracer
	delivered metric.Int64Counter

	// sendTimeout caps a single provider call.
	sendTimeout time.Duration
}

func NewNotification(dep Dependency) *Usecase {
	uc := &Usecase{
		repoSMS:     dep.RepoSMS,
		repoEvent:   dep.RepoEvent,
		clock:       dep.Clock,
		validator:   dep.Validator,
		tracer:      dep.Instrument.Tracer("notification.usecase"),
		sendTimeout: defaultSendTimeout,
	}

	if v := dep.Config.GetSecond("modules.notification.timeout_seconds"); v > 0 {
		uc.sendTimeout = v
	}

	var err error
	uc.delivered, err = dep.Instrument.Meter("notification.usecase").Int64Counter(
		"notification.sms.dispatched",
		metric.WithDescription("SMS dispatch messages handled, by status"),
	)
	if err != nil {
		slog.Error("failed to create sms dispatched counter", "error", err)
	}

	return uc
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}
