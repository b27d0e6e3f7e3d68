package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/sms"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type ConsumeSMSDispatchInput struct {
	ChallengeID int64
	PhoneNumber string `validate:"required,phone"`
	Code        string `validate:"required,numeric"`
	ExpiresAt   time.Time
}

// ConsumeSMSDispatch sends a code handed over by the phone verification flow.
//
// Invalid and expired payloads are dropped. When the provider fails after its
// own retries the challenge is reported undelivered so the code stops being
// accepted. Without a challenge id, or when the report cannot be published,
// the error is returned and the broker redelivers.
func (s *Usecase) ConsumeSMSDispatch(ctx context.Context, in ConsumeSMSDispatchInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeSMSDispatch")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "dispatch payload rejected", "phone_number", in.PhoneNumber, "error", err)
		s.record(ctx, entity.DeliveryStatusDropped)
		return nil
	}

	if !in.ExpiresAt.IsZero() && s.clock.Now().After(in.ExpiresAt) {
		slog.WarnContext(ctx, "dispatch expired before delivery", "phone_number", in.PhoneNumber, "challenge_id", in.ChallengeID, "expires_at", in.ExpiresAt)
		s.record(ctx, entity.DeliveryStatusExpired)
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	sendErr := s.repoSMS.Send(sendCtx, in.PhoneNumber, in.Code)
	if sendErr == nil {
		slog.InfoContext(ctx, "verification sms sent", "phone_number", in.PhoneNumber, "challenge_id", in.ChallengeID)
		s.record(ctx, entity.DeliveryStatusSent)
		return nil
	}

	slog.ErrorContext(ctx, "failed to send sms", "phone_number", in.PhoneNumber, "challenge_id", in.ChallengeID, "error", sendErr)
	s.record(ctx, entity.DeliveryStatusFailed)

	if in.ChallengeID == 0 {
		return sendErr
	}

	if err := s.repoEvent.PublishUndelivered(ctx, event.SMSUndeliveredMessage{
		ChallengeID: in.ChallengeID,
		PhoneNumber: in.PhoneNumber,
		Reason:      undeliveredReason(sendErr),
	}); err != nil {
		slog.ErrorContext(ctx, "failed to report undelivered sms", "phone_number", in.PhoneNumber, "challenge_id", in.ChallengeID, "error", err)
		return err
	}

	return nil
}

func (s *Usecase) record(ctx context.Context, status entity.DeliveryStatus) {
	s.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

// undeliveredReason classifies a send failure without copying provider text.
func undeliveredReason(err error) string {
	switch {
	case errors.Is(err, sms.ErrRejected):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}
