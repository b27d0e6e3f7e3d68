package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, headers []messaging.Header) context.Context {
	if cID := messaging.HeaderValue(headers, keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// SMSDispatchNotification delivers a verification code published by the
// phone verification flow. The body carries the code, so it is never logged.
func (h *MQHandler) SMSDispatchNotification(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "SMSDispatchNotification")
	defer span.End()

	slog.InfoContext(ctx, "consume: sms dispatch notification", "msg_id", msg.ID(), "topic", msg.Topic())

	var payload event.SMSDispatchMessage
	if err := json.Unmarshal(msg.Body(), &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of sms dispatch notification", "msg_id", msg.ID(), "error", err)
		return nil
	}

	if err := h.uc.ConsumeSMSDispatch(ctx, usecase.ConsumeSMSDispatchInput{
		ChallengeID: payload.ChallengeID,
		PhoneNumber: payload.PhoneNumber,
		Code:        payload.Code,
		ExpiresAt:   payload.ExpiresAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume sms dispatch", "msg_id", msg.ID(), "phone_number", payload.PhoneNumber, "error", err)
		return err
	}

	return nil
}
