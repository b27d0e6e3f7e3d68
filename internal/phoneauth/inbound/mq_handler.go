package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc  mqUC
	ins instrument.Instrumentation
}

// SMSUndelivered drops malformed reports and asks for redelivery when the
// store could not be reached.
func (h *MQHandler) SMSUndelivered(ctx context.Context, msg messaging.Message) error {
	if cID := messaging.HeaderValue(msg.Headers(), keyOfCorrelationID); cID != "" {
		ctx = instrument.SetCorrelationID(ctx, cID)
	}

	ctx, span := h.ins.Tracer("phoneauth.inbound.mq").Start(ctx, "SMSUndelivered")
	defer span.End()

	var payload event.SMSUndeliveredMessage
	if err := json.Unmarshal(msg.Body(), &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse sms undelivered message", "msg_id", msg.ID(), "error", err)
		return nil
	}

	err := h.uc.DiscardUndelivered(ctx, usecase.DiscardUndeliveredInput{
		ChallengeID: payload.ChallengeID,
		PhoneNumber: payload.PhoneNumber,
		Reason:      payload.Reason,
	})

	var gerr *goerror.Error
	if errors.As(err, &gerr) && gerr.Code() == goerror.CodeInvalidInput {
		slog.ErrorContext(ctx, "sms undelivered message rejected", "msg_id", msg.ID(), "error", err)
		return nil
	}

	return err
}
