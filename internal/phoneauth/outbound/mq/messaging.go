package mq

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

// Messaging hands the code to the notification consumer through the broker.
// Notify returns once the broker accepted the message. A code the provider
// later refuses comes back as an event.SMSUndeliveredMessage.
type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) Notify(ctx context.Context, d entity.Delivery) error {
	ctx, span := m.ins.Tracer("phoneauth.outbound.mq").Start(ctx, "Notify")
	defer span.End()

	body, err := json.Marshal(event.SMSDispatchMessage{
		ChallengeID: d.ChallengeID,
		PhoneNumber: d.PhoneNumber,
		Code:        d.Code,
		ExpiresAt:   d.ExpiresAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.SMSDispatchDestination, messaging.OutgoingMessage{
		Body:    body,
		Key:     []byte(d.PhoneNumber),
		Headers: []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
