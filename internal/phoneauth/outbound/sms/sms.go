package sms

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/sms"
)

// SMS delivers codes straight through a provider client. Notify returns only
// after the provider accepted or refused the message.
type SMS struct {
	client sms.SMS
}

func New(client sms.SMS) *SMS {
	return &SMS{client: client}
}

func (s *SMS) Notify(ctx context.Context, d entity.Delivery) error {
	return s.client.Send(ctx, d.PhoneNumber, d.Code)
}
