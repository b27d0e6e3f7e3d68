package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
)

type uc interface {
	ConsumeSMSDispatch(ctx context.Context, in usecase.ConsumeSMSDispatchInput) error
}
