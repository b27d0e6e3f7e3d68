package usecase

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
)

func (s *Usecase) Session(ctx context.Context) (*entity.Session, error) {
	_, span := s.startSpan(ctx, "Session")
	defer span.End()

	clm := jwt.GetAuth(ctx)
	if clm == nil || clm.PhoneNumber == "" {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}

	sess := &entity.Session{PhoneNumber: clm.PhoneNumber}
	if clm.ExpiresAt != nil {
		sess.ExpiresAt = clm.ExpiresAt.Time
	}

	return sess, nil
}
