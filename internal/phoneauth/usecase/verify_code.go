package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type VerifyCodeInput struct {
	PhoneNumber string `validate:"required"`
	Code        string `validate:"required"`
}

type VerifyCodeOutput struct {
	Token string
}

// VerifyCode consumes the live challenge for the phone number and mints a
// session token on a match.
func (s *Usecase) VerifyCode(ctx context.Context, in VerifyCodeInput) (*VerifyCodeOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyCode")
	defer span.End()

	in.PhoneNumber = s.normalizePhone(in.PhoneNumber)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewValidation("Phone number and OTP are required", err)
	}

	codeHash, err := s.hmac.Hash(in.Code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash code", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}

	result, err := s.store.Consume(ctx, in.PhoneNumber, string(codeHash), s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume challenge", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result.String())))

	switch result {
	case entity.ConsumeMatched:
	case entity.ConsumeExpired:
		slog.WarnContext(ctx, "challenge expired", "phone_number", in.PhoneNumber)
		return nil, goerror.NewBusiness("OTP has expired", goerror.CodeExpiredCode)
	case entity.ConsumeMismatch:
		slog.WarnContext(ctx, "code mismatch", "phone_number", in.PhoneNumber)
		return nil, goerror.NewBusiness("Invalid OTP", goerror.CodeInvalidCode)
	default:
		slog.WarnContext(ctx, "challenge not found", "phone_number", in.PhoneNumber)
		return nil, goerror.NewBusiness("Invalid OTP", goerror.CodeInvalidCode)
	}

	token, err := s.jwt.Generate(in.PhoneNumber)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate session token", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "phone number verified", "phone_number", in.PhoneNumber)

	return &VerifyCodeOutput{Token: token}, nil
}
