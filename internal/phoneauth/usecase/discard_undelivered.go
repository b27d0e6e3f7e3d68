package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type DiscardUndeliveredInput struct {
	ChallengeID int64  `validate:"required"`
	PhoneNumber string `validate:"required"`
	Reason      string
}

// DiscardUndelivered withdraws a challenge whose code was handed to the broker
// but never reached the phone. A newer challenge for the same number is kept.
func (s *Usecase) DiscardUndelivered(ctx context.Context, in DiscardUndeliveredInput) error {
	ctx, span := s.startSpan(ctx, "DiscardUndelivered")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewValidation("Invalid undelivered report", err)
	}

	if err := s.store.Discard(ctx, in.PhoneNumber, in.ChallengeID); err != nil {
		slog.ErrorContext(ctx, "failed to discard undelivered challenge", "phone_number", in.PhoneNumber, "challenge_id", in.ChallengeID, "error", err)
		return goerror.NewServer(err)
	}

	s.undeliver.Add(ctx, 1)
	slog.WarnContext(ctx, "undelivered challenge discarded", "phone_number", in.PhoneNumber, "challenge_id", in.ChallengeID, "reason", in.Reason)

	return nil
}
