package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type RequestCodeInput struct {
	PhoneNumber string `validate:"required,phone"`
}

type RequestCodeOutput struct {
	ExpiresAt time.Time
}

// RequestCode issues a new code for the phone number, replacing any live one,
// and returns only after the notifier accepted it.
func (s *Usecase) RequestCode(ctx context.Context, in RequestCodeInput) (*RequestCodeOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestCode")
	defer span.End()

	in.PhoneNumber = s.normalizePhone(in.PhoneNumber)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewValidation("Invalid phone number", err)
	}

	limit := s.intOr("modules.phoneauth.ratelimit.identity.limit", defaultLimit)
	window := s.secondsOr("modules.phoneauth.ratelimit.identity.window_seconds", defaultWindow)
	decision, err := s.limiter.Allow(ctx, rateLimitKey(in.PhoneNumber), limit, window)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check rate limit", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}
	if !decision.Allowed {
		s.throttled.Add(ctx, 1)
		slog.WarnContext(ctx, "code request rate limited", "phone_number", in.PhoneNumber, "retry_after", decision.RetryAfter.String())
		return nil, goerror.NewTooManyRequest("Too many requests, please try again after a minute", decision.RetryAfter)
	}

	code, err := s.generator.Generate(s.intOr("modules.phoneauth.otp.length", defaultCodeLength))
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate code", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}

	codeHash, err := s.hmac.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash code", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	challenge := entity.Challenge{
		ID:          s.uid.Generate(),
		Identity:    in.PhoneNumber,
		CodeHash:    string(codeHash),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.secondsOr("modules.phoneauth.otp.ttl_seconds", defaultTTL)),
		MaxAttempts: s.cfg.GetInt("modules.phoneauth.otp.max_attempts"),
	}

	if err := s.store.Put(ctx, challenge); err != nil {
		slog.ErrorContext(ctx, "failed to store challenge", "phone_number", in.PhoneNumber, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.deliver(ctx, entity.Delivery{
		ChallengeID: challenge.ID,
		PhoneNumber: in.PhoneNumber,
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt,
	}); err != nil {
		s.undeliver.Add(ctx, 1)
		slog.ErrorContext(ctx, "failed to deliver code", "phone_number", in.PhoneNumber, "challenge_id", challenge.ID, "error", err)

		if dErr := s.store.Discard(context.WithoutCancel(ctx), in.PhoneNumber, challenge.ID); dErr != nil {
			slog.ErrorContext(ctx, "failed to discard undelivered challenge", "phone_number", in.PhoneNumber, "challenge_id", challenge.ID, "error", dErr)
		}

		return nil, goerror.NewDelivery(err)
	}

	s.issued.Add(ctx, 1)
	slog.InfoContext(ctx, "verification code issued", "phone_number", in.PhoneNumber, "challenge_id", challenge.ID, "expires_at", challenge.ExpiresAt)

	return &RequestCodeOutput{ExpiresAt: challenge.ExpiresAt}, nil
}

func (s *Usecase) deliver(ctx context.Context, d entity.Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, s.secondsOr("modules.phoneauth.notifier.timeout_seconds", defaultDeliveryTimeout))
	defer cancel()

	return s.notifier.Notify(ctx, d)
}
