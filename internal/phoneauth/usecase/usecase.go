package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCodeLength      = 6
	defaultTTL             = 10 * time.Minute
	defaultLimit           = 3
	defaultWindow          = time.Minute
	defaultDeliveryTimeout = 10 * time.Second
)

type repoStore interface {
	Put(ctx context.Context, c entity.Challenge) error
	Consume(ctx context.Context, identity, codeHash string, now time.Time) (entity.ConsumeResult, error)
	Discard(ctx context.Context, identity string, id int64) error
}

type notifier interface {
	Notify(ctx context.Context, d entity.Delivery) error
}

type codeGenerator interface {
	Generate(length int) (string, error)
}

type Usecase struct {
	store     repoStore
	limiter   ratelimit.Limiter
	notifier  notifier
	generator codeGenerator
	hmac      hash.Hash
	jwt       jwt.JWT
	uid       uid.NumberID
	clock     clock.Clocker
	cfg       config.Config
	validator validator.Validator
	ins       instrument.Instrumentation

	issued    metric.Int64Counter
	verified  metric.Int64Counter
	throttled metric.Int64Counter
	undeliver metric.Int64Counter
}

type Dependency struct {
	Store      repoStore
	Limiter    ratelimit.Limiter
	Notifier   notifier
	Generator  codeGenerator
	HMAC       hash.Hash
	JWT        jwt.JWT
	UID        uid.NumberID
	Clock      clock.Clocker
	Config     config.Config
	Validator  validator.Validator
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	meter := dep.Instrument.Meter("phoneauth.usecase")

	issued, err := meter.Int64Counter("phoneauth.codes.issued", metric.WithDescription("Verification codes stored and delivered"))
	if err != nil {
		slog.Error("failed to create codes issued counter", "error", err)
	}
	verified, err := meter.Int64Counter("phoneauth.codes.verified", metric.WithDescription("Verification attempts by outcome"))
	if err != nil {
		slog.Error("failed to create codes verified counter", "error", err)
	}
	throttled, err := meter.Int64Counter("phoneauth.ratelimit.rejected", metric.WithDescription("Code requests rejected by the rate limiter"))
	if err != nil {
		slog.Error("failed to create rate limit counter", "error", err)
	}
	undeliver, err := meter.Int64Counter("phoneauth.delivery.failed", metric.WithDescription("Codes that could not be delivered"))
	if err != nil {
		slog.Error("failed to create delivery failed counter", "error", err)
	}

	return &Usecase{
		store:     dep.Store,
		limiter:   dep.Limiter,
		notifier:  dep.Notifier,
		generator: dep.Generator,
		hmac:      dep.HMAC,
		jwt:       dep.JWT,
		uid:       dep.UID,
		clock:     dep.Clock,
		cfg:       dep.Config,
		validator: dep.Validator,
		ins:       dep.Instrument,
		issued:    issued,
		verified:  verified,
		throttled: throttled,
		undeliver: undeliver,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("phoneauth.usecase").Start(ctx, name)
}

func (s *Usecase) intOr(key string, def int) int {
	if v := s.cfg.GetInt(key); v > 0 {
		return v
	}
	return def
}

func (s *Usecase) secondsOr(key string, def time.Duration) time.Duration {
	if v := s.cfg.GetSecond(key); v > 0 {
		return v
	}
	return def
}

// normalizePhone strips formatting. The country prefix is dropped only when
// the full number fails the phone rule and the remainder passes it.
func (s *Usecase) normalizePhone(raw string) string {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")

	prefix := s.cfg.GetString("modules.phoneauth.phone.country_prefix")
	if prefix == "" || !strings.HasPrefix(phone, prefix) || s.validPhone(phone) {
		return phone
	}

	if local := phone[len(prefix):]; s.validPhone(local) {
		return local
	}

	return phone
}

func (s *Usecase) validPhone(phone string) bool {
	return s.validator.Validate(RequestCodeInput{PhoneNumber: phone}) == nil
}

func rateLimitKey(phone string) string {
	return "phone:" + phone
}
