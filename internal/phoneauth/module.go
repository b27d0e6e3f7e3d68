package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/inbound"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/outbound/cache"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/outbound/db"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/outbound/memory"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/outbound/mq"
	phonesms "github.com/shandysiswandi/otpgate/internal/phoneauth/outbound/sms"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/sms"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

const (
	DriverMemory    = "memory"
	DriverRedis     = "redis"
	DriverPostgres  = "postgres"
	DriverMessaging = "messaging"

	defaultSweepInterval = time.Minute
)

var (
	// ErrUnknownDriver is returned for an unsupported store, rate limit or notifier driver.
	ErrUnknownDriver = errors.New("phoneauth: unknown driver")
	// ErrDriverUnavailable is returned when a driver's backing connection is not configured.
	ErrDriverUnavailable = errors.New("phoneauth: driver connection is not configured")
)

type notifier interface {
	Notify(ctx context.Context, d entity.Delivery) error
}

type store interface {
	Put(ctx context.Context, c entity.Challenge) error
	Consume(ctx context.Context, identity, codeHash string, now time.Time) (entity.ConsumeResult, error)
	Discard(ctx context.Context, identity string, id int64) error
}

// Dependency wires the phone verification module. DBConn, CacheConn and
// Messaging are only required by the drivers that use them.
type Dependency struct {
	Ctx        context.Context
	DBConn     *pgxpool.Pool
	CacheConn  *redis.Client
	Messaging  messaging.Messaging
	HTTPClient *http.Client

	Goroutine  *goroutine.Manager         `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	HMAC       hash.Hash                  `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	JWT        jwt.JWT                    `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	repoStore, err := newStore(dep)
	if err != nil {
		return err
	}

	limiter, err := newLimiter(dep)
	if err != nil {
		return err
	}

	notifier, err := newNotifier(dep)
	if err != nil {
		return err
	}

	uc := usecase.New(usecase.Dependency{
		Store:      repoStore,
		Limiter:    limiter,
		Notifier:   notifier,
		Generator:  otp.NewGenerator(),
		HMAC:       dep.HMAC,
		JWT:        dep.JWT,
		UID:        dep.UID,
		Clock:      dep.Clock,
		Config:     dep.Config,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc, inbound.IPThrottle(limiter, dep.Config))

	if _, async := notifier.(*mq.Messaging); async && dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Goroutine, dep.Messaging, uc, dep.Instrument)
	}

	return nil
}

func newStore(dep Dependency) (store, error) {
	driver := strings.TrimSpace(dep.Config.GetString("modules.phoneauth.store.driver"))

	switch driver {
	case DriverMemory, "":
		s := memory.NewStore(dep.Config.GetInt("modules.phoneauth.store.shards"), dep.Instrument)
		startSweeper(dep, "otp challenges", func(_ context.Context, now time.Time) (int64, error) {
			return int64(s.Sweep(now)), nil
		})
		return s, nil

	case DriverRedis:
		if dep.CacheConn == nil {
			return nil, fmt.Errorf("%w: store %q", ErrDriverUnavailable, driver)
		}
		return cache.NewCache(dep.CacheConn, dep.Config.GetSecond("modules.phoneauth.store.retention_seconds"), dep.Instrument), nil

	case DriverPostgres:
		if dep.DBConn == nil {
			return nil, fmt.Errorf("%w: store %q", ErrDriverUnavailable, driver)
		}
		s := db.NewDB(dep.DBConn, dep.Instrument)
		if err := s.EnsureSchema(contextOrBackground(dep.Ctx)); err != nil {
			return nil, fmt.Errorf("ensure otp schema: %w", err)
		}
		startSweeper(dep, "otp challenges", s.DeleteExpired)
		return s, nil

	default:
		return nil, fmt.Errorf("%w: store %q", ErrUnknownDriver, driver)
	}
}

func newLimiter(dep Dependency) (ratelimit.Limiter, error) {
	driver := strings.TrimSpace(dep.Config.GetString("modules.phoneauth.ratelimit.driver"))

	switch driver {
	case DriverMemory, "":
		l := ratelimit.NewMemory(dep.Clock, dep.Config.GetInt("modules.phoneauth.store.shards"))
		startSweeper(dep, "rate limit windows", func(_ context.Context, now time.Time) (int64, error) {
			return int64(l.Sweep(now)), nil
		})
		return l, nil

	case DriverRedis:
		if dep.CacheConn == nil {
			return nil, fmt.Errorf("%w: rate limit %q", ErrDriverUnavailable, driver)
		}
		return ratelimit.NewRedis(dep.CacheConn), nil

	default:
		return nil, fmt.Errorf("%w: rate limit %q", ErrUnknownDriver, driver)
	}
}

func newNotifier(dep Dependency) (notifier, error) {
	driver := strings.TrimSpace(dep.Config.GetString("modules.phoneauth.notifier.driver"))

	if driver == DriverMessaging {
		if dep.Messaging == nil {
			return nil, fmt.Errorf("%w: notifier %q", ErrDriverUnavailable, driver)
		}
		return mq.NewMessaging(dep.Messaging, dep.Instrument), nil
	}

	if driver == "" {
		driver = sms.DriverLog
	}

	n, err := sms.NewFromDriver(driver, dep.HTTPClient, sms.OptionsFromConfig(dep.Config), dep.Instrument)
	if err != nil {
		return nil, fmt.Errorf("%w: notifier %q", ErrUnknownDriver, driver)
	}

	return phonesms.New(n), nil
}

// startSweeper periodically removes expired state until dep.Ctx is done.
func startSweeper(dep Dependency, what string, sweep func(ctx context.Context, now time.Time) (int64, error)) {
	if dep.Ctx == nil {
		return
	}

	every := dep.Config.GetSecond("modules.phoneauth.store.sweep_interval_seconds")
	if every <= 0 {
		every = defaultSweepInterval
	}

	dep.Goroutine.Go(dep.Ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				removed, err := sweep(ctx, dep.Clock.Now())
				if err != nil {
					slog.ErrorContext(ctx, "failed to sweep expired "+what, "error", err)
					continue
				}
				if removed > 0 {
					slog.DebugContext(ctx, "swept expired "+what, "removed", removed)
				}
			}
		}
	})
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
