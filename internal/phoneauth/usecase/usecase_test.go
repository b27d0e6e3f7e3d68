package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/outbound/memory"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const phone = "9876543210"

type sent struct {
	phone    string
	code     string
	delivery entity.Delivery
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sent
	err   error
	block bool
}

func (n *fakeNotifier) Notify(ctx context.Context, d entity.Delivery) error {
	if n.block {
		<-ctx.Done()
		return ctx.Err()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sent{phone: d.PhoneNumber, code: d.Code, delivery: d})
	return nil
}

func (n *fakeNotifier) codes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.code)
	}
	return out
}

func (n *fakeNotifier) last() sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sent{}
	}
	return n.sent[len(n.sent)-1]
}

// seqGenerator hands out "000001", "000002", ... so every code is distinct.
type seqGenerator struct {
	n atomic.Int64
}

func (g *seqGenerator) Generate(length int) (string, error) {
	return fmt.Sprintf("%0*d", length, g.n.Add(1)), nil
}

type failingStore struct {
	*memory.Store
	putErr error
}

func (s *failingStore) Put(ctx context.Context, c entity.Challenge) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, c)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

type testEnv struct {
	uc       *Usecase
	clock    *clock.Manual
	store    *memory.Store
	notifier *fakeNotifier
	jwt      jwt.JWT
}

type envOption func(*Dependency)

func newTestEnv(t *testing.T, yaml string, opts ...envOption) *testEnv {
	t.Helper()

	if yaml == "" {
		yaml = defaultYAML(3, 0, 5)
	}
	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	clk := clock.NewManual(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	ins := instrument.NewNoop()
	store := memory.NewStore(8, ins)
	notif := &fakeNotifier{}

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	node, err := uid.NewSnowflakeNode(1)
	require.NoError(t, err)

	issuer, err := jwt.NewHS512(jwt.Config{
		Secret: []byte(strings.Repeat("s", 64)),
		Issuer: "otpgate",
		TTL:    time.Hour,
		Clock:  clk,
		UUID:   uid.NewUUID(),
	})
	require.NoError(t, err)

	dep := Dependency{
		Store:      store,
		Limiter:    ratelimit.NewMemory(clk, 4),
		Notifier:   notif,
		Generator:  &seqGenerator{},
		HMAC:       hash.NewHMACSHA256("pepper"),
		JWT:        issuer,
		UID:        node,
		Clock:      clk,
		Config:     cfg,
		Validator:  v,
		Instrument: ins,
	}
	for _, opt := range opts {
		opt(&dep)
	}

	return &testEnv{uc: New(dep), clock: clk, store: store, notifier: notif, jwt: issuer}
}

func defaultYAML(limit, maxAttempts, timeoutSeconds int) string {
	return fmt.Sprintf(`
modules:
  phoneauth:
    otp:
      length: 6
      ttl_seconds: 600
      max_attempts: %d
    phone:
      country_prefix: "91"
    ratelimit:
      identity:
        limit: %d
        window_seconds: 60
    notifier:
      timeout_seconds: %d
`, maxAttempts, limit, timeoutSeconds)
}

func assertCode(t *testing.T, err error, code goerror.Code, status int) {
	t.Helper()

	var gerr *goerror.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, code, gerr.Code())
	assert.Equal(t, status, gerr.StatusCode())
}

func (e *testEnv) request(t *testing.T, phone string) string {
	t.Helper()

	_, err := e.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
	require.NoError(t, err)
	return e.notifier.last().code
}

func TestEndToEnd_RealGenerator(t *testing.T) {
	env := newTestEnv(t, "", func(d *Dependency) { d.Generator = otp.NewGenerator() })
	ctx := context.Background()

	out, err := env.uc.RequestCode(ctx, RequestCodeInput{PhoneNumber: phone})
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(10*time.Minute), out.ExpiresAt)

	got := env.notifier.last()
	assert.Equal(t, phone, got.phone)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), got.code)

	wrong := "000000"
	if got.code == wrong {
		wrong = "111111"
	}
	_, err = env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: wrong})
	assertCode(t, err, goerror.CodeInvalidCode, 400)

	res, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: got.code})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	claims, err := env.jwt.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, phone, claims.PhoneNumber)
}

func TestRequestCode_SupersedesPrevious(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	first := env.request(t, phone)
	second := env.request(t, phone)
	require.NotEqual(t, first, second)
	assert.Equal(t, 1, env.store.Len())

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: first})
	assertCode(t, err, goerror.CodeInvalidCode, 400)

	_, err = env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: second})
	assert.NoError(t, err)
}

func TestVerifyCode_SingleUse(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	code := env.request(t, phone)

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	require.NoError(t, err)

	_, err = env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	assertCode(t, err, goerror.CodeInvalidCode, 400)
}

func TestVerifyCode_ExpiredIsRemoved(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	code := env.request(t, phone)
	env.clock.Advance(10*time.Minute + time.Second)

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	assertCode(t, err, goerror.CodeExpiredCode, 400)
	assert.Equal(t, 0, env.store.Len())

	_, err = env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	assertCode(t, err, goerror.CodeInvalidCode, 400)
}

func TestVerifyCode_WrongThenRight(t *testing.T) {
	env := newTestEnv(t, defaultYAML(3, 5, 5))
	ctx := context.Background()

	code := env.request(t, phone)

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: "999999"})
	assertCode(t, err, goerror.CodeInvalidCode, 400)
	assert.Equal(t, 1, env.store.Len())

	_, err = env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	assert.NoError(t, err)
}

func TestVerifyCode_AttemptCap(t *testing.T) {
	env := newTestEnv(t, defaultYAML(3, 2, 5))
	ctx := context.Background()

	code := env.request(t, phone)
	for range 2 {
		_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: "999999"})
		assertCode(t, err, goerror.CodeInvalidCode, 400)
	}

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	assertCode(t, err, goerror.CodeInvalidCode, 400)
}

func TestVerifyCode_MissingFields(t *testing.T) {
	env := newTestEnv(t, "")

	for _, in := range []VerifyCodeInput{{PhoneNumber: phone}, {Code: "123456"}, {}} {
		_, err := env.uc.VerifyCode(context.Background(), in)
		assertCode(t, err, goerror.CodeInvalidInput, 400)

		var gerr *goerror.Error
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, "Phone number and OTP are required", gerr.Msg())
	}
}

func TestRequestCode_RateLimit(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	var last string
	for range 3 {
		last = env.request(t, phone)
	}

	_, err := env.uc.RequestCode(ctx, RequestCodeInput{PhoneNumber: phone})
	assertCode(t, err, goerror.CodeTooManyRequest, 429)

	var gerr *goerror.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, time.Minute, gerr.RetryAfter())
	assert.Len(t, env.notifier.codes(), 3)

	_, err = env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: last})
	assert.NoError(t, err, "rejected request must not replace the live challenge")

	env.request(t, "9123456780")

	env.clock.Advance(time.Minute)
	env.request(t, phone)
}

func TestRequestCode_Validation(t *testing.T) {
	env := newTestEnv(t, "")

	for _, p := range []string{"", "12345", "5876543210", "98765432100", "abcdefghij"} {
		_, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: p})
		assertCode(t, err, goerror.CodeInvalidInput, 400)
	}
	assert.Empty(t, env.notifier.codes())
	assert.Equal(t, 0, env.store.Len())
}

func TestRequestCode_NormalizesPhone(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	code := env.request(t, "+91 (98765) 43-210")
	assert.Equal(t, phone, env.notifier.last().phone)

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: "919876543210", Code: code})
	assert.NoError(t, err)
}

func TestRequestCode_NormalizesWithConfiguredPattern(t *testing.T) {
	v, err := validator.NewV10Validator(validator.WithPhonePattern(`^[89]\d{7}$`))
	require.NoError(t, err)

	yaml := strings.Replace(defaultYAML(3, 0, 5), `country_prefix: "91"`, `country_prefix: "65"`, 1)
	env := newTestEnv(t, yaml, func(d *Dependency) { d.Validator = v })

	env.request(t, "+65 9123 4567")
	assert.Equal(t, "91234567", env.notifier.last().phone)

	env.request(t, "8765 4321")
	assert.Equal(t, "87654321", env.notifier.last().phone)
}

func TestRequestCode_KeepsNumberStartingWithPrefix(t *testing.T) {
	env := newTestEnv(t, "")

	env.request(t, "9123456789")
	assert.Equal(t, "9123456789", env.notifier.last().phone)
}

func TestRequestCode_DeliveryFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, "")
	env.notifier.err = errors.New("provider down")

	_, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
	assertCode(t, err, goerror.CodeDeliveryFailed, 500)
	assert.Equal(t, 0, env.store.Len())

	_, err = env.uc.VerifyCode(context.Background(), VerifyCodeInput{PhoneNumber: phone, Code: "000001"})
	assertCode(t, err, goerror.CodeInvalidCode, 400)
}

func TestRequestCode_DeliveryCarriesChallenge(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
	require.NoError(t, err)

	d := env.notifier.last().delivery
	assert.NotZero(t, d.ChallengeID)
	assert.Equal(t, phone, d.PhoneNumber)
	assert.Equal(t, out.ExpiresAt, d.ExpiresAt)
}

func TestDiscardUndelivered(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	env.request(t, phone)
	stale := env.notifier.last().delivery

	code := env.request(t, phone)
	live := env.notifier.last().delivery
	require.NotEqual(t, stale.ChallengeID, live.ChallengeID)

	require.NoError(t, env.uc.DiscardUndelivered(ctx, DiscardUndeliveredInput{ChallengeID: stale.ChallengeID, PhoneNumber: phone}))
	assert.Equal(t, 1, env.store.Len())

	require.NoError(t, env.uc.DiscardUndelivered(ctx, DiscardUndeliveredInput{ChallengeID: live.ChallengeID, PhoneNumber: phone, Reason: "rejected"}))
	assert.Equal(t, 0, env.store.Len())

	_, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code})
	assertCode(t, err, goerror.CodeInvalidCode, 400)

	err = env.uc.DiscardUndelivered(ctx, DiscardUndeliveredInput{PhoneNumber: phone})
	assertCode(t, err, goerror.CodeInvalidInput, 400)
}

func TestRequestCode_DeliveryTimeout(t *testing.T) {
	env := newTestEnv(t, defaultYAML(3, 0, 1))
	env.notifier.block = true

	start := time.Now()
	_, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
	assertCode(t, err, goerror.CodeDeliveryFailed, 500)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, env.store.Len())
}

func TestRequestCode_EntropyFailure(t *testing.T) {
	env := newTestEnv(t, "", func(d *Dependency) {
		d.Generator = otp.NewGeneratorFromReader(iotest.ErrReader(errors.New("entropy exhausted")))
	})

	_, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
	assertCode(t, err, goerror.CodeInternal, 500)
	assert.ErrorIs(t, err, otp.ErrEntropy)
	assert.Empty(t, env.notifier.codes())
	assert.Equal(t, 0, env.store.Len())
}

func TestRequestCode_InfrastructureErrors(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		env := newTestEnv(t, "", func(d *Dependency) {
			d.Store = &failingStore{Store: memory.NewStore(1, instrument.NewNoop()), putErr: errors.New("disk full")}
		})

		_, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
		assertCode(t, err, goerror.CodeInternal, 500)

		var gerr *goerror.Error
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, "Internal server error", gerr.Msg())
		assert.Empty(t, env.notifier.codes())
	})

	t.Run("limiter", func(t *testing.T) {
		env := newTestEnv(t, "", func(d *Dependency) { d.Limiter = failingLimiter{} })

		_, err := env.uc.RequestCode(context.Background(), RequestCodeInput{PhoneNumber: phone})
		assertCode(t, err, goerror.CodeInternal, 500)
		assert.Empty(t, env.notifier.codes())
	})
}

func TestConcurrentRequestsAndVerifications(t *testing.T) {
	env := newTestEnv(t, defaultYAML(1000, 0, 5))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			_, err := env.uc.RequestCode(ctx, RequestCodeInput{PhoneNumber: phone})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, 1, env.store.Len())
	codes := env.notifier.codes()
	require.Len(t, codes, n)

	var matched atomic.Int32
	for _, code := range codes {
		for range 3 {
			wg.Go(func() {
				if _, err := env.uc.VerifyCode(ctx, VerifyCodeInput{PhoneNumber: phone, Code: code}); err == nil {
					matched.Add(1)
				}
			})
		}
	}
	wg.Wait()

	assert.Equal(t, int32(1), matched.Load())
	assert.Equal(t, 0, env.store.Len())
}

func TestSession(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.uc.Session(context.Background())
	assertCode(t, err, goerror.CodeUnauthorized, 401)

	code := env.request(t, phone)
	res, err := env.uc.VerifyCode(context.Background(), VerifyCodeInput{PhoneNumber: phone, Code: code})
	require.NoError(t, err)

	claims, err := env.jwt.Verify(res.Token)
	require.NoError(t, err)

	sess, err := env.uc.Session(jwt.SetAuth(context.Background(), claims))
	require.NoError(t, err)
	assert.Equal(t, phone, sess.PhoneNumber)
	assert.Equal(t, env.clock.Now().Add(time.Hour).Unix(), sess.ExpiresAt.Unix())
}
