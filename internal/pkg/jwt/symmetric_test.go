package jwt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

type stubUUID struct{}

func (stubUUID) Generate() string { return "0190b7a4-0000-7000-8000-000000000001" }

var testSecret = []byte(strings.Repeat("k", 64))

func TestSymmetric_GenerateVerify(t *testing.T) {
	clk := &stubClock{now: time.Now().Truncate(time.Second)}
	j, err := NewHS512(Config{
		Secret:    testSecret,
		Issuer:    "otpgate",
		Audiences: []string{"otpgate-app"},
		Clock:     clk,
		UUID:      stubUUID{},
	})
	require.NoError(t, err)

	token, err := j.Generate("9876543210")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", claims.PhoneNumber)
	assert.Equal(t, "9876543210", claims.Subject)
	assert.WithinDuration(t, clk.now.Add(time.Hour), claims.ExpiresAt.Time, time.Second)

	clk.now = clk.now.Add(2 * time.Hour)
	_, err = j.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSymmetric_RejectsForeignSecret(t *testing.T) {
	clk := &stubClock{now: time.Now()}
	a, err := NewHS512(Config{Secret: testSecret, Issuer: "otpgate", Clock: clk, UUID: stubUUID{}})
	require.NoError(t, err)
	b, err := NewHS512(Config{Secret: []byte(strings.Repeat("x", 64)), Issuer: "otpgate", Clock: clk, UUID: stubUUID{}})
	require.NoError(t, err)

	token, err := a.Generate("9876543210")
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.Error(t, err)
}

func TestNewHS512_ShortSecret(t *testing.T) {
	_, err := NewHS512(Config{Secret: []byte("short")})
	assert.ErrorIs(t, err, ErrSigningKeyTooShort)
}

func TestAuthContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetAuth(ctx))

	ctx = SetAuth(ctx, Claims{PhoneNumber: "9876543210"})
	require.NotNil(t, GetAuth(ctx))
	assert.Equal(t, "9876543210", GetAuth(ctx).PhoneNumber)
}
