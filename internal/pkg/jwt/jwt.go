// Package jwt mints and verifies the session token handed out once a phone
// number is verified.
package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningMethod = errors.New("jwt: unexpected signing method")
	ErrSigningKeyTooShort   = errors.New("jwt: HS512 key must be at least 64 bytes")
	ErrTokenExpired         = errors.New("jwt: token expired")
	ErrInvalidToken         = errors.New("jwt: invalid token")
)

type JWT interface {
	// Generate issues a token whose subject is the verified phone number.
	Generate(phone string) (string, error)
	Verify(token string) (Claims, error)
}

type Claims struct {
	jwt.RegisteredClaims
	PhoneNumber string `json:"phone_number"`
}

type Config struct {
	Secret    []byte
	Issuer    string
	Audiences []string

	// TTL defaults to one hour.
	TTL time.Duration

	Clock interface{ Now() time.Time }

	// UUID supplies the token id (jti).
	UUID interface{ Generate() string }
}

type authKey struct{}

// SetAuth stores the verified claims of the current request.
func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, authKey{}, clm)
}

// GetAuth returns nil on unauthenticated requests.
func GetAuth(ctx context.Context) *Claims {
	if clm, ok := ctx.Value(authKey{}).(Claims); ok {
		return &clm
	}
	return nil
}
