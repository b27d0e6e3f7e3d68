package entity

import (
	"crypto/subtle"
	"time"
)

// Challenge is one outstanding code bound to a phone number.
// At most one live Challenge exists per Identity.
type Challenge struct {
	ID          int64
	Identity    string
	CodeHash    string // HMAC digest, never the plain code
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int // 0 means unlimited
}

// Expired reports whether the challenge is no longer valid at now.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Matches compares the digest of a claimed code in constant time.
func (c Challenge) Matches(codeHash string) bool {
	return subtle.ConstantTimeCompare([]byte(c.CodeHash), []byte(codeHash)) == 1
}

// Exhausted reports whether a failed attempt count has reached the cap.
func (c Challenge) Exhausted(attempts int) bool {
	return c.MaxAttempts > 0 && attempts >= c.MaxAttempts
}

// Session describes a verified bearer credential.
type Session struct {
	PhoneNumber string
	ExpiresAt   time.Time
}
