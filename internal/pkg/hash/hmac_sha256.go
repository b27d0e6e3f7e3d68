package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACSHA256 keys digests with a server secret so a leaked store cannot be
// brute forced offline over the small code space.
type HMACSHA256 struct {
	key []byte
}

func NewHMACSHA256(secret string) *HMACSHA256 {
	return &HMACSHA256{key: []byte(secret)}
}

// Hash returns the lowercase hex digest of str.
func (h *HMACSHA256) Hash(str string) ([]byte, error) {
	mac := hmac.New(sha256.New, h.key)
	if _, err := mac.Write([]byte(str)); err != nil {
		return nil, err
	}
	return hex.AppendEncode(nil, mac.Sum(nil)), nil
}

// Verify compares in constant time.
func (h *HMACSHA256) Verify(hashed, str string) bool {
	sum, err := h.Hash(str)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(hashed), sum)
}
