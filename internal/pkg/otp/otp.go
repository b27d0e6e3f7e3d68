package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// MinLength is the shortest code accepted by Generate.
	MinLength = 4
	// MaxLength is the longest code accepted by Generate.
	MaxLength = 10

	// bytes >= sampleLimit are rejected so that byte % 10 stays uniform.
	sampleLimit = 250
)

var (
	// ErrInvalidLength is returned for lengths outside MinLength..MaxLength.
	ErrInvalidLength = errors.New("otp: invalid code length")
	// ErrEntropy is returned when the random source fails.
	ErrEntropy = errors.New("otp: entropy source failure")
)

// Generator produces fixed-length numeric codes.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorFromReader returns a Generator reading from r.
//
// Only tests should pass anything other than crypto/rand.Reader.
func NewGeneratorFromReader(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate returns a code of exactly length decimal digits.
func (g *Generator) Generate(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}

	code := make([]byte, 0, length)
	buf := make([]byte, length+4)

	for len(code) < length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("%w: %w", ErrEntropy, err)
		}

		for _, b := range buf {
			if b >= sampleLimit {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == length {
				break
			}
		}
	}

	return string(code), nil
}
