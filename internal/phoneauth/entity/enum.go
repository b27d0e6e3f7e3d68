package entity

// ConsumeResult is the outcome of consuming a challenge.
type ConsumeResult int8

const (
	// ConsumeNotFound mean no live challenge exists for the identity.
	ConsumeNotFound ConsumeResult = 0

	// ConsumeMatched mean the code matched and the challenge was deleted.
	ConsumeMatched ConsumeResult = 1

	// ConsumeExpired mean the challenge was past its expiry and was deleted.
	ConsumeExpired ConsumeResult = 2

	// ConsumeMismatch mean the code did not match; the challenge stays unless attempts ran out.
	ConsumeMismatch ConsumeResult = 3
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeMatched:
		return "matched"
	case ConsumeExpired:
		return "expired"
	case ConsumeMismatch:
		return "mismatch"
	default:
		return "not_found"
	}
}
