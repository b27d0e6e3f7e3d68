package entity

import "time"

// Delivery is a plain code on its way to the phone that owns the challenge.
type Delivery struct {
	ChallengeID int64
	PhoneNumber string
	Code        string
	ExpiresAt   time.Time
}
