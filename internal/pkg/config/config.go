// Package config exposes typed, read-at-call-time access to service settings.
//
// Durations are stored as plain integers and scaled by the getter, so
// "ttl_seconds: 600" is read with GetSecond and yields 10 minutes.
package config

import (
	"io"
	"time"
)

// Config reads configuration values by dotted key. Missing keys yield zero values.
type Config interface {
	io.Closer

	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetInt32(key string) int32
	GetInt64(key string) int64
	GetFloat64(key string) float64

	// GetSecond scales an integer value to seconds.
	GetSecond(key string) time.Duration
	// GetMinute scales an integer value to minutes.
	GetMinute(key string) time.Duration

	// GetArray accepts either a list or a comma separated string.
	// Blank elements are dropped.
	GetArray(key string) []string
}
