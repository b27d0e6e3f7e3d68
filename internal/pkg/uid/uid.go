// Package uid generates identifiers: time-ordered UUID strings for request and
// token ids, and snowflake numbers for stored challenges.
package uid

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}

// NumberID generates numeric identifiers.
type NumberID interface {
	Generate() int64
}
