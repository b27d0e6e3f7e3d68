// Package goerror carries caller-facing failures from the usecases to the
// transports. Each error pairs a message that is safe to show with a Code
// that decides the HTTP status; the wrapped cause is only ever logged.
package goerror

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned by stores when a write loses a race.
	ErrConflict = errors.New("resource conflict")
)

type Code int

const (
	CodeInternal Code = iota
	CodeInvalidFormat
	CodeInvalidInput
	CodeUnauthorized
	CodeTooManyRequest
	// CodeInvalidCode covers both an unknown challenge and a wrong code.
	CodeInvalidCode
	CodeExpiredCode
	CodeDeliveryFailed
)

var codes = map[Code]struct {
	name   string
	status int
}{
	CodeInternal:       {"INTERNAL", http.StatusInternalServerError},
	CodeInvalidFormat:  {"INVALID_FORMAT", http.StatusBadRequest},
	CodeInvalidInput:   {"INVALID_INPUT", http.StatusBadRequest},
	CodeUnauthorized:   {"UNAUTHORIZED", http.StatusUnauthorized},
	CodeTooManyRequest: {"TOO_MANY_REQUESTS", http.StatusTooManyRequests},
	CodeInvalidCode:    {"INVALID_CODE", http.StatusBadRequest},
	CodeExpiredCode:    {"EXPIRED_CODE", http.StatusBadRequest},
	CodeDeliveryFailed: {"DELIVERY_FAILED", http.StatusInternalServerError},
}

func (c Code) String() string {
	if v, ok := codes[c]; ok {
		return "ERROR_CODE_" + v.name
	}
	return "ERROR_CODE_INTERNAL"
}

// StatusCode is the HTTP status a response carrying c should use.
func (c Code) StatusCode() int {
	if v, ok := codes[c]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}

type Error struct {
	err        error
	msg        string
	code       Code
	retryAfter time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.err != nil:
		return e.err.Error()
	case e.msg != "":
		return e.msg
	default:
		return e.code.String()
	}
}

// Msg is the message rendered to the caller.
func (e *Error) Msg() string { return e.msg }

func (e *Error) Code() Code { return e.code }

func (e *Error) StatusCode() int { return e.code.StatusCode() }

// RetryAfter is non-zero only for rate limited requests.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

func (e *Error) Unwrap() error { return e.err }

// NewServer hides err behind a generic message.
func NewServer(err error) error {
	return &Error{err: err, msg: "Internal server error", code: CodeInternal}
}

// NewDelivery reports that a code was generated but could not be sent.
func NewDelivery(err error) error {
	return &Error{err: err, msg: "Failed to send verification code", code: CodeDeliveryFailed}
}

func NewBusiness(msg string, code Code) error {
	return &Error{msg: msg, code: code}
}

func NewTooManyRequest(msg string, retryAfter time.Duration) error {
	return &Error{msg: msg, code: CodeTooManyRequest, retryAfter: retryAfter}
}

// NewValidation wraps the validator's err so field details can be rendered.
func NewValidation(msg string, err error) error {
	return &Error{err: err, msg: msg, code: CodeInvalidInput}
}

// NewInvalidFormat is used when the request body cannot be decoded.
func NewInvalidFormat(msgs ...string) error {
	msg := "Invalid request body"
	if len(msgs) > 0 {
		msg = msgs[0]
	}
	return &Error{msg: msg, code: CodeInvalidFormat}
}
