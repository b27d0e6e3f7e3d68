// Package sms delivers verification codes through SMS providers.
//
// Every driver returns only after the provider accepted or rejected the
// message; HTTP drivers retry transient failures until the context ends.
package sms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DriverLog    = "log"
	DriverMSG91  = "msg91"
	DriverTwilio = "twilio"
)

// DefaultMessage is the body template for providers that send free text.
const DefaultMessage = "Your verification code is %s"

var (
	// ErrRejected is returned when the provider refused the message.
	ErrRejected = errors.New("sms: provider rejected message")
	// ErrUnavailable is returned when the provider kept failing transiently.
	ErrUnavailable = errors.New("sms: provider unavailable")
)

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts int
	Base        time.Duration
}

func (rc RetryConfig) backoff() retry.Backoff {
	base := rc.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	attempts := max(rc.MaxAttempts, 1)

	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(uint64(attempts-1), b) //nolint:gosec // at least 1
}

// doWithRetry sends requests built by newReq until a non-transient outcome.
// check inspects a completed response and decides whether it was accepted.
func doWithRetry(
	ctx context.Context,
	client *http.Client,
	rc RetryConfig,
	newReq func(ctx context.Context) (*http.Request, error),
	check func(status int, body []byte) error,
) error {
	return retry.Do(ctx, rc.backoff(), func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return withoutURL(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("%w: %w", ErrUnavailable, withoutURL(err)))
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: read body: %w", ErrUnavailable, err))
		}

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
		}

		return check(resp.StatusCode, body)
	})
}

// withoutURL strips the request URL from net/http errors. Provider URLs can
// carry the code and credentials in the query string.
func withoutURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s request: %w", uerr.Op, uerr.Err)
	}
	return err
}

func startSpan(ctx context.Context, ins instrument.Instrumentation, name string) (context.Context, trace.Span) {
	return ins.Tracer("pkg.sms").Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
