package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
)

// safeCall runs a handler and turns a panic into an error.
func safeCall(ctx context.Context, kind string, handler Handler, msg Message) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			slog.ErrorContext(ctx, "panic in messaging handler",
				"kind", kind, "topic", msg.Topic(), "panic", rvr, "stack", stacktrace.InternalPaths(debug.Stack()))
			err = fmt.Errorf("messaging: panic in %s handler: %v", kind, rvr)
		}
	}()

	return handler(ctx, msg)
}

// deliverWithRetry is used by brokers without native redelivery. It calls
// handler up to attempts times with exponential backoff and returns the last
// error.
func deliverWithRetry(ctx context.Context, kind string, handler Handler, msg Message, attempts int, backoff time.Duration) error {
	b := retry.WithMaxRetries(uint64(max(attempts-1, 0)), retry.NewExponential(backoff)) //nolint:gosec // non-negative

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := safeCall(ctx, kind, handler, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// closeGroup tracks what a client opened so Close can release all of it and
// refuse anything opened afterwards.
type closeGroup struct {
	mu     sync.Mutex
	closed bool
	seq    int
	stops  map[int]func() error
}

// add registers stop. The returned func unregisters it without calling it.
func (g *closeGroup) add(stop func() error) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, io.ErrClosedPipe
	}
	if g.stops == nil {
		g.stops = map[int]func() error{}
	}

	g.seq++
	id := g.seq
	g.stops[id] = stop

	return func() {
		g.mu.Lock()
		delete(g.stops, id)
		g.mu.Unlock()
	}, nil
}

func (g *closeGroup) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// close runs every registered stop once. Later calls report false.
func (g *closeGroup) close() (bool, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false, nil
	}
	g.closed = true
	stops := g.stops
	g.stops = nil
	g.mu.Unlock()

	var errs []error
	for _, stop := range stops {
		errs = append(errs, stop())
	}
	return true, errors.Join(errs...)
}

func logDropped(ctx context.Context, kind, topic string, err error, attrs ...any) {
	slog.ErrorContext(ctx, "message dropped after retries", append([]any{"kind", kind, "topic", topic, "error", err}, attrs...)...)
}
