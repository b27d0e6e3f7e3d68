package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "otp:challenge:"

// DefaultRetention keeps an expired challenge long enough to report it as expired.
const DefaultRetention = 5 * time.Minute

// consumeScript returns 0 not found, 1 matched, 2 expired, 3 mismatch.
var consumeScript = redis.NewScript(`
local vals = redis.call("HMGET", KEYS[1], "code_hash", "expires_at", "max_attempts")
if not vals[1] then
	return 0
end
if tonumber(ARGV[1]) > tonumber(vals[2]) then
	redis.call("DEL", KEYS[1])
	return 2
end
if vals[1] ~= ARGV[2] then
	local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
	local max = tonumber(vals[3]) or 0
	if max > 0 and attempts >= max then
		redis.call("DEL", KEYS[1])
	end
	return 3
end
redis.call("DEL", KEYS[1])
return 1
`)

var discardScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "id") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Cache struct {
	client    redis.Cmdable
	retention time.Duration
	ins       instrument.Instrumentation
}

func NewCache(client redis.Cmdable, retention time.Duration, ins instrument.Instrumentation) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Cache{client: client, retention: retention, ins: ins}
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("phoneauth.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Put replaces the challenge in a MULTI/EXEC block so readers never see a partial record.
func (c *Cache) Put(ctx context.Context, ch entity.Challenge) (err error) {
	ctx, span := c.startSpan(ctx, "Put")
	defer func() { c.endSpan(span, err) }()

	key := keyPrefix + ch.Identity
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"id", strconv.FormatInt(ch.ID, 10),
			"code_hash", ch.CodeHash,
			"created_at", ch.CreatedAt.UnixMilli(),
			"expires_at", ch.ExpiresAt.UnixMilli(),
			"attempts", ch.Attempts,
			"max_attempts", ch.MaxAttempts,
		)
		pipe.PExpireAt(ctx, key, ch.ExpiresAt.Add(c.retention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: put challenge: %w", err)
	}

	return nil
}

func (c *Cache) Consume(ctx context.Context, identity, codeHash string, now time.Time) (_ entity.ConsumeResult, err error) {
	ctx, span := c.startSpan(ctx, "Consume")
	defer func() { c.endSpan(span, err) }()

	res, err := consumeScript.Run(ctx, c.client, []string{keyPrefix + identity}, now.UnixMilli(), codeHash).Int64()
	if err != nil {
		return entity.ConsumeNotFound, fmt.Errorf("cache: consume challenge: %w", err)
	}

	switch res {
	case 1:
		return entity.ConsumeMatched, nil
	case 2:
		return entity.ConsumeExpired, nil
	case 3:
		return entity.ConsumeMismatch, nil
	default:
		return entity.ConsumeNotFound, nil
	}
}

func (c *Cache) Discard(ctx context.Context, identity string, id int64) (err error) {
	ctx, span := c.startSpan(ctx, "Discard")
	defer func() { c.endSpan(span, err) }()

	err = discardScript.Run(ctx, c.client, []string{keyPrefix + identity}, strconv.FormatInt(id, 10)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: discard challenge: %w", err)
	}

	return nil
}
