package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Conn is the subset of *pgxpool.Pool used by DB.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS otp_challenges (
	identity     TEXT PRIMARY KEY,
	id           BIGINT NOT NULL,
	code_hash    TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	attempts     INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS otp_challenges_expires_at_idx ON otp_challenges (expires_at);
`

const (
	queryUpsert = `INSERT INTO otp_challenges (identity, id, code_hash, created_at, expires_at, attempts, max_attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (identity) DO UPDATE SET
	id = EXCLUDED.id,
	code_hash = EXCLUDED.code_hash,
	created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at,
	attempts = EXCLUDED.attempts,
	max_attempts = EXCLUDED.max_attempts`

	queryLock = `SELECT id, code_hash, created_at, expires_at, attempts, max_attempts
FROM otp_challenges WHERE identity = $1 FOR UPDATE`

	queryDelete         = `DELETE FROM otp_challenges WHERE identity = $1`
	queryDeleteByID     = `DELETE FROM otp_challenges WHERE identity = $1 AND id = $2`
	queryUpdateAttempts = `UPDATE otp_challenges SET attempts = $2 WHERE identity = $1`
	queryDeleteExpired  = `DELETE FROM otp_challenges WHERE expires_at < $1`
)

type DB struct {
	conn Conn
	ins  instrument.Instrumentation
}

func NewDB(conn Conn, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, ins: ins}
}

func (s *DB) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return goerror.ErrConflict
	}

	return err
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("phoneauth.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EnsureSchema creates the challenge table and its expiry index.
func (s *DB) EnsureSchema(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "EnsureSchema")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, schema)
	return s.mapError(err)
}

// Put upserts the challenge; the primary key on identity keeps one row per phone.
func (s *DB) Put(ctx context.Context, c entity.Challenge) (err error) {
	ctx, span := s.startSpan(ctx, "Put")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, queryUpsert,
		c.Identity, c.ID, c.CodeHash, c.CreatedAt, c.ExpiresAt, c.Attempts, c.MaxAttempts)
	return s.mapError(err)
}

// Consume locks the row for the identity so concurrent verifications serialize.
func (s *DB) Consume(ctx context.Context, identity, codeHash string, now time.Time) (_ entity.ConsumeResult, err error) {
	ctx, span := s.startSpan(ctx, "Consume")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return entity.ConsumeNotFound, err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	c := entity.Challenge{Identity: identity}
	err = tx.QueryRow(ctx, queryLock, identity).
		Scan(&c.ID, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt, &c.Attempts, &c.MaxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ConsumeNotFound, nil
	}
	if err != nil {
		return entity.ConsumeNotFound, s.mapError(err)
	}

	result := entity.ConsumeMatched
	switch {
	case c.Expired(now):
		result = entity.ConsumeExpired
		_, err = tx.Exec(ctx, queryDelete, identity)

	case !c.Matches(codeHash):
		result = entity.ConsumeMismatch
		if attempts := c.Attempts + 1; c.Exhausted(attempts) {
			_, err = tx.Exec(ctx, queryDelete, identity)
		} else {
			_, err = tx.Exec(ctx, queryUpdateAttempts, identity, attempts)
		}

	default:
		_, err = tx.Exec(ctx, queryDelete, identity)
	}
	if err != nil {
		return entity.ConsumeNotFound, s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return entity.ConsumeNotFound, s.mapError(err)
	}

	return result, nil
}

// Discard deletes the challenge only while it still carries id.
func (s *DB) Discard(ctx context.Context, identity string, id int64) (err error) {
	ctx, span := s.startSpan(ctx, "Discard")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, queryDeleteByID, identity, id)
	return s.mapError(err)
}

// DeleteExpired removes rows whose expiry is before now.
func (s *DB) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpired")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, queryDeleteExpired, now)
	if err != nil {
		return 0, s.mapError(err)
	}

	return tag.RowsAffected(), nil
}
