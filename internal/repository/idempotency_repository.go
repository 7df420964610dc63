package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyEntry stores the serialized result of a completed command keyed
// by (command type, caller-supplied key). Entries are never mutated, only
// replaced once expired.
type IdempotencyEntry struct {
	CommandType    string
	IdempotencyKey string
	ResultPayload  []byte
	ExpiresAt      time.Time
}

// IdempotencyRepository persists command replay entries.
type IdempotencyRepository interface {
	// Get returns the stored entry, or nil when absent or expired.
	Get(ctx context.Context, commandType, key string) (*IdempotencyEntry, error)
	// Put stores a successful result with the given lifetime, replacing an
	// expired entry under the same key.
	Put(ctx context.Context, commandType, key string, payload []byte, ttl time.Duration) error
}

type idempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository instantiates repository.
func NewIdempotencyRepository(pool *pgxpool.Pool) IdempotencyRepository {
	return &idempotencyRepository{pool: pool}
}

func (r *idempotencyRepository) Get(ctx context.Context, commandType, key string) (*IdempotencyEntry, error) {
	const query = `
        SELECT command_type, idempotency_key, result_payload, expires_at
        FROM command_idempotency
        WHERE command_type=$1 AND idempotency_key=$2 AND expires_at > NOW()`
	var entry IdempotencyEntry
	var payload string
	err := querier(ctx, r.pool).QueryRow(ctx, query, commandType, key).Scan(
		&entry.CommandType,
		&entry.IdempotencyKey,
		&payload,
		&entry.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.ResultPayload = []byte(payload)
	return &entry, nil
}

func (r *idempotencyRepository) Put(ctx context.Context, commandType, key string, payload []byte, ttl time.Duration) error {
	const query = `
        INSERT INTO command_idempotency (command_type, idempotency_key, result_payload, expires_at)
        VALUES ($1, $2, $3, NOW() + $4)
        ON CONFLICT (command_type, idempotency_key)
        DO UPDATE SET result_payload=EXCLUDED.result_payload, expires_at=EXCLUDED.expires_at
        WHERE command_idempotency.expires_at <= NOW()`
	_, err := querier(ctx, r.pool).Exec(ctx, query, commandType, key, string(payload), ttl)
	return err
}
