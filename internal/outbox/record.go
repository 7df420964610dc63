package outbox

import (
	"context"
	"time"
)

// Record is a durable outbox row. A record is only ever created in the same
// transaction as the aggregate mutation that produced it; the relay later
// publishes it and stamps ProcessedAt, or parks it once RetryCount reaches
// the configured ceiling.
type Record struct {
	ID          int64
	EventType   string
	EventData   []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
	RetryCount  int
	LastError   *string
}

// Store is the persistence surface the writer and relay need. The pgx-backed
// implementation lives in internal/repository.
type Store interface {
	// Insert appends a record inside the ambient transaction. It fails when
	// called without one.
	Insert(ctx context.Context, eventType string, eventData []byte) error
	// FetchUnprocessed returns unpublished records below the retry ceiling in
	// creation order.
	FetchUnprocessed(ctx context.Context, limit, retryCeiling int) ([]Record, error)
	// MarkProcessed stamps processed_at, claiming the record. It reports false
	// when another relay instance already claimed it.
	MarkProcessed(ctx context.Context, id int64) (bool, error)
	// MarkFailed increments retry_count and stores the publish error.
	MarkFailed(ctx context.Context, id int64, publishErr string) error
}
