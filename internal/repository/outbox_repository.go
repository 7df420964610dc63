package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasdesk/ticketd/internal/outbox"
)

// outboxRepository is the pgx-backed outbox.Store.
type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository instantiates the outbox store.
func NewOutboxRepository(pool *pgxpool.Pool) outbox.Store {
	return &outboxRepository{pool: pool}
}

// Insert appends an outbox row. It refuses to run outside a transaction:
// writing a record standalone would break the atomicity the outbox exists
// to provide.
func (r *outboxRepository) Insert(ctx context.Context, eventType string, eventData []byte) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	const query = `INSERT INTO outbox (event_type, event_data) VALUES ($1, $2)`
	_, err := tx.Exec(ctx, query, eventType, string(eventData))
	return err
}

func (r *outboxRepository) FetchUnprocessed(ctx context.Context, limit, retryCeiling int) ([]outbox.Record, error) {
	const query = `
        SELECT id, event_type, event_data, created_at, processed_at, retry_count, last_error
        FROM outbox
        WHERE processed_at IS NULL AND retry_count < $2
        ORDER BY created_at, id
        LIMIT $1`
	rows, err := querier(ctx, r.pool).Query(ctx, query, limit, retryCeiling)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		var data string
		if err := rows.Scan(
			&rec.ID,
			&rec.EventType,
			&data,
			&rec.CreatedAt,
			&rec.ProcessedAt,
			&rec.RetryCount,
			&rec.LastError,
		); err != nil {
			return nil, err
		}
		rec.EventData = []byte(data)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkProcessed claims the record. The processed_at IS NULL predicate makes
// the claim atomic per record, so concurrent relay instances never
// double-publish the same row's success.
func (r *outboxRepository) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE outbox SET processed_at=NOW() WHERE id=$1 AND processed_at IS NULL`
	cmd, err := querier(ctx, r.pool).Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, publishErr string) error {
	if len(publishErr) > 1024 {
		publishErr = publishErr[:1024]
	}
	const query = `UPDATE outbox SET retry_count=retry_count+1, last_error=$2 WHERE id=$1 AND processed_at IS NULL`
	_, err := querier(ctx, r.pool).Exec(ctx, query, id, publishErr)
	return err
}
