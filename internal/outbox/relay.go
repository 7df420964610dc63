package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/events"
	"github.com/atlasdesk/ticketd/internal/observability"
)

// Relay is the background publisher: it polls unprocessed outbox records in
// creation order, publishes each to the dispatcher, and stamps processed_at.
// Delivery is at-least-once; a crash between publish and mark causes
// redelivery, which subscribers absorb by being idempotent. Multiple relay
// instances are safe because the claim is the atomic processed_at update,
// not the instance count.
type Relay struct {
	store        Store
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	metrics      *observability.Metrics
	interval     time.Duration
	batchSize    int
	retryCeiling int
}

// NewRelay constructs the relay.
func NewRelay(store Store, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, interval time.Duration, batchSize, retryCeiling int) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if retryCeiling <= 0 {
		retryCeiling = 5
	}
	return &Relay{
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger,
		metrics:      metrics,
		interval:     interval,
		batchSize:    batchSize,
		retryCeiling: retryCeiling,
	}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
		zap.Int("retry_ceiling", r.retryCeiling))

	for {
		r.Drain(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain processes one poll batch and reports how many records were published.
func (r *Relay) Drain(ctx context.Context) int {
	records, err := r.store.FetchUnprocessed(ctx, r.batchSize, r.retryCeiling)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("outbox poll failed", zap.Error(err))
		}
		return 0
	}

	published := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return published
		}
		if r.publishOne(ctx, record) {
			published++
		}
	}
	if published > 0 {
		r.metrics.RecordOutboxPublished(published)
	}
	return published
}

func (r *Relay) publishOne(ctx context.Context, record Record) bool {
	var event events.Event
	if err := json.Unmarshal(record.EventData, &event); err != nil {
		// Malformed payload will never publish; park it at the ceiling
		// instead of retrying forever.
		r.fail(ctx, record, "malformed event payload: "+err.Error())
		return false
	}

	if err := r.dispatcher.Publish(ctx, event); err != nil {
		r.fail(ctx, record, err.Error())
		return false
	}

	claimed, err := r.store.MarkProcessed(ctx, record.ID)
	if err != nil {
		r.logger.Error("outbox mark processed failed",
			zap.Int64("record_id", record.ID),
			zap.Error(err))
		return false
	}
	if !claimed {
		// Another relay instance beat us to the claim; the duplicate publish
		// is covered by subscriber idempotency.
		return false
	}
	return true
}

func (r *Relay) fail(ctx context.Context, record Record, publishErr string) {
	if err := r.store.MarkFailed(ctx, record.ID, publishErr); err != nil {
		r.logger.Error("outbox mark failed errored",
			zap.Int64("record_id", record.ID),
			zap.Error(err))
		return
	}
	if record.RetryCount+1 >= r.retryCeiling {
		r.metrics.RecordOutboxParked(1)
		r.logger.Error("outbox record parked for manual inspection",
			zap.Int64("record_id", record.ID),
			zap.String("event_type", record.EventType),
			zap.Int("retry_count", record.RetryCount+1),
			zap.String("last_error", publishErr))
		return
	}
	r.logger.Warn("outbox publish failed, will retry",
		zap.Int64("record_id", record.ID),
		zap.String("event_type", record.EventType),
		zap.Int("retry_count", record.RetryCount+1),
		zap.String("last_error", publishErr))
}
