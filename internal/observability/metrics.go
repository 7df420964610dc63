package observability

import (
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for command and outbox activity.
type Metrics struct {
	mu               sync.Mutex
	commandCount     map[string]int64
	conflictRetries  map[string]int64
	outboxPublished  int64
	outboxParked     int64
	idempotentReplay int64
	rateLimited      int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		commandCount:    make(map[string]int64),
		conflictRetries: make(map[string]int64),
	}
}

// RecordCommand increments the per-type/outcome command counter.
func (m *Metrics) RecordCommand(commandType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandCount[commandType+"|"+outcome]++
}

// RecordConflictRetry counts a rolled-back attempt that will be retried.
func (m *Metrics) RecordConflictRetry(commandType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictRetries[commandType]++
}

// RecordOutboxPublished counts successfully relayed records.
func (m *Metrics) RecordOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outboxPublished += int64(n)
}

// RecordOutboxParked counts records abandoned at the retry ceiling.
func (m *Metrics) RecordOutboxParked(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outboxParked += int64(n)
}

// RecordIdempotentReplay counts commands answered from the idempotency store.
func (m *Metrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idempotentReplay++
}

// RecordRateLimited counts denied submissions.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

// Snapshot returns a copy of all counters for the health/debug surface.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.commandCount)+len(m.conflictRetries)+4)
	for k, v := range m.commandCount {
		out["command|"+k] = v
	}
	for k, v := range m.conflictRetries {
		out["conflict_retry|"+k] = v
	}
	out["outbox_published"] = m.outboxPublished
	out["outbox_parked"] = m.outboxParked
	out["idempotent_replay"] = m.idempotentReplay
	out["rate_limited"] = m.rateLimited
	return out
}
