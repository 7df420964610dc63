package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/events"
	"github.com/atlasdesk/ticketd/internal/observability"
)

// fakeStore is an in-memory Store with the same claim semantics as the
// pgx-backed one.
type fakeStore struct {
	mu      sync.Mutex
	records []Record
	nextID  int64

	failMarkProcessed bool
	claimRace         bool
}

func (s *fakeStore) add(t *testing.T, event events.Event) int64 {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records = append(s.records, Record{
		ID:        s.nextID,
		EventType: string(event.Type),
		EventData: payload,
		CreatedAt: time.Now().Add(time.Duration(s.nextID) * time.Millisecond),
	})
	return s.nextID
}

func (s *fakeStore) addRaw(payload string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records = append(s.records, Record{
		ID:        s.nextID,
		EventType: "ticket_created",
		EventData: []byte(payload),
		CreatedAt: time.Now(),
	})
	return s.nextID
}

func (s *fakeStore) Insert(ctx context.Context, eventType string, eventData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records = append(s.records, Record{ID: s.nextID, EventType: eventType, EventData: eventData, CreatedAt: time.Now()})
	return nil
}

func (s *fakeStore) FetchUnprocessed(ctx context.Context, limit, retryCeiling int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.ProcessedAt == nil && rec.RetryCount < retryCeiling {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMarkProcessed {
		return false, errors.New("store unavailable")
	}
	for i := range s.records {
		if s.records[i].ID == id {
			if s.records[i].ProcessedAt != nil {
				return false, nil
			}
			now := time.Now()
			s.records[i].ProcessedAt = &now
			if s.claimRace {
				// Someone else got there first: the row was already stamped.
				return false, nil
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id int64, publishErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].RetryCount++
			s.records[i].LastError = &publishErr
		}
	}
	return nil
}

func (s *fakeStore) record(id int64) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return Record{}
}

func newTestRelay(store Store, dispatcher events.Dispatcher, retryCeiling int) *Relay {
	return NewRelay(store, dispatcher, zap.NewNop(), observability.NewMetrics(), time.Second, 100, retryCeiling)
}

func ticketEvent(ticketID string) events.Event {
	return events.Event{
		ID:        ticketID + "-event",
		Type:      events.EventTicketCreated,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
	}
}

func TestDrainPublishesAndMarksProcessed(t *testing.T) {
	store := &fakeStore{}
	dispatcher := events.NewInMemoryDispatcher()

	var delivered []string
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		delivered = append(delivered, event.TicketID)
		return nil
	})

	id1 := store.add(t, ticketEvent("t1"))
	id2 := store.add(t, ticketEvent("t2"))

	relay := newTestRelay(store, dispatcher, 5)
	published := relay.Drain(context.Background())

	assert.Equal(t, 2, published)
	assert.Equal(t, []string{"t1", "t2"}, delivered, "creation order is preserved")
	assert.NotNil(t, store.record(id1).ProcessedAt)
	assert.NotNil(t, store.record(id2).ProcessedAt)
}

func TestDrainRecordsFailureAndRetriesNextPoll(t *testing.T) {
	store := &fakeStore{}
	dispatcher := events.NewInMemoryDispatcher()

	deliveries := 0
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		deliveries++
		if deliveries == 1 {
			return errors.New("subscriber down")
		}
		return nil
	})

	id := store.add(t, ticketEvent("t1"))
	relay := newTestRelay(store, dispatcher, 5)

	assert.Equal(t, 0, relay.Drain(context.Background()))
	rec := store.record(id)
	assert.Nil(t, rec.ProcessedAt)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.LastError)
	assert.Contains(t, *rec.LastError, "subscriber down")

	assert.Equal(t, 1, relay.Drain(context.Background()))
	assert.NotNil(t, store.record(id).ProcessedAt)
}

func TestDrainParksRecordAtRetryCeiling(t *testing.T) {
	store := &fakeStore{}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		return errors.New("permanently broken")
	})

	id := store.add(t, ticketEvent("t1"))
	relay := newTestRelay(store, dispatcher, 2)

	relay.Drain(context.Background())
	relay.Drain(context.Background())

	rec := store.record(id)
	assert.Equal(t, 2, rec.RetryCount)
	assert.Nil(t, rec.ProcessedAt)

	// Parked records are no longer fetched; further drains leave them alone.
	relay.Drain(context.Background())
	assert.Equal(t, 2, store.record(id).RetryCount)
}

func TestDrainRedeliversWhenMarkProcessedFails(t *testing.T) {
	store := &fakeStore{}
	dispatcher := events.NewInMemoryDispatcher()

	applied := map[string]bool{}
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		// Idempotent subscriber: applying twice equals applying once.
		applied[event.TicketID] = true
		return nil
	})

	id := store.add(t, ticketEvent("t1"))
	relay := newTestRelay(store, dispatcher, 5)

	// Simulates a crash between publish and mark: the publish happened but the
	// record stays unprocessed.
	store.failMarkProcessed = true
	assert.Equal(t, 0, relay.Drain(context.Background()))
	assert.Nil(t, store.record(id).ProcessedAt)

	store.failMarkProcessed = false
	assert.Equal(t, 1, relay.Drain(context.Background()))
	assert.NotNil(t, store.record(id).ProcessedAt)
	assert.True(t, applied["t1"])
	assert.Len(t, applied, 1, "double delivery converges to single-delivery state")
}

func TestDrainParksMalformedPayload(t *testing.T) {
	store := &fakeStore{}
	dispatcher := events.NewInMemoryDispatcher()

	id1 := store.addRaw("{not json")
	relay := newTestRelay(store, dispatcher, 5)

	assert.Equal(t, 0, relay.Drain(context.Background()))
	rec := store.record(id1)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.LastError)
	assert.Contains(t, *rec.LastError, "malformed event payload")
}

func TestDuplicateClaimIsNotCountedAsPublished(t *testing.T) {
	store := &fakeStore{}
	dispatcher := events.NewInMemoryDispatcher()

	id := store.add(t, ticketEvent("t1"))

	// Another relay instance claims the record between our fetch and mark.
	store.claimRace = true

	relay := newTestRelay(store, dispatcher, 5)
	assert.Equal(t, 0, relay.Drain(context.Background()))
	assert.NotNil(t, store.record(id).ProcessedAt)
}
