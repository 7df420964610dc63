package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasdesk/ticketd/internal/domain"
)

const detailKeyPrefix = "ticket:detail:"

// TicketCache is the redis-backed read cache for ticket detail views. Entries
// carry a TTL, so a missed eviction self-heals within one cache lifetime.
type TicketCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTicketCache constructs the cache.
func NewTicketCache(client *redis.Client, ttl time.Duration) *TicketCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &TicketCache{client: client, ttl: ttl}
}

// Get returns the cached ticket, or nil on miss or decode failure.
func (c *TicketCache) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	raw, err := c.client.Get(ctx, detailKeyPrefix+ticketID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ticket domain.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, nil
	}
	return &ticket, nil
}

// Set stores the ticket detail snapshot.
func (c *TicketCache) Set(ctx context.Context, ticket *domain.Ticket) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, detailKeyPrefix+ticket.ID, raw, c.ttl).Err()
}

// Invalidate evicts the detail entry for the ticket.
func (c *TicketCache) Invalidate(ctx context.Context, ticketID string) error {
	return c.client.Del(ctx, detailKeyPrefix+ticketID).Err()
}
