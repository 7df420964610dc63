package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishInvokesAllHandlersDespiteFailures(t *testing.T) {
	d := NewInMemoryDispatcher()

	var order []string
	d.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		order = append(order, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		order = append(order, "second")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t1"})

	require.Error(t, err, "handler failure must surface so the relay retries")
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishSucceedsWithNoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	err := d.Publish(context.Background(), Event{Type: EventTicketAssigned})
	assert.NoError(t, err)
}

func TestSubscribeIsPerEventType(t *testing.T) {
	d := NewInMemoryDispatcher()

	created := 0
	d.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		created++
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketStatusChanged}))
	assert.Equal(t, 0, created)

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.Equal(t, 1, created)
}
