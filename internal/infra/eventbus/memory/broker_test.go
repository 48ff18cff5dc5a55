package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
)

func TestPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	broker := NewBroker(0)
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)

	expected := events.NewDomainEvent(events.EventTypeRunStarted, "run-1", time.Now(), map[string]any{"targets_total": 2})

	err := broker.Subscribe(ctx, func(_ context.Context, evt events.DomainEvent) error {
		defer wg.Done()
		assert.Equal(t, expected.Type, evt.Type)
		assert.Equal(t, "run-1", evt.Key)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, broker.PublishDomainEvent(ctx, expected))
	wg.Wait()

	assert.Len(t, broker.Events(), 1)
}

func TestMultipleSubscribers(t *testing.T) {
	t.Parallel()

	broker := NewBroker(0)
	ctx := context.Background()
	var mu sync.Mutex
	received := 0

	for range 3 {
		require.NoError(t, broker.Subscribe(ctx, func(context.Context, events.DomainEvent) error {
			mu.Lock()
			received++
			mu.Unlock()
			return nil
		}))
	}

	evt := events.NewDomainEvent(events.EventTypeRunCompleted, "run-1", time.Now(), nil)
	require.NoError(t, broker.PublishDomainEvent(ctx, evt))
	assert.Equal(t, 3, received)
}

func TestHandlerErrorStopsDelivery(t *testing.T) {
	t.Parallel()

	broker := NewBroker(0)
	ctx := context.Background()
	wantErr := errors.New("handler failed")

	require.NoError(t, broker.Subscribe(ctx, func(context.Context, events.DomainEvent) error { return wantErr }))

	err := broker.PublishDomainEvent(ctx, events.NewDomainEvent(events.EventTypeRunStarted, "k", time.Now(), nil))
	assert.ErrorIs(t, err, wantErr)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	t.Parallel()

	broker := NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	require.NoError(t, broker.Subscribe(ctx, func(context.Context, events.DomainEvent) error {
		calls++
		return nil
	}))
	cancel()

	assert.Eventually(t, func() bool {
		broker.mu.RLock()
		defer broker.mu.RUnlock()
		return len(broker.handlers) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, broker.PublishDomainEvent(context.Background(), events.NewDomainEvent(events.EventTypeRunStarted, "k", time.Now(), nil)))
	assert.Equal(t, 0, calls)
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	broker := NewBroker(2)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, broker.PublishDomainEvent(ctx, events.NewDomainEvent(events.EventTypeRunStarted, key, time.Now(), nil)))
	}

	got := broker.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Key)
	assert.Equal(t, "c", got[1].Key)
}

func TestPublishOptionsApplied(t *testing.T) {
	t.Parallel()

	broker := NewBroker(0)
	evt := events.NewDomainEvent(events.EventTypeTargetRescanned, "orig", time.Now(), nil)
	require.NoError(t, broker.PublishDomainEvent(context.Background(), evt, events.WithKey("override")))

	assert.Equal(t, "override", broker.Events()[0].Key)
}
