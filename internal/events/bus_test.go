package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/pkg/logger"
)

func TestPublishSubscribeRoundtrip(t *testing.T) {
	bus := NewBus(logger.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	var (
		mu       sync.Mutex
		received []PointsChanged
	)
	err := bus.SubscribePointsChanged(context.Background(), func(ctx context.Context, event PointsChanged) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})
	require.NoError(t, err)

	event := PointsChanged{
		UserID:      7,
		Action:      models.ActionNeedCreated,
		Points:      100,
		TotalPoints: 100,
		OccurredAt:  time.Now().UTC(),
	}
	require.NoError(t, bus.PublishPointsChanged(event))

	// Publish blocks until the subscriber acks, so the handler has run.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, uint(7), received[0].UserID)
	assert.Equal(t, models.ActionNeedCreated, received[0].Action)
	assert.Equal(t, 100, received[0].Points)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	bus := NewBus(logger.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	for _, name := range []string{"a", "b"} {
		name := name
		err := bus.SubscribePointsChanged(context.Background(), func(ctx context.Context, event PointsChanged) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	require.NoError(t, bus.PublishPointsChanged(PointsChanged{UserID: 1}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["a"])
	assert.Equal(t, 1, counts["b"])
}

func TestPublishAfterCloseFails(t *testing.T) {
	bus := NewBus(logger.Nop())
	require.NoError(t, bus.Close())

	err := bus.PublishPointsChanged(PointsChanged{UserID: 1})
	assert.Error(t, err)
}
