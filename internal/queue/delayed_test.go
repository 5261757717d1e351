package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delayedTestConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
	}
}

func TestQueue_PublishDelayed(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, delayedTestConfig("test:delayed:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()

	t.Run("message held until delay elapses", func(t *testing.T) {
		err := queue.PublishJSONDelayed(ctx, map[string]string{"key": "later"}, nil, 300*time.Millisecond)
		require.NoError(t, err)

		count, err := queue.DelayedCount()
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		received := make(chan []byte, 1)
		handler := func(ctx context.Context, msg *Message) error {
			received <- msg.Data
			return nil
		}
		require.NoError(t, queue.Consume(handler))

		// Not yet due.
		select {
		case <-received:
			t.Fatal("message delivered before its delay elapsed")
		case <-time.After(150 * time.Millisecond):
		}

		// Due now; the consume loop promotes it on the next tick.
		select {
		case data := <-received:
			var payload map[string]string
			require.NoError(t, json.Unmarshal(data, &payload))
			assert.Equal(t, "later", payload["key"])
		case <-time.After(2 * time.Second):
			t.Fatal("delayed message never delivered")
		}

		count, err = queue.DelayedCount()
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestQueue_DelayedPromotionWithIdleStream(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, delayedTestConfig("test:delayed:idle"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()

	// Consumer first, on a stream with nothing to read. The poll loop must
	// keep ticking so promotion still happens for anything published later.
	received := make(chan []byte, 1)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg.Data
		return nil
	}))

	time.Sleep(150 * time.Millisecond)

	require.NoError(t, queue.PublishJSONDelayed(ctx, map[string]string{"key": "after-idle"}, nil, 100*time.Millisecond))

	select {
	case data := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "after-idle", payload["key"])
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message never promoted past the idle consumer")
	}

	count, err := queue.DelayedCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestQueue_PublishDelayed_ZeroDelay(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, delayedTestConfig("test:delayed:immediate"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	err = queue.PublishDelayed(ctx, []byte(`{"now":true}`), nil, 0)
	require.NoError(t, err)

	// Published straight to the stream, nothing parked.
	count, err := queue.DelayedCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	stats, err := queue.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(1))
}

func TestQueue_PromoteDropsUnparseableMembers(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, delayedTestConfig("test:delayed:garbage"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	// A member that is not a JSON envelope, scored in the past.
	require.NoError(t, adapter.ZAdd(queue.delayedKey(), 1, "not-json"))

	queue.promoteDueMessages()

	count, err := queue.DelayedCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestQueue_PublishDelayed_OrderIndependent(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, delayedTestConfig("test:delayed:multi"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	require.NoError(t, queue.PublishJSONDelayed(ctx, map[string]int{"id": 1}, nil, time.Hour))
	require.NoError(t, queue.PublishJSONDelayed(ctx, map[string]int{"id": 2}, nil, 10*time.Millisecond))

	time.Sleep(50 * time.Millisecond)
	queue.promoteDueMessages()

	// Only the due message is promoted; the distant one stays parked.
	count, err := queue.DelayedCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
