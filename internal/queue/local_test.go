package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iago/report-relay/internal/domain"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQueueDeliversBatches(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	queue := NewLocalQueue(8, 3, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.InboundBatch, 1)
	go func() {
		_ = queue.Consume(ctx, func(_ context.Context, batch domain.InboundBatch) error {
			received <- batch
			return nil
		})
	}()

	require.NoError(t, queue.Enqueue(ctx, domain.InboundBatch{ID: "b1", Payload: []byte(`{"events":[]}`)}))

	select {
	case batch := <-received:
		assert.Equal(t, "b1", batch.ID)
	case <-time.After(time.Second):
		t.Fatal("batch was not consumed")
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	queue := NewLocalQueue(8, 3, logger)
	queue.retryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		attempts []int
	)
	go func() {
		_ = queue.Consume(ctx, func(_ context.Context, batch domain.InboundBatch) error {
			mu.Lock()
			attempts = append(attempts, batch.Attempt)
			mu.Unlock()
			return errors.New("undecodable")
		})
	}()

	require.NoError(t, queue.Enqueue(ctx, domain.InboundBatch{ID: "bad"}))

	require.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
	mu.Unlock()
	assert.Equal(t, "local queue moved batch to DLQ", hook.LastEntry().Message)
}

func TestLocalQueueEnqueueHonoursContext(t *testing.T) {
	queue := NewLocalQueue(1, 1, nil)
	require.NoError(t, queue.Enqueue(context.Background(), domain.InboundBatch{ID: "fills-buffer"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, queue.Enqueue(ctx, domain.InboundBatch{ID: "blocked"}), context.DeadlineExceeded)
}

func TestLocalQueueDrainsBufferedBatchesOnShutdown(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	queue := NewLocalQueue(8, 3, logger)
	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, queue.Enqueue(context.Background(), domain.InboundBatch{ID: id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var handled []string
	err := queue.Consume(ctx, func(_ context.Context, batch domain.InboundBatch) error {
		handled = append(handled, batch.ID)
		if batch.ID == "b2" {
			return errors.New("undecodable")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, handled)
	assert.Equal(t, 1, queue.DLQSize())
}
