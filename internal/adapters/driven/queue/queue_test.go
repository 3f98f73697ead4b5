package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

func envelope(sender, session string) *domain.InputEnvelope {
	return &domain.InputEnvelope{
		SessionID: session,
		Timestamp: time.Now().UTC(),
		Type:      domain.InputText,
		Audit:     domain.AuditTrail{SenderHash: sender, ProcessingID: "p-" + session},
	}
}

func TestQueueProcessesEnqueued(t *testing.T) {
	q := NewQueue(4)

	var mu sync.Mutex
	var seen []string
	q.SetProcessor(func(_ context.Context, e *domain.InputEnvelope) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.SessionID)
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), envelope("sender-a", "s1")))
	require.NoError(t, q.Enqueue(context.Background(), envelope("sender-b", "s2")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, q.WaitIdle(time.Second))
}

func TestQueueProcessesWithoutStart(t *testing.T) {
	q := NewQueue(2)
	defer q.Stop()

	var mu sync.Mutex
	var seen []string
	q.SetProcessor(func(_ context.Context, e *domain.InputEnvelope) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.SessionID)
		return nil
	})

	// No Start call: the queue is live from construction.
	require.NoError(t, q.Enqueue(context.Background(), envelope("sender-a", "s1")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueuePreservesPerSenderOrder(t *testing.T) {
	q := NewQueue(8)

	var mu sync.Mutex
	var order []string
	q.SetProcessor(func(_ context.Context, e *domain.InputEnvelope) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, e.SessionID)
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(context.Background(),
			envelope("sender-a", "s-"+string(rune('a'+i)))))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == n
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		assert.Equal(t, "s-"+string(rune('a'+i)), order[i], "one sender's lane is strict FIFO")
	}
}

func TestQueueFullLane(t *testing.T) {
	q := NewQueue(1)

	release := make(chan struct{})
	q.SetProcessor(func(_ context.Context, _ *domain.InputEnvelope) error {
		<-release
		return nil
	})

	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	// One in-flight plus a full buffer; the next enqueue is refused.
	require.NoError(t, q.Enqueue(context.Background(), envelope("sender-a", "s0")))
	for i := 0; i < laneBuffer; i++ {
		if err := q.Enqueue(context.Background(), envelope("sender-a", "sN")); err != nil {
			require.ErrorIs(t, err, domain.ErrQueueFull)
			return
		}
	}
	err := q.Enqueue(context.Background(), envelope("sender-a", "sLast"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestQueueStopWaitsForInFlight(t *testing.T) {
	q := NewQueue(2)

	done := make(chan struct{})
	q.SetProcessor(func(_ context.Context, _ *domain.InputEnvelope) error {
		time.Sleep(20 * time.Millisecond)
		close(done)
		return nil
	})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), envelope("sender-a", "s1")))

	// Give the lane goroutine time to pick the envelope up.
	time.Sleep(5 * time.Millisecond)
	q.Stop()

	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the in-flight envelope finished")
	}
}
