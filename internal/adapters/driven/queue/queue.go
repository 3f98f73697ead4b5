// Package queue provides the in-process envelope queue that feeds the
// processing pipeline.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

const laneBuffer = 100

// Processor handles one dequeued envelope.
type Processor func(ctx context.Context, envelope *domain.InputEnvelope) error

// Queue manages per-sender lanes with a global concurrency semaphore.
// Each sender hash gets its own FIFO channel (lane) so one sender's
// messages are processed in arrival order, while the semaphore limits
// the total number of concurrent processors across all senders.
type Queue struct {
	lanes     map[string]chan *domain.InputEnvelope
	semaphore *semaphore.Weighted
	processor Processor
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

var _ driven.EnvelopeQueue = (*Queue)(nil)

// NewQueue creates a Queue that allows up to maxConcurrent envelopes to
// be processed simultaneously across all sender lanes. The queue is live
// immediately; Start ties its lifetime to a caller context.
func NewQueue(maxConcurrent int64) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:     make(map[string]chan *domain.InputEnvelope),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetProcessor sets the function invoked for each dequeued envelope.
// Must be called before the first Enqueue.
func (q *Queue) SetProcessor(fn Processor) {
	q.processor = fn
}

// Start cancels the queue when ctx is cancelled. Optional; Stop alone
// also shuts the queue down.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			q.cancel()
		case <-q.ctx.Done():
		}
	}()
}

// Stop cancels the queue context, closes all lanes, and waits for
// in-flight processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[string]chan *domain.InputEnvelope)
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds an envelope to its sender's lane, creating the lane (and
// its goroutine) on first use. Returns domain.ErrQueueFull when the
// lane's buffer is full, which the intake layer treats as retryable.
func (q *Queue) Enqueue(_ context.Context, envelope *domain.InputEnvelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := envelope.Audit.SenderHash
	lane, exists := q.lanes[key]
	if !exists {
		lane = make(chan *domain.InputEnvelope, laneBuffer)
		q.lanes[key] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- envelope:
		return nil
	default:
		return fmt.Errorf("%w: lane at capacity", domain.ErrQueueFull)
	}
}

// processLane drains a single sender lane, acquiring a semaphore slot
// before running the processor synchronously. FIFO ordering within a
// sender is preserved; the semaphore bounds cross-sender parallelism.
func (q *Queue) processLane(lane chan *domain.InputEnvelope) {
	defer q.wg.Done()
	for {
		select {
		case envelope, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				if err := q.processor(q.ctx, envelope); err != nil {
					logger.Warn("envelope processing failed: session=%s err=%v", envelope.SessionID, err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no envelopes are actively being processed, or
// the timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
