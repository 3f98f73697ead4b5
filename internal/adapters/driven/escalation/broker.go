// Package escalation provides the escalation event transport: an
// in-process publish-subscribe broker for live consumers and a durable
// file sink used when no consumer can take delivery.
package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

const defaultBufferSize = 64

// Broker fans escalation events out to subscribers. Publish fails when
// no subscriber can take the event, so the caller's fallback path
// engages instead of the alert being dropped. Delivery is at-least-once;
// consumers deduplicate by AnalysisID.
type Broker struct {
	subs map[chan domain.EscalationEvent]struct{}
	mu   sync.RWMutex
	done chan struct{}
}

var _ driven.EscalationSink = (*Broker)(nil)

// NewBroker creates an escalation broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan domain.EscalationEvent]struct{}),
		done: make(chan struct{}),
	}
}

// Publish delivers the event to every subscriber. It returns an error
// when the broker is shut down, has no subscribers, or any subscriber
// buffer could not accept the event: a partial delivery counts as a
// failure so the caller's durable fallback engages for the missed
// surface. Subscribers that did receive the event deduplicate the
// redelivery by AnalysisID.
func (b *Broker) Publish(_ context.Context, event domain.EscalationEvent) error {
	select {
	case <-b.done:
		return fmt.Errorf("%w: escalation broker shut down", domain.ErrStoreUnavailable)
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs) == 0 {
		return fmt.Errorf("%w: no escalation subscribers", domain.ErrStoreUnavailable)
	}

	missed := 0
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			missed++
			logger.Warn("escalation subscriber buffer full: analysis=%s", event.AnalysisID)
		}
	}
	if missed > 0 {
		return fmt.Errorf("%w: %d of %d escalation subscribers full",
			domain.ErrStoreUnavailable, missed, len(b.subs))
	}
	return nil
}

// Subscribe registers a consumer. The channel is closed when ctx is
// cancelled or the broker shuts down.
func (b *Broker) Subscribe(ctx context.Context) <-chan domain.EscalationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.EscalationEvent, defaultBufferSize)
	b.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.unsubscribe(ch)
	}()

	return ch
}

func (b *Broker) unsubscribe(ch chan domain.EscalationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[ch]; exists {
		delete(b.subs, ch)
		close(ch)
	}
}

// Shutdown closes the broker and all subscriber channels.
func (b *Broker) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	// Subscriber goroutines observe done and unsubscribe themselves;
	// give direct cleanup a chance too for callers that never cancel.
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Deduper tracks seen analysis ids so an at-least-once consumer can
// drop redelivered events.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewDeduper creates a deduper that forgets ids after ttl.
func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{seen: make(map[string]time.Time), ttl: ttl}
}

// FirstDelivery reports whether this is the first time the analysis id
// has been seen within the ttl, recording it as seen.
func (d *Deduper) FirstDelivery(analysisID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
		}
	}

	if _, ok := d.seen[analysisID]; ok {
		return false
	}
	d.seen[analysisID] = now
	return true
}
