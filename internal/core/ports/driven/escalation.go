package driven

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// EscalationSink delivers escalation events to a notification surface.
// Delivery is at-least-once; consumers deduplicate by analysis id.
type EscalationSink interface {
	// Publish delivers one event. An error means the event was not
	// accepted and the caller must fall back to durable local logging;
	// a safety-critical alert is never silently dropped.
	Publish(ctx context.Context, event domain.EscalationEvent) error
}
