package driven

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// EnvelopeQueue forwards identity-free envelopes to the analysis pipeline.
// Enqueue must not block on downstream completion; delivery to consumers
// is at-least-once.
type EnvelopeQueue interface {
	// Enqueue hands an envelope to the pipeline. Returns
	// domain.ErrQueueFull when the queue refuses delivery; callers retry
	// with bounded backoff.
	Enqueue(ctx context.Context, envelope *domain.InputEnvelope) error
}
