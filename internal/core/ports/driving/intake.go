package driving

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// Intake is the isolated input layer. It performs syntactic-only
// validation and forwards identity-free envelopes downstream; it never
// parses message content for meaning.
type Intake interface {
	// Receive validates a raw message and enqueues the resulting
	// envelope. Returns the envelope on success, domain.ErrValidation
	// for malformed/oversized/unsupported input, or a delivery failure
	// when downstream retries exhaust.
	Receive(ctx context.Context, msg domain.RawMessage) (*domain.InputEnvelope, error)
}
