package driving

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// Recorder appends agent decisions to the analysis ledger. An agent's
// result is not considered durable until Record returns its analysis id.
type Recorder interface {
	// Record validates a submission, writes it as an immutable ledger
	// entry, evaluates escalation triggers, and publishes an escalation
	// event for each firing record. Returns the new analysis id.
	//
	// A non-empty id with a non-nil error means the record is durable
	// but escalation delivery degraded to the durable fallback log.
	Record(ctx context.Context, sub domain.AnalysisSubmission) (string, error)
}
