package driving

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// ChainQuery is the read-only layer over the analysis ledger. Everything
// is addressed by token, case session, or analysis id - never raw identity.
type ChainQuery interface {
	// GetChain returns a case session's records topologically sorted by
	// parent linkage, ties broken by timestamp.
	GetChain(ctx context.Context, caseSession string) ([]domain.AnalysisRecord, error)

	// TracePathway walks ancestors from the root to the given record,
	// computing confidence evolution and evidence accumulation.
	TracePathway(ctx context.Context, analysisID string) (*domain.PathwayTrace, error)

	// Correlate computes pairwise evidence overlap, per-field decision
	// agreement rates, and the confidence trend for a case session.
	Correlate(ctx context.Context, caseSession string) (*domain.CorrelationReport, error)

	// AgentPerformance aggregates success rate, escalation rate, average
	// latency, and average confidence over records in the window.
	AgentPerformance(ctx context.Context, agentType string, window domain.Window) (*domain.AgentPerformance, error)
}
