package driven

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// AnalysisRequest is what an analysis engine receives: the opaque token,
// the case session, the envelope under analysis, and the outputs of any
// upstream agents. Never a raw identity.
type AnalysisRequest struct {
	Token       domain.Token
	CaseSession string
	Envelope    *domain.InputEnvelope

	// Upstream holds the output snapshots of ancestor records, ordered
	// root first.
	Upstream []map[string]any
}

// AnalysisResult is an engine's conclusion for one request.
type AnalysisResult struct {
	Output     map[string]any
	Confidence map[string]float64
	Evidence   []string
}

// AnalysisEngine is the detection capability behind the pipeline. Two
// interchangeable implementations exist: a remote model engine and a
// deterministic engine for tests and dry runs. Selection happens in
// configuration, never inside business logic.
type AnalysisEngine interface {
	// Name identifies the engine as an agent type on ledger records.
	Name() string

	// Analyze produces a result for one request.
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}
