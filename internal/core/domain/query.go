package domain

import "time"

// PathwayStep is one ancestor in a decision pathway, root first.
type PathwayStep struct {
	AnalysisID string `json:"analysis_id"`
	AgentType  string `json:"agent_type"`

	// Confidence is the step's own confidence scores.
	Confidence map[string]float64 `json:"confidence"`

	// CumulativeEvidence counts distinct evidence references accumulated
	// from the root up to and including this step.
	CumulativeEvidence int `json:"cumulative_evidence"`

	CreatedAt time.Time `json:"created_at"`
}

// PathwayTrace reconstructs how a record's conclusion was reached: the
// ancestor chain from root to the requested record, with confidence
// evolution and evidence accumulation.
type PathwayTrace struct {
	AnalysisID  string        `json:"analysis_id"`
	CaseSession string        `json:"case_session"`
	Steps       []PathwayStep `json:"steps"`
}

// Trend summarises the direction of confidence over a chain.
type Trend string

const (
	// TrendRising means average confidence increased over the chain.
	TrendRising Trend = "rising"
	// TrendFalling means average confidence decreased over the chain.
	TrendFalling Trend = "falling"
	// TrendFlat means no meaningful movement either way.
	TrendFlat Trend = "flat"
)

// AgentPairCorrelation compares two agents within one case session.
type AgentPairCorrelation struct {
	AgentA string `json:"agent_a"`
	AgentB string `json:"agent_b"`

	// EvidenceOverlapPct is the Jaccard overlap of the two agents'
	// evidence reference sets, as a percentage.
	EvidenceOverlapPct float64 `json:"evidence_overlap_pct"`
}

// CorrelationReport summarises cross-agent behaviour in a case session.
type CorrelationReport struct {
	CaseSession string                 `json:"case_session"`
	Pairs       []AgentPairCorrelation `json:"pairs"`

	// AgreementRates maps each output field shared by two or more agents
	// to the fraction of agent pairs whose values agree.
	AgreementRates map[string]float64 `json:"agreement_rates"`

	// ConfidenceTrend is the direction of mean confidence over time.
	ConfidenceTrend Trend `json:"confidence_trend"`
}

// AgentPerformance aggregates an agent type's behaviour over a window.
// A record counts as a success when no escalation trigger fired on it.
type AgentPerformance struct {
	AgentType      string  `json:"agent_type"`
	Records        int     `json:"records"`
	SuccessRate    float64 `json:"success_rate"`
	EscalationRate float64 `json:"escalation_rate"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	AvgConfidence  float64 `json:"avg_confidence"`

	WindowFrom time.Time `json:"window_from,omitempty"`
	WindowTo   time.Time `json:"window_to,omitempty"`
}
