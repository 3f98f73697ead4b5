package services

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
)

// Ensure QueryService implements the interface.
var _ driving.ChainQuery = (*QueryService)(nil)

// maxPathwayDepth bounds ancestor walks. The store's write-time guard
// makes cycles impossible; the bound protects against a corrupted store.
const maxPathwayDepth = 10000

// trendEpsilon is the minimum mean-confidence movement considered a trend.
const trendEpsilon = 0.01

// QueryService is the read-only chain query engine. All queries operate
// on token-keyed data; the store never contains identity-bearing fields,
// so no query can leak identity regardless of caller.
type QueryService struct {
	ledger driven.LedgerStore
}

// NewQueryService creates a query engine over the ledger store.
func NewQueryService(ledger driven.LedgerStore) *QueryService {
	return &QueryService{ledger: ledger}
}

// GetChain returns a case session's records topologically sorted: parents
// before children, ties broken by timestamp then analysis id.
func (q *QueryService) GetChain(ctx context.Context, caseSession string) ([]domain.AnalysisRecord, error) {
	if caseSession == "" {
		return nil, fmt.Errorf("%w: case session required", domain.ErrInvalidInput)
	}

	records, err := q.ledger.ListByCaseSession(ctx, caseSession)
	if err != nil {
		return nil, fmt.Errorf("listing case session: %w", err)
	}

	return topoSort(records), nil
}

// TracePathway walks ancestors from the given record to its root and
// returns the chain root-first with confidence evolution and cumulative
// evidence counts.
func (q *QueryService) TracePathway(ctx context.Context, analysisID string) (*domain.PathwayTrace, error) {
	if analysisID == "" {
		return nil, fmt.Errorf("%w: analysis id required", domain.ErrInvalidInput)
	}

	// Walk upward, leaf to root.
	var lineage []domain.AnalysisRecord
	visited := make(map[string]bool)
	id := analysisID

	for depth := 0; depth < maxPathwayDepth; depth++ {
		if visited[id] {
			return nil, fmt.Errorf("%w: cycle at %s", domain.ErrAcyclicity, id)
		}
		visited[id] = true

		record, err := q.ledger.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading record %s: %w", id, err)
		}
		lineage = append(lineage, *record)

		if record.ParentID == nil {
			break
		}
		id = *record.ParentID
	}

	// A lineage that never reached a root means the store is corrupted;
	// a truncated trace must not pass for a complete one.
	if lineage[len(lineage)-1].ParentID != nil {
		return nil, fmt.Errorf("%w: ancestor walk exceeded %d steps from %s",
			domain.ErrAcyclicity, maxPathwayDepth, analysisID)
	}

	// Reverse to root-first and accumulate evidence.
	trace := &domain.PathwayTrace{
		AnalysisID:  analysisID,
		CaseSession: lineage[0].CaseSession,
		Steps:       make([]domain.PathwayStep, 0, len(lineage)),
	}

	seen := make(map[string]bool)
	cumulative := 0
	for i := len(lineage) - 1; i >= 0; i-- {
		record := lineage[i]
		for _, ref := range record.EvidenceRefs {
			if !seen[ref] {
				seen[ref] = true
				cumulative++
			}
		}
		trace.Steps = append(trace.Steps, domain.PathwayStep{
			AnalysisID:         record.ID,
			AgentType:          record.AgentType,
			Confidence:         record.ConfidenceScores,
			CumulativeEvidence: cumulative,
			CreatedAt:          record.CreatedAt,
		})
	}

	return trace, nil
}

// Correlate computes pairwise evidence overlap, per-field decision
// agreement rates, and the confidence trend across agents in a chain.
func (q *QueryService) Correlate(ctx context.Context, caseSession string) (*domain.CorrelationReport, error) {
	records, err := q.GetChain(ctx, caseSession)
	if err != nil {
		return nil, err
	}

	report := &domain.CorrelationReport{
		CaseSession:     caseSession,
		AgreementRates:  make(map[string]float64),
		ConfidenceTrend: domain.TrendFlat,
	}
	if len(records) == 0 {
		return report, nil
	}

	// Latest record per agent type carries that agent's decision.
	latest := make(map[string]domain.AnalysisRecord)
	evidence := make(map[string]map[string]bool)
	for _, record := range records {
		if prev, ok := latest[record.AgentType]; !ok || record.CreatedAt.After(prev.CreatedAt) {
			latest[record.AgentType] = record
		}
		set := evidence[record.AgentType]
		if set == nil {
			set = make(map[string]bool)
			evidence[record.AgentType] = set
		}
		for _, ref := range record.EvidenceRefs {
			set[ref] = true
		}
	}

	agents := make([]string, 0, len(latest))
	for agent := range latest {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			report.Pairs = append(report.Pairs, domain.AgentPairCorrelation{
				AgentA:             agents[i],
				AgentB:             agents[j],
				EvidenceOverlapPct: jaccardPct(evidence[agents[i]], evidence[agents[j]]),
			})
		}
	}

	report.AgreementRates = agreementRates(agents, latest)
	report.ConfidenceTrend = confidenceTrend(records)
	return report, nil
}

// AgentPerformance aggregates an agent type's records over a window.
func (q *QueryService) AgentPerformance(
	ctx context.Context,
	agentType string,
	window domain.Window,
) (*domain.AgentPerformance, error) {
	if agentType == "" {
		return nil, fmt.Errorf("%w: agent type required", domain.ErrInvalidInput)
	}

	records, err := q.ledger.ListByAgentType(ctx, agentType, window)
	if err != nil {
		return nil, fmt.Errorf("listing agent records: %w", err)
	}

	perf := &domain.AgentPerformance{
		AgentType:  agentType,
		Records:    len(records),
		WindowFrom: window.From,
		WindowTo:   window.To,
	}
	if len(records) == 0 {
		return perf, nil
	}

	var escalated int
	var totalLatency float64
	var totalConfidence float64
	for _, record := range records {
		if len(record.EscalationTriggers) > 0 {
			escalated++
		}
		totalLatency += float64(record.ProcessingTimeMS)
		totalConfidence += meanConfidence(record.ConfidenceScores)
	}

	n := float64(len(records))
	perf.EscalationRate = float64(escalated) / n
	perf.SuccessRate = 1 - perf.EscalationRate
	perf.AvgLatencyMS = totalLatency / n
	perf.AvgConfidence = totalConfidence / n
	return perf, nil
}

// topoSort orders records parents-first using Kahn's algorithm. Children
// of the same parent (and roots) are ordered by timestamp then id, so the
// result is deterministic.
func topoSort(records []domain.AnalysisRecord) []domain.AnalysisRecord {
	byID := make(map[string]domain.AnalysisRecord, len(records))
	children := make(map[string][]string, len(records))
	var roots []string

	for _, record := range records {
		byID[record.ID] = record
	}
	for _, record := range records {
		if record.ParentID != nil {
			if _, ok := byID[*record.ParentID]; ok {
				children[*record.ParentID] = append(children[*record.ParentID], record.ID)
				continue
			}
		}
		roots = append(roots, record.ID)
	}

	order := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			a, b := byID[ids[i]], byID[ids[j]]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
	}

	order(roots)
	sorted := make([]domain.AnalysisRecord, 0, len(records))
	queue := roots
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byID[id])

		next := children[id]
		order(next)
		queue = append(queue, next...)
	}

	return sorted
}

// jaccardPct computes evidence overlap between two sets as a percentage.
func jaccardPct(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for ref := range a {
		if b[ref] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return 100 * float64(intersection) / float64(union)
}

// agreementRates computes, for each output field shared by two or more
// agents, the fraction of agent pairs whose values agree.
func agreementRates(agents []string, latest map[string]domain.AnalysisRecord) map[string]float64 {
	values := make(map[string][]any)
	for _, agent := range agents {
		for field, value := range latest[agent].OutputSnapshot {
			values[field] = append(values[field], value)
		}
	}

	rates := make(map[string]float64)
	for field, vals := range values {
		if len(vals) < 2 {
			continue
		}
		agreeing, pairs := 0, 0
		for i := 0; i < len(vals); i++ {
			for j := i + 1; j < len(vals); j++ {
				pairs++
				if reflect.DeepEqual(vals[i], vals[j]) {
					agreeing++
				}
			}
		}
		rates[field] = float64(agreeing) / float64(pairs)
	}
	return rates
}

// confidenceTrend compares mean confidence of the first and last records
// in timestamp order.
func confidenceTrend(records []domain.AnalysisRecord) domain.Trend {
	if len(records) < 2 {
		return domain.TrendFlat
	}

	byTime := make([]domain.AnalysisRecord, len(records))
	copy(byTime, records)
	sort.Slice(byTime, func(i, j int) bool {
		return byTime[i].CreatedAt.Before(byTime[j].CreatedAt)
	})

	first := meanConfidence(byTime[0].ConfidenceScores)
	last := meanConfidence(byTime[len(byTime)-1].ConfidenceScores)
	switch {
	case last-first > trendEpsilon:
		return domain.TrendRising
	case first-last > trendEpsilon:
		return domain.TrendFalling
	default:
		return domain.TrendFlat
	}
}

func meanConfidence(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var total float64
	for _, value := range scores {
		total += value
	}
	return total / float64(len(scores))
}
