package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/storage/memory"
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// captureSink records published escalation events, optionally failing the
// first few attempts.
type captureSink struct {
	mu       sync.Mutex
	events   []domain.EscalationEvent
	failures int
}

func (s *captureSink) Publish(_ context.Context, event domain.EscalationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return domain.ErrStoreUnavailable
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) all() []domain.EscalationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EscalationEvent(nil), s.events...)
}

// flakyLedger fails a configured number of appends before delegating.
type flakyLedger struct {
	*memory.LedgerStore
	mu       sync.Mutex
	failures int
}

func (l *flakyLedger) Append(ctx context.Context, record *domain.AnalysisRecord) error {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return domain.ErrStoreUnavailable
	}
	l.mu.Unlock()
	return l.LedgerStore.Append(ctx, record)
}

func testTriggers() []domain.TriggerRule {
	return []domain.TriggerRule{
		{Name: "low_confidence", Metric: "overall", Op: domain.OpLessThan, Threshold: 0.5, Severity: domain.SeverityWarning},
		{Name: "high_risk_score_detected", Metric: "risk_percentage", Op: domain.OpGreaterThan, Threshold: 0.75, Severity: domain.SeverityCritical},
	}
}

func newTestRecorder(ledger *memory.LedgerStore, sink, fallback *captureSink) *RecorderService {
	// A typed nil must not become a non-nil sink interface.
	if fallback == nil {
		return NewRecorderService(ledger, sink, nil, testTriggers, fastRetry())
	}
	return NewRecorderService(ledger, sink, fallback, testTriggers, fastRetry())
}

func imageSubmission() domain.AnalysisSubmission {
	return domain.AnalysisSubmission{
		AgentType:        "image_analysis",
		Token:            "batman_ab12cd34",
		CaseSession:      "case-1",
		InputSnapshot:    map[string]any{"session_id": "sess-1"},
		OutputSnapshot:   map[string]any{"grade": 2, "confidence": 0.85},
		ConfidenceScores: map[string]float64{"overall": 0.85},
		EvidenceRefs:     []string{"ref:lesion-atlas-14"},
		StartedAt:        time.Now().Add(-40 * time.Millisecond),
	}
}

func TestRecordPersistsAndTimestamps(t *testing.T) {
	ledger := memory.NewLedgerStore()
	svc := newTestRecorder(ledger, &captureSink{}, nil)
	ctx := context.Background()

	id, err := svc.Record(ctx, imageSubmission())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	record, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image_analysis", record.AgentType)
	assert.Equal(t, domain.Token("batman_ab12cd34"), record.Token)
	assert.False(t, record.CreatedAt.IsZero())
	assert.GreaterOrEqual(t, record.ProcessingTimeMS, int64(30))
	assert.Empty(t, record.EscalationTriggers)
}

func TestRecordedSnapshotsAreImmutable(t *testing.T) {
	ledger := memory.NewLedgerStore()
	svc := newTestRecorder(ledger, &captureSink{}, nil)
	ctx := context.Background()

	sub := imageSubmission()
	id, err := svc.Record(ctx, sub)
	require.NoError(t, err)

	// An agent retaining its maps must not be able to rewrite the entry.
	sub.OutputSnapshot["grade"] = 999
	sub.InputSnapshot["session_id"] = "forged"
	sub.ConfidenceScores["overall"] = 0.01
	sub.EvidenceRefs[0] = "ref:tampered"

	record, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, record.OutputSnapshot["grade"])
	assert.Equal(t, "sess-1", record.InputSnapshot["session_id"])
	assert.Equal(t, 0.85, record.ConfidenceScores["overall"])
	assert.Equal(t, []string{"ref:lesion-atlas-14"}, record.EvidenceRefs)

	// Mutating a read copy must not change the stored entry either.
	record.OutputSnapshot["grade"] = 999
	again, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, again.OutputSnapshot["grade"])
}

func TestRecordRejectsInvalidToken(t *testing.T) {
	svc := newTestRecorder(memory.NewLedgerStore(), &captureSink{}, nil)

	sub := imageSubmission()
	sub.Token = "Bruce Wayne"
	_, err := svc.Record(context.Background(), sub)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRecordParentLinkage(t *testing.T) {
	ledger := memory.NewLedgerStore()
	svc := newTestRecorder(ledger, &captureSink{}, nil)
	ctx := context.Background()

	parentID, err := svc.Record(ctx, imageSubmission())
	require.NoError(t, err)

	child := imageSubmission()
	child.AgentType = "risk_assessment"
	child.ParentID = &parentID
	childID, err := svc.Record(ctx, child)
	require.NoError(t, err)

	parent, err := ledger.Get(ctx, parentID)
	require.NoError(t, err)
	childRecord, err := ledger.Get(ctx, childID)
	require.NoError(t, err)
	assert.True(t, parent.CreatedAt.Before(childRecord.CreatedAt))
}

func TestRecordRejectsUnknownParent(t *testing.T) {
	svc := newTestRecorder(memory.NewLedgerStore(), &captureSink{}, nil)

	missing := "no-such-analysis"
	sub := imageSubmission()
	sub.ParentID = &missing
	_, err := svc.Record(context.Background(), sub)
	assert.ErrorIs(t, err, domain.ErrAcyclicity)
}

func TestRecordRejectsCrossSessionParent(t *testing.T) {
	ledger := memory.NewLedgerStore()
	svc := newTestRecorder(ledger, &captureSink{}, nil)
	ctx := context.Background()

	parentID, err := svc.Record(ctx, imageSubmission())
	require.NoError(t, err)

	other := imageSubmission()
	other.CaseSession = "case-2"
	other.ParentID = &parentID
	_, err = svc.Record(ctx, other)
	assert.ErrorIs(t, err, domain.ErrAcyclicity)
}

func TestRecordEscalatesOnce(t *testing.T) {
	ledger := memory.NewLedgerStore()
	sink := &captureSink{}
	svc := newTestRecorder(ledger, sink, nil)
	ctx := context.Background()

	sub := imageSubmission()
	sub.AgentType = "risk_assessment"
	sub.ConfidenceScores = map[string]float64{"overall": 0.9, "risk_percentage": 0.78}

	id, err := svc.Record(ctx, sub)
	require.NoError(t, err)

	record, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"high_risk_score_detected"}, record.EscalationTriggers)

	events := sink.all()
	require.Len(t, events, 1, "exactly one escalation event per firing record")
	assert.Equal(t, id, events[0].AnalysisID)
	assert.Equal(t, domain.SeverityCritical, events[0].Severity)
	assert.Equal(t, []string{"high_risk_score_detected"}, events[0].TriggerReasons)
}

func TestRecordMultipleTriggersHighestSeverity(t *testing.T) {
	sink := &captureSink{}
	svc := newTestRecorder(memory.NewLedgerStore(), sink, nil)

	sub := imageSubmission()
	sub.ConfidenceScores = map[string]float64{"overall": 0.3, "risk_percentage": 0.9}
	_, err := svc.Record(context.Background(), sub)
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"high_risk_score_detected", "low_confidence"}, events[0].TriggerReasons)
	assert.Equal(t, domain.SeverityCritical, events[0].Severity)
}

func TestRecordPublishFallsBack(t *testing.T) {
	fallback := &captureSink{}
	svc := newTestRecorder(memory.NewLedgerStore(), &captureSink{failures: 10}, fallback)

	sub := imageSubmission()
	sub.ConfidenceScores = map[string]float64{"risk_percentage": 0.99}

	id, err := svc.Record(context.Background(), sub)
	assert.ErrorIs(t, err, ErrEscalationDegraded)
	assert.NotEmpty(t, id, "the record itself is durable")
	require.Len(t, fallback.all(), 1, "the alert lands in the durable fallback log")
	assert.Equal(t, id, fallback.all()[0].AnalysisID)
}

func TestRecordStoreFailureIsFailClosed(t *testing.T) {
	ledger := &flakyLedger{LedgerStore: memory.NewLedgerStore(), failures: 10}
	svc := NewRecorderService(ledger, &captureSink{}, nil, testTriggers, fastRetry())

	_, err := svc.Record(context.Background(), imageSubmission())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRecordRetriesTransientStoreFailure(t *testing.T) {
	ledger := &flakyLedger{LedgerStore: memory.NewLedgerStore(), failures: 2}
	svc := NewRecorderService(ledger, &captureSink{}, nil, testTriggers, fastRetry())

	id, err := svc.Record(context.Background(), imageSubmission())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
