package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// Ensure RecorderService implements the interface.
var _ driving.Recorder = (*RecorderService)(nil)

// ErrEscalationDegraded is returned alongside a valid analysis id when
// the escalation event could not reach the primary sink and was written
// to the durable fallback log instead. The record itself is durable.
var ErrEscalationDegraded = errors.New("escalation delivery degraded to fallback log")

// RecorderService appends agent decisions to the analysis ledger and
// evaluates escalation policy on every write. Writes are append-only
// inserts; concurrent agents writing into the same case session need no
// coordination because no record is ever mutated in place.
type RecorderService struct {
	ledger   driven.LedgerStore
	sink     driven.EscalationSink
	fallback driven.EscalationSink
	triggers func() []domain.TriggerRule
	retry    RetryPolicy
}

// NewRecorderService creates a recorder. triggers is called per record so
// threshold changes in deployment policy apply to subsequent writes;
// fallback is the durable local log used when the primary sink fails.
func NewRecorderService(
	ledger driven.LedgerStore,
	sink driven.EscalationSink,
	fallback driven.EscalationSink,
	triggers func() []domain.TriggerRule,
	retry RetryPolicy,
) *RecorderService {
	return &RecorderService{
		ledger:   ledger,
		sink:     sink,
		fallback: fallback,
		triggers: triggers,
		retry:    retry,
	}
}

// Record validates a submission, writes it as an immutable ledger entry,
// and publishes exactly one escalation event if any trigger fires.
// Persistent store failure is fail-closed: the caller's result is not
// durably recorded and dependent downstream steps must not proceed.
func (r *RecorderService) Record(ctx context.Context, sub domain.AnalysisSubmission) (string, error) {
	if err := sub.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	record := &domain.AnalysisRecord{
		ID:               uuid.New().String(),
		AgentType:        sub.AgentType,
		Token:            sub.Token,
		CaseSession:      sub.CaseSession,
		ParentID:         sub.ParentID,
		InputSnapshot:    sub.InputSnapshot,
		OutputSnapshot:   sub.OutputSnapshot,
		ConfidenceScores: sub.ConfidenceScores,
		EvidenceRefs:     sub.EvidenceRefs,
		ProcessingTimeMS: processingTime(sub.StartedAt, now),
		CreatedAt:        now,
	}

	fired, severity := r.evaluateTriggers(record.ConfidenceScores)
	record.EscalationTriggers = fired

	// The store enforces parent existence, same-session linkage, and
	// timestamp monotonicity atomically with the insert. Only transient
	// store failures are retried; an acyclicity violation is permanent.
	err := r.retry.Execute(ctx,
		func(err error) bool { return errors.Is(err, domain.ErrStoreUnavailable) },
		func() error { return r.ledger.Append(ctx, record) },
	)
	if err != nil {
		return "", fmt.Errorf("recording analysis: %w", err)
	}

	logger.Debug("Recorded analysis %s (agent %s, case %s)", record.ID, record.AgentType, record.CaseSession)

	if len(fired) == 0 {
		return record.ID, nil
	}

	event := domain.EscalationEvent{
		ID:             uuid.New().String(),
		AnalysisID:     record.ID,
		Token:          record.Token,
		CaseSession:    record.CaseSession,
		TriggerReasons: fired,
		Severity:       severity,
		CreatedAt:      now,
	}

	if err := r.publish(ctx, event); err != nil {
		return record.ID, err
	}
	return record.ID, nil
}

// evaluateTriggers applies the configured predicates and returns the
// sorted names of those that fired with the highest severity among them.
func (r *RecorderService) evaluateTriggers(scores map[string]float64) ([]string, domain.Severity) {
	var fired []string
	severity := domain.Severity("")

	for _, rule := range r.triggers() {
		if rule.Validate() != nil {
			continue
		}
		if rule.Fires(scores) {
			fired = append(fired, rule.Name)
			if rule.Severity.Rank() > severity.Rank() {
				severity = rule.Severity
			}
		}
	}

	sort.Strings(fired)
	return fired, severity
}

// publish delivers the escalation event, falling back to the durable
// local log when the primary sink stays unreachable. A safety-critical
// alert is never silently dropped.
func (r *RecorderService) publish(ctx context.Context, event domain.EscalationEvent) error {
	err := r.retry.Execute(ctx, nil, func() error {
		return r.sink.Publish(ctx, event)
	})
	if err == nil {
		logger.Info("Escalation %s published for analysis %s (%s)", event.ID, event.AnalysisID, event.Severity)
		return nil
	}

	logger.Warn("Escalation sink unavailable for analysis %s: %v", event.AnalysisID, err)

	if r.fallback == nil {
		return fmt.Errorf("publishing escalation for %s: %w", event.AnalysisID, err)
	}
	if fbErr := r.fallback.Publish(ctx, event); fbErr != nil {
		return fmt.Errorf("escalation fallback failed for %s: %w", event.AnalysisID, errors.Join(err, fbErr))
	}
	return fmt.Errorf("%w: analysis %s", ErrEscalationDegraded, event.AnalysisID)
}

func processingTime(startedAt, now time.Time) int64 {
	if startedAt.IsZero() || startedAt.After(now) {
		return 0
	}
	return now.Sub(startedAt).Milliseconds()
}
