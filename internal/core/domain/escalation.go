package domain

import (
	"fmt"
	"time"
)

// Severity ranks escalation events for downstream routing.
type Severity string

const (
	// SeverityInfo marks informational escalations.
	SeverityInfo Severity = "info"
	// SeverityWarning marks escalations needing review.
	SeverityWarning Severity = "warning"
	// SeverityCritical marks escalations mandating immediate human review.
	SeverityCritical Severity = "critical"
)

// Rank returns an ordering value for severity comparison.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// TriggerOp is the comparison applied by a trigger rule.
type TriggerOp string

const (
	// OpLessThan fires when the metric is below the threshold.
	OpLessThan TriggerOp = "lt"
	// OpGreaterThan fires when the metric is above the threshold.
	OpGreaterThan TriggerOp = "gt"
)

// TriggerRule is one escalation predicate from the deployment policy,
// e.g. "risk_percentage > 0.75 is critical". The rule table is supplied
// by configuration, never inferred from record content.
type TriggerRule struct {
	Name      string
	Metric    string
	Op        TriggerOp
	Threshold float64
	Severity  Severity
}

// Validate checks the rule is well-formed.
func (r TriggerRule) Validate() error {
	if r.Name == "" || r.Metric == "" {
		return fmt.Errorf("%w: trigger rule needs name and metric", ErrInvalidInput)
	}
	if r.Op != OpLessThan && r.Op != OpGreaterThan {
		return fmt.Errorf("%w: unknown trigger op %q", ErrInvalidInput, r.Op)
	}
	return nil
}

// Fires evaluates the rule against a record's confidence scores. A rule
// whose metric is absent never fires.
func (r TriggerRule) Fires(scores map[string]float64) bool {
	value, ok := scores[r.Metric]
	if !ok {
		return false
	}
	switch r.Op {
	case OpLessThan:
		return value < r.Threshold
	case OpGreaterThan:
		return value > r.Threshold
	default:
		return false
	}
}

// EscalationEvent is published once per record whose triggers fired.
// Delivery is at-least-once; consumers deduplicate by AnalysisID.
type EscalationEvent struct {
	ID             string    `json:"id"`
	AnalysisID     string    `json:"analysis_id"`
	Token          Token     `json:"token"`
	CaseSession    string    `json:"case_session"`
	TriggerReasons []string  `json:"trigger_reasons"`
	Severity       Severity  `json:"severity"`
	CreatedAt      time.Time `json:"created_at"`
}
