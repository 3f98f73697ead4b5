package domain

import (
	"fmt"
	"time"
)

// AnalysisRecord is one append-only ledger entry: a single agent's
// decision, keyed by opaque token and case session. Records are immutable
// once written and are retained indefinitely for audit.
type AnalysisRecord struct {
	// ID is the unique analysis identifier, assigned server-side.
	ID string `json:"analysis_id"`

	// AgentType names the agent that produced this record.
	AgentType string `json:"agent_type"`

	// Token is the opaque patient token. Never a raw identity.
	Token Token `json:"token"`

	// CaseSession groups all records for one clinical episode.
	CaseSession string `json:"case_session"`

	// ParentID links to the upstream record this analysis consumed, if any.
	// The parent must exist in the same case session with a strictly
	// earlier timestamp, which makes every chain acyclic by construction.
	ParentID *string `json:"parent_analysis_id,omitempty"`

	// InputSnapshot and OutputSnapshot are opaque agent-defined payloads.
	InputSnapshot  map[string]any `json:"input_snapshot"`
	OutputSnapshot map[string]any `json:"output_snapshot"`

	// ConfidenceScores maps metric name to a value in [0,1].
	ConfidenceScores map[string]float64 `json:"confidence_scores"`

	// EvidenceRefs is the ordered list of citation identifiers.
	EvidenceRefs []string `json:"evidence_references"`

	// EscalationTriggers holds the names of the predicates that fired
	// when the record was written. Possibly empty.
	EscalationTriggers []string `json:"escalation_triggers"`

	// ProcessingTimeMS is the agent's processing time in milliseconds.
	ProcessingTimeMS int64 `json:"processing_time_ms"`

	// CreatedAt is the server-side write timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the record. Stores keep and return
// clones so an agent retaining its submission maps cannot mutate an
// entry after it was written.
func (r AnalysisRecord) Clone() AnalysisRecord {
	clone := r
	clone.InputSnapshot = cloneSnapshot(r.InputSnapshot)
	clone.OutputSnapshot = cloneSnapshot(r.OutputSnapshot)
	if r.ConfidenceScores != nil {
		clone.ConfidenceScores = make(map[string]float64, len(r.ConfidenceScores))
		for metric, value := range r.ConfidenceScores {
			clone.ConfidenceScores[metric] = value
		}
	}
	if r.EvidenceRefs != nil {
		clone.EvidenceRefs = append([]string(nil), r.EvidenceRefs...)
	}
	if r.EscalationTriggers != nil {
		clone.EscalationTriggers = append([]string(nil), r.EscalationTriggers...)
	}
	if r.ParentID != nil {
		parent := *r.ParentID
		clone.ParentID = &parent
	}
	return clone
}

func cloneSnapshot(snapshot map[string]any) map[string]any {
	if snapshot == nil {
		return nil
	}
	clone := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		clone[key] = cloneSnapshotValue(value)
	}
	return clone
}

// cloneSnapshotValue copies nested maps and slices; scalar values are
// immutable and shared as is.
func cloneSnapshotValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneSnapshot(v)
	case []any:
		clone := make([]any, len(v))
		for i, element := range v {
			clone[i] = cloneSnapshotValue(element)
		}
		return clone
	default:
		return v
	}
}

// AnalysisSubmission is what an agent hands to the recorder. The recorder
// assigns the ID and timestamp, measures processing time, and evaluates
// escalation triggers; agents supply only their own input/output/evidence.
type AnalysisSubmission struct {
	AgentType        string
	Token            Token
	CaseSession      string
	ParentID         *string
	InputSnapshot    map[string]any
	OutputSnapshot   map[string]any
	ConfidenceScores map[string]float64
	EvidenceRefs     []string

	// StartedAt marks when the agent began processing. Used to measure
	// processing_time_ms; zero means the duration is unknown.
	StartedAt time.Time
}

// Validate performs the write-time checks that do not need store access:
// token format, required fields, and confidence score ranges.
func (s AnalysisSubmission) Validate() error {
	if s.AgentType == "" {
		return fmt.Errorf("%w: agent type required", ErrInvalidInput)
	}
	if !s.Token.Valid() {
		return ErrInvalidToken
	}
	if s.CaseSession == "" {
		return fmt.Errorf("%w: case session required", ErrInvalidInput)
	}
	if s.ParentID != nil && *s.ParentID == "" {
		return fmt.Errorf("%w: empty parent analysis id", ErrInvalidInput)
	}
	for metric, value := range s.ConfidenceScores {
		if value < 0 || value > 1 {
			return fmt.Errorf("%w: confidence %q out of range: %v", ErrInvalidInput, metric, value)
		}
	}
	return nil
}

// CaseBinding associates a sender's conversation with the opaque token
// and case session its analyses are recorded under. Bindings are made on
// the hospital side, after tokenization; the processing side only ever
// sees the token.
type CaseBinding struct {
	Token       Token  `json:"token"`
	CaseSession string `json:"case_session"`
}

// Window bounds a time range for performance queries. A zero From or To
// leaves that side unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}
