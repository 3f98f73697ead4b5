package driven

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// LedgerStore persists analysis records. The store is append-only: no
// method updates or deletes a record, and implementations must reject a
// second write for an existing analysis id.
type LedgerStore interface {
	// Append stores a new record. When record.ParentID is set the store
	// must verify, atomically with the insert, that the parent exists in
	// the same case session with a strictly earlier timestamp, returning
	// domain.ErrAcyclicity otherwise. Nothing is partially applied.
	Append(ctx context.Context, record *domain.AnalysisRecord) error

	// Get retrieves a record by analysis id.
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)

	// ListByCaseSession returns all records for a case session, ordered
	// by timestamp. Served from the per-case-session index.
	ListByCaseSession(ctx context.Context, caseSession string) ([]domain.AnalysisRecord, error)

	// ListByAgentType returns records for an agent type within a window.
	ListByAgentType(ctx context.Context, agentType string, window domain.Window) ([]domain.AnalysisRecord, error)
}
