package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// Ensure LedgerStore implements the interface.
var _ driven.LedgerStore = (*LedgerStore)(nil)

// LedgerStore is an in-memory implementation of driven.LedgerStore.
// Records are stored and returned as deep copies; nothing outside the
// store can mutate an entry after Append, and a per-case-session index
// serves chain reads.
type LedgerStore struct {
	mu      sync.RWMutex
	records map[string]domain.AnalysisRecord
	byCase  map[string][]string
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		records: make(map[string]domain.AnalysisRecord),
		byCase:  make(map[string][]string),
	}
}

// Append stores a new record, enforcing the parent linkage invariants
// atomically under the store lock.
func (s *LedgerStore) Append(_ context.Context, record *domain.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return domain.ErrAlreadyExists
	}

	if record.ParentID != nil {
		parent, ok := s.records[*record.ParentID]
		if !ok || parent.CaseSession != record.CaseSession || !parent.CreatedAt.Before(record.CreatedAt) {
			return domain.ErrAcyclicity
		}
	}

	// Stored as a deep copy: a caller retaining its snapshot maps must
	// not be able to mutate a written entry.
	s.records[record.ID] = record.Clone()
	s.byCase[record.CaseSession] = append(s.byCase[record.CaseSession], record.ID)
	return nil
}

// Get retrieves a record by analysis id.
func (s *LedgerStore) Get(_ context.Context, id string) (*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := record.Clone()
	return &clone, nil
}

// ListByCaseSession returns all records for a case session ordered by
// timestamp, served from the per-case index.
func (s *LedgerStore) ListByCaseSession(_ context.Context, caseSession string) ([]domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byCase[caseSession]
	result := make([]domain.AnalysisRecord, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.records[id].Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListByAgentType returns records for an agent type within a window.
func (s *LedgerStore) ListByAgentType(
	_ context.Context,
	agentType string,
	window domain.Window,
) ([]domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.AnalysisRecord
	for _, record := range s.records {
		if record.AgentType == agentType && window.Contains(record.CreatedAt) {
			result = append(result, record.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
