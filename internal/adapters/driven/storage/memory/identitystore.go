package memory

import (
	"context"
	"sync"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// Ensure IdentityStore implements the interface.
var _ driven.IdentityStore = (*IdentityStore)(nil)

// IdentityStore is an in-memory implementation of driven.IdentityStore.
// Append-only: mappings are deactivated, never removed.
type IdentityStore struct {
	mu       sync.RWMutex
	mappings []domain.IdentityMapping
}

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{}
}

// Insert stores a new mapping unless one already exists for its key hash.
func (s *IdentityStore) Insert(_ context.Context, mapping domain.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mappings {
		if m.KeyHash == mapping.KeyHash {
			return domain.ErrAlreadyExists
		}
	}
	s.mappings = append(s.mappings, mapping)
	return nil
}

// SeedMapping stores a mapping without the key-hash uniqueness check.
// Test hook for constructing ambiguous-identity fixtures.
func (s *IdentityStore) SeedMapping(mapping domain.IdentityMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = append(s.mappings, mapping)
}

// ListByKeyHash returns all mappings for a key hash.
func (s *IdentityStore) ListByKeyHash(_ context.Context, keyHash string) ([]domain.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.IdentityMapping
	for _, m := range s.mappings {
		if m.KeyHash == keyHash {
			result = append(result, m)
		}
	}
	return result, nil
}

// GetByToken retrieves the mapping for a token.
func (s *IdentityStore) GetByToken(_ context.Context, token domain.Token) (*domain.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.mappings {
		if s.mappings[i].Token == token {
			m := s.mappings[i]
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Deactivate marks a mapping inactive.
func (s *IdentityStore) Deactivate(_ context.Context, token domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.mappings {
		if s.mappings[i].Token == token {
			s.mappings[i].Active = false
			return nil
		}
	}
	return domain.ErrNotFound
}
