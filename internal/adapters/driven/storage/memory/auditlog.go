package memory

import (
	"context"
	"sync"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is an in-memory implementation of driven.AuditLog.
type AuditLog struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewAuditLog creates a new in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append stores one audit entry.
func (l *AuditLog) Append(_ context.Context, entry domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// List returns the most recent entries, newest first.
func (l *AuditLog) List(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]domain.AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, l.entries[i])
	}
	return result, nil
}
