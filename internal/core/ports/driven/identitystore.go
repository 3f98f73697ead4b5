package driven

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// IdentityStore persists identity mappings. It is the identity-bearing
// store: only the tokenization service may hold a reference to it.
// Mappings are append-only; deactivation is the only mutation.
type IdentityStore interface {
	// Insert stores a new mapping if and only if no mapping exists for
	// its key hash. Returns domain.ErrAlreadyExists when one does, which
	// is how concurrent Tokenize calls for the same identity serialize.
	Insert(ctx context.Context, mapping domain.IdentityMapping) error

	// ListByKeyHash returns all mappings for a key hash. More than one
	// result means the identity is ambiguous.
	ListByKeyHash(ctx context.Context, keyHash string) ([]domain.IdentityMapping, error)

	// GetByToken retrieves the mapping for a token.
	GetByToken(ctx context.Context, token domain.Token) (*domain.IdentityMapping, error)

	// Deactivate marks a mapping inactive. Mappings are never deleted.
	Deactivate(ctx context.Context, token domain.Token) error
}

// AuditLog records calls into the tokenization boundary. Append-only.
type AuditLog interface {
	// Append stores one audit entry.
	Append(ctx context.Context, entry domain.AuditEntry) error

	// List returns the most recent entries, newest first.
	List(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// IdentityCipher seals and opens identity blobs. Only sealed blobs are
// ever handed to the identity store.
type IdentityCipher interface {
	// Seal encrypts an identity payload.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts a sealed identity payload.
	Open(ciphertext []byte) ([]byte, error)
}
