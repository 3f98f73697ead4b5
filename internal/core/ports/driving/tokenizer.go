package driving

import (
	"context"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// Tokenizer maps real identity to opaque tokens. It is the sole reader
// and writer of the identity-bearing store.
type Tokenizer interface {
	// Tokenize returns the stable opaque token for an identity, issuing
	// one if none exists. Idempotent: identical attributes always
	// resolve to the same token.
	Tokenize(ctx context.Context, attrs domain.IdentityAttributes) (domain.Token, error)

	// Resolve maps a token back to its identity attributes. Callable
	// only from hospital-side contexts; processing-side callers receive
	// domain.ErrAccessDenied.
	Resolve(ctx context.Context, token domain.Token) (domain.IdentityAttributes, error)

	// Deactivate marks a token's mapping inactive on discharge or
	// retention expiry. Hospital-side only; never deletes.
	Deactivate(ctx context.Context, token domain.Token) error
}
