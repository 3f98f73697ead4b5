package driving

import (
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// CaseBinder associates sender conversations with the token and case
// session their analyses are recorded under. Bind must precede the
// sender's first message; unbound envelopes are refused downstream.
type CaseBinder interface {
	// Bind registers a sender hash against a case binding. The binding
	// persists across the sender's messages until Unbind.
	Bind(senderHash string, binding domain.CaseBinding) error

	// Unbind removes a sender's binding, typically on discharge.
	Unbind(senderHash string)
}
