package domain

import "time"

// AuditEntry records one call into the tokenization boundary. The audit
// log lives alongside the identity store and is itself append-only.
type AuditEntry struct {
	// Caller is the realm the call arrived from.
	Caller Realm

	// Purpose names the operation: "tokenize", "resolve", "deactivate".
	Purpose string

	// Outcome is "ok" or a short failure class. Never identity content.
	Outcome string

	CreatedAt time.Time
}
