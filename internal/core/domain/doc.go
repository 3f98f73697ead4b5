// Package domain contains the core business entities and rules for the
// privacy-boundary analysis pipeline: identity mappings and opaque tokens,
// identity-free input envelopes, the append-only analysis ledger, and the
// escalation policy types. It has no dependencies on adapters or services.
package domain
