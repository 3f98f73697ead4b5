// Package driven defines the interfaces the core services depend on:
// stores, the envelope queue, the escalation sink, the identity cipher,
// and the analysis engine. Adapters implement these ports.
package driven
