// Package memory provides in-memory implementations of the driven store
// ports. Used in tests and for ephemeral single-process deployments.
package memory
