// Package sqlite provides the SQLite-backed implementations of the
// persistence ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation
// that requires no CGO. It deliberately manages two separate database
// files:
//
//   - identity.db: identity mappings and the tokenization audit log.
//     Only the tokenization service opens this file.
//   - ledger.db: the append-only analysis record ledger. Everything in
//     it is keyed by opaque token; no identity attribute ever lands here.
//
// Keeping the files apart means the processing side can be deployed
// without the identity database being present at all.
//
// # Schema
//
// Each database's schema is managed through versioned migrations
// embedded from the migrations/ directory.
//
// # Thread Safety
//
// All operations are thread-safe. The stores use database-level locking
// provided by SQLite in WAL mode.
package sqlite
