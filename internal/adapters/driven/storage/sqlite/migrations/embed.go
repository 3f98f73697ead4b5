// Package migrations embeds SQL migration files for the SQLite stores.
// The identity and ledger databases migrate independently because they
// live in separate files on opposite sides of the privacy boundary.
package migrations

import "embed"

// Identity contains the identity database migrations.
//
//go:embed identity/*.sql
var Identity embed.FS

// Ledger contains the ledger database migrations.
//
//go:embed ledger/*.sql
var Ledger embed.FS
