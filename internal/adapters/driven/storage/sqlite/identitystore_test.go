package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

func openTestIdentityDB(t *testing.T) *IdentityDB {
	t.Helper()
	db, err := OpenIdentityDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMapping(keyHash string, token domain.Token) domain.IdentityMapping {
	return domain.IdentityMapping{
		KeyHash:      keyHash,
		Token:        token,
		IdentityBlob: []byte("sealed"),
		CreatedAt:    time.Now().UTC(),
		Active:       true,
	}
}

func TestIdentityStoreInsertAndGet(t *testing.T) {
	store := openTestIdentityDB(t).IdentityStore()
	ctx := context.Background()

	mapping := testMapping("hash-1", "batman_ab12cd34")
	require.NoError(t, store.Insert(ctx, mapping))

	got, err := store.GetByToken(ctx, "batman_ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, mapping.KeyHash, got.KeyHash)
	assert.Equal(t, mapping.Token, got.Token)
	assert.Equal(t, []byte("sealed"), got.IdentityBlob)
	assert.True(t, got.Active)

	_, err = store.GetByToken(ctx, "falcon_00000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityStoreInsertIsConditional(t *testing.T) {
	store := openTestIdentityDB(t).IdentityStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testMapping("hash-1", "batman_ab12cd34")))

	// A second insert for the same key hash loses, even with a new token.
	err := store.Insert(ctx, testMapping("hash-1", "falcon_00000001"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	mappings, err := store.ListByKeyHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, domain.Token("batman_ab12cd34"), mappings[0].Token)
}

func TestIdentityStoreDeactivateKeepsRow(t *testing.T) {
	store := openTestIdentityDB(t).IdentityStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testMapping("hash-1", "batman_ab12cd34")))
	require.NoError(t, store.Deactivate(ctx, "batman_ab12cd34"))

	got, err := store.GetByToken(ctx, "batman_ab12cd34")
	require.NoError(t, err, "deactivation never deletes")
	assert.False(t, got.Active)

	err = store.Deactivate(ctx, "falcon_00000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityDBSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := OpenIdentityDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.IdentityStore().Insert(ctx, testMapping("hash-1", "batman_ab12cd34")))
	require.NoError(t, db.Close())

	reopened, err := OpenIdentityDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.IdentityStore().GetByToken(ctx, "batman_ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.KeyHash)
}

func TestAuditLogAppendAndList(t *testing.T) {
	log := openTestIdentityDB(t).AuditLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, domain.AuditEntry{
		Caller: domain.RealmHospital, Purpose: "tokenize", Outcome: "ok",
	}))
	require.NoError(t, log.Append(ctx, domain.AuditEntry{
		Caller: domain.RealmProcessing, Purpose: "resolve", Outcome: "denied",
	}))

	entries, err := log.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "resolve", entries[0].Purpose)
	assert.Equal(t, "denied", entries[0].Outcome)
	assert.Equal(t, domain.RealmProcessing, entries[0].Caller)
	assert.Equal(t, "tokenize", entries[1].Purpose)

	limited, err := log.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "resolve", limited[0].Purpose)
}
