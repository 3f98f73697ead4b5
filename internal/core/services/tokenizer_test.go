package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/storage/memory"
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

// plainCipher is a no-op cipher for tests.
type plainCipher struct{}

func (plainCipher) Seal(p []byte) ([]byte, error) { return p, nil }
func (plainCipher) Open(c []byte) ([]byte, error) { return c, nil }

// failingIdentityStore simulates an unavailable identity store.
type failingIdentityStore struct{}

func (failingIdentityStore) Insert(context.Context, domain.IdentityMapping) error {
	return domain.ErrStoreUnavailable
}

func (failingIdentityStore) ListByKeyHash(context.Context, string) ([]domain.IdentityMapping, error) {
	return nil, domain.ErrStoreUnavailable
}

func (failingIdentityStore) GetByToken(context.Context, domain.Token) (*domain.IdentityMapping, error) {
	return nil, domain.ErrStoreUnavailable
}

func (failingIdentityStore) Deactivate(context.Context, domain.Token) error {
	return domain.ErrStoreUnavailable
}

var testKeyAttrs = []string{"national_id", "date_of_birth"}

func bruceWayne() domain.IdentityAttributes {
	return domain.IdentityAttributes{
		"name":          "Bruce Wayne",
		"national_id":   "19640217-1234",
		"date_of_birth": "1964-02-17",
	}
}

func newTestTokenizer(t *testing.T) (*TokenizerService, *memory.IdentityStore, *memory.AuditLog) {
	t.Helper()
	store := memory.NewIdentityStore()
	audit := memory.NewAuditLog()
	svc := NewTokenizerService(store, plainCipher{}, audit, testKeyAttrs)
	return svc, store, audit
}

func TestTokenizeIdempotent(t *testing.T) {
	svc, _, _ := newTestTokenizer(t)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	first, err := svc.Tokenize(ctx, bruceWayne())
	require.NoError(t, err)
	assert.True(t, first.Valid())

	second, err := svc.Tokenize(ctx, bruceWayne())
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical attributes must resolve to the same token")

	// A different identity gets a different token.
	other, err := svc.Tokenize(ctx, domain.IdentityAttributes{
		"national_id":   "19710804-5678",
		"date_of_birth": "1971-08-04",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestTokenizeConcurrentSameIdentity(t *testing.T) {
	svc, store, _ := newTestTokenizer(t)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	const workers = 16
	tokens := make([]domain.Token, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := svc.Tokenize(ctx, bruceWayne())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, tokens[0], tokens[i])
	}

	hash, err := domain.DeriveKeyHash(bruceWayne(), testKeyAttrs)
	require.NoError(t, err)
	mappings, err := store.ListByKeyHash(ctx, hash)
	require.NoError(t, err)
	assert.Len(t, mappings, 1, "exactly one mapping per identity")
}

func TestResolveRealmGate(t *testing.T) {
	svc, _, _ := newTestTokenizer(t)
	hospital := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	token, err := svc.Tokenize(hospital, bruceWayne())
	require.NoError(t, err)

	attrs, err := svc.Resolve(hospital, token)
	require.NoError(t, err)
	assert.Equal(t, "Bruce Wayne", attrs["name"])

	// Processing-side callers are denied, explicitly or by default.
	processing := domain.WithCallerRealm(context.Background(), domain.RealmProcessing)
	_, err = svc.Resolve(processing, token)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = svc.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestTokenizeAmbiguousIdentity(t *testing.T) {
	svc, store, _ := newTestTokenizer(t)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	hash, err := domain.DeriveKeyHash(bruceWayne(), testKeyAttrs)
	require.NoError(t, err)

	// Two legacy mappings collide on one key hash.
	store.SeedMapping(domain.IdentityMapping{
		KeyHash: hash, Token: "falcon_00000001", CreatedAt: time.Now(), Active: true,
	})
	store.SeedMapping(domain.IdentityMapping{
		KeyHash: hash, Token: "harbor_00000002", CreatedAt: time.Now(), Active: true,
	})

	_, err = svc.Tokenize(ctx, bruceWayne())
	assert.ErrorIs(t, err, domain.ErrAmbiguousIdentity, "ambiguous mappings are never auto-merged")
}

func TestTokenizeStoreUnavailable(t *testing.T) {
	svc := NewTokenizerService(failingIdentityStore{}, plainCipher{}, memory.NewAuditLog(), testKeyAttrs)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	_, err := svc.Tokenize(ctx, bruceWayne())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable, "no fallback substitutes raw identity for a token")
}

func TestDeactivateKeepsMapping(t *testing.T) {
	svc, store, _ := newTestTokenizer(t)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	token, err := svc.Tokenize(ctx, bruceWayne())
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, token))

	mapping, err := store.GetByToken(ctx, token)
	require.NoError(t, err, "deactivation never deletes")
	assert.False(t, mapping.Active)

	// Processing-side deactivation is denied.
	err = svc.Deactivate(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestResolveInactiveToken(t *testing.T) {
	svc, _, audit := newTestTokenizer(t)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	token, err := svc.Tokenize(ctx, bruceWayne())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, token))

	attrs, err := svc.Resolve(ctx, token)
	assert.ErrorIs(t, err, domain.ErrTokenInactive,
		"a deactivated mapping never yields identity attributes")
	assert.Nil(t, attrs)

	entries, err := audit.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "resolve", entries[0].Purpose)
	assert.Equal(t, "inactive", entries[0].Outcome)
}

func TestTokenizeAppendsAudit(t *testing.T) {
	svc, _, audit := newTestTokenizer(t)
	ctx := domain.WithCallerRealm(context.Background(), domain.RealmHospital)

	token, err := svc.Tokenize(ctx, bruceWayne())
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, token)
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), token)
	require.Error(t, err)

	entries, err := audit.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first: the denied resolve, the allowed resolve, the tokenize.
	assert.Equal(t, "resolve", entries[0].Purpose)
	assert.Equal(t, "denied", entries[0].Outcome)
	assert.Equal(t, "resolve", entries[1].Purpose)
	assert.Equal(t, "ok", entries[1].Outcome)
	assert.Equal(t, "tokenize", entries[2].Purpose)
	assert.Equal(t, "ok", entries[2].Outcome)
}
