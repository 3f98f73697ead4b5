package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyHash(t *testing.T) {
	keyAttrs := []string{"national_id", "date_of_birth"}

	attrs := IdentityAttributes{
		"name":          "Bruce Wayne",
		"national_id":   "19640217-1234",
		"date_of_birth": "1964-02-17",
	}

	hash, err := DeriveKeyHash(attrs, keyAttrs)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	// Deterministic: same attributes, same hash.
	again, err := DeriveKeyHash(attrs, keyAttrs)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	// Canonicalisation: case and surrounding whitespace do not matter.
	messy := IdentityAttributes{
		"national_id":   "  19640217-1234 ",
		"date_of_birth": "1964-02-17",
	}
	canonical, err := DeriveKeyHash(messy, keyAttrs)
	require.NoError(t, err)
	assert.Equal(t, hash, canonical)

	// Non-key attributes do not influence the hash.
	delete(attrs, "name")
	withoutName, err := DeriveKeyHash(attrs, keyAttrs)
	require.NoError(t, err)
	assert.Equal(t, hash, withoutName)
}

func TestDeriveKeyHashDistinctIdentities(t *testing.T) {
	keyAttrs := []string{"national_id"}

	a, err := DeriveKeyHash(IdentityAttributes{"national_id": "1"}, keyAttrs)
	require.NoError(t, err)
	b, err := DeriveKeyHash(IdentityAttributes{"national_id": "2"}, keyAttrs)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveKeyHashMissingAttribute(t *testing.T) {
	_, err := DeriveKeyHash(IdentityAttributes{"name": "x"}, []string{"national_id"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = DeriveKeyHash(IdentityAttributes{"national_id": "   "}, []string{"national_id"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = DeriveKeyHash(IdentityAttributes{"national_id": "1"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
