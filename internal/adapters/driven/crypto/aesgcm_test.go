package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	c, err := NewAESGCM(key)
	require.NoError(t, err)

	plaintext := []byte(`{"name":"Bruce Wayne"}`)
	sealed, err := c.Seal(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Bruce")

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	// Nonce per seal: two seals of the same payload differ.
	sealed2, err := c.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestAESGCMRejectsBadKeyAndCiphertext(t *testing.T) {
	_, err := NewAESGCM([]byte("short"))
	assert.Error(t, err)

	c, err := NewAESGCM(bytes.Repeat([]byte{1}, KeySize))
	require.NoError(t, err)

	_, err = c.Open([]byte("too short"))
	assert.Error(t, err)

	sealed, err := c.Seal([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Open(sealed)
	assert.Error(t, err)
}
