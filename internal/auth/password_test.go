package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := &PasswordHasher{cost: 4} // minimum cost keeps the test fast

	hash, err := h.Hash("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", hash)

	assert.True(t, h.Verify("Secret123", hash))
	assert.False(t, h.Verify("wrong", hash))
}

func TestPasswordHasher_SaltedPerCall(t *testing.T) {
	h := &PasswordHasher{cost: 4}

	h1, err := h.Hash("Secret123")
	require.NoError(t, err)
	h2, err := h.Hash("Secret123")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, h.Verify("Secret123", h1))
	assert.True(t, h.Verify("Secret123", h2))
}

func TestPasswordHasher_VerifyGarbageHash(t *testing.T) {
	h := NewPasswordHasher()

	assert.False(t, h.Verify("Secret123", "not-a-bcrypt-hash"))
}
