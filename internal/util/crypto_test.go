package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateKey(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.Len(t, key, 64)
	})

	t.Run("generates unique keys", func(t *testing.T) {
		key1, _ := GenerateKey()
		key2, _ := GenerateKey()
		assert.NotEqual(t, key1, key2)
	})

	t.Run("generates valid hex", func(t *testing.T) {
		key, _ := GenerateKey()
		for _, c := range key {
			assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		assert.Len(t, HashToken("test-token"), 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		assert.Equal(t, HashToken("test-token"), HashToken("test-token"))
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		assert.NotEqual(t, HashToken("token-1"), HashToken("token-2"))
	})
}

func TestConstantTimeEqual(t *testing.T) {
	t.Run("returns true for equal strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("abc", "abc"))
	})

	t.Run("returns false for different strings", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "def"))
	})

	t.Run("returns false for different lengths", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "abcd"))
	})
}

func TestMatchesBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("service-token"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, MatchesBcrypt("service-token", string(hash)))
	assert.False(t, MatchesBcrypt("wrong-token", string(hash)))
	assert.False(t, MatchesBcrypt("service-token", "not-a-hash"))
}

func TestBcryptToken(t *testing.T) {
	hash, err := BcryptToken("service-token")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, TokenHashCost, cost)
	assert.True(t, MatchesBcrypt("service-token", hash))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****", MaskSecret("sk-ant-1"))
	assert.Equal(t, "****cret", MaskSecret("sk-ant-api03-secret"))
}
