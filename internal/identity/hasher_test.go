package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=3,p=1$"))

	ok, err := VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, err := HashPassword("same input")
	require.NoError(t, err)
	b, err := HashPassword("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"not a hash", "hunter2"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$a2V5"},
		{"truncated", "$argon2id$v=19$m=65536,t=3"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=1$!!!$a2V5"},
		{"bad key encoding", "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$!!!"},
		{"unsupported version", "$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$a2V5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPassword("anything", tt.encoded)
			require.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMintToken(t *testing.T) {
	plaintext, hash, err := MintToken()
	require.NoError(t, err)

	// 32 bytes base64url without padding.
	assert.Len(t, plaintext, 43)
	assert.NotContains(t, plaintext, "=")
	assert.Len(t, hash, 64)
	assert.Equal(t, HashToken(plaintext), hash)

	plaintext2, hash2, err := MintToken()
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, plaintext2)
	assert.NotEqual(t, hash, hash2)
}
