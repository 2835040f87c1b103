package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// SessionTTL is the bearer session lifetime.
	SessionTTL = 7 * 24 * time.Hour

	// SetupTokenTTL is the lifetime of setup/reset tokens, including the
	// bootstrap claim token.
	SetupTokenTTL = time.Hour

	tokenLength = 32
)

// MintToken generates an opaque bearer secret. The plaintext (32 random
// bytes, base64url) is handed to the caller exactly once; only the SHA-256
// hex hash is ever stored.
func MintToken() (plaintext, hash string, err error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(raw)
	return plaintext, HashToken(plaintext), nil
}

// HashToken maps a bearer plaintext to its storage/lookup form.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
