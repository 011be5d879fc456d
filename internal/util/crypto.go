package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyBytes = 32

	// TokenHashCost is the bcrypt cost used for API_TOKEN_HASH.
	TokenHashCost = 12
)

// GenerateKey returns a random 32-byte value, hex encoded. It serves both as
// an AES-256 key and as a generated service token.
func GenerateKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken is the hex SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// BcryptToken hashes a service token for API_TOKEN_HASH.
func BcryptToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), TokenHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MatchesBcrypt reports whether token matches a bcrypt hash. A malformed
// hash never matches.
func MatchesBcrypt(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// MaskSecret keeps the last four characters so an owner can tell which key
// is stored. Short secrets are hidden entirely.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
