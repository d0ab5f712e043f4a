package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hasher hashes refresh-token secrets with an unsalted SHA-256 digest.
// Secrets must be high-entropy random values.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Matches compares in constant time.
func (h SHA256Hasher) Matches(hash, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(hash), []byte(h.Hash(secret))) == 1
}
