package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of refresh tokens before encoding.
const OpaqueTokenBytes = 64

// GenerateOpaqueToken returns n bytes from crypto/rand encoded as unpadded base64url.
func GenerateOpaqueToken(n int) (string, error) {
	if n < OpaqueTokenBytes {
		n = OpaqueTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 of an opaque token. Only hashes are stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual reports whether providedToken hashes to storedHash, in constant time.
func TokenHashEqual(providedToken, storedHash string) bool {
	if providedToken == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(providedToken)), []byte(storedHash)) == 1
}

// SecretEqual compares a presented shared secret with the configured one in constant time.
// An empty configured secret never matches.
func SecretEqual(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
