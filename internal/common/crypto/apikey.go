// internal/common/crypto/apikey.go
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const (
	APIKeyPrefix    = "ns_skc_"
	apiKeyRandBytes = 20
	lookupPrefixLen = 12
	bcryptCost      = 12
)

// GenerateAPIKey returns ns_skc_ followed by 40 hex characters.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey produces the bcrypt hash stored for an app.
func HashAPIKey(raw string) (string, error) {
	return hashWithCost(raw, bcryptCost)
}

func hashWithCost(raw string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CompareAPIKey reports whether raw matches the stored hash.
func CompareAPIKey(raw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// LookupPrefix is the indexed leading part of a key.
func LookupPrefix(raw string) string {
	if len(raw) <= lookupPrefixLen {
		return raw
	}
	return raw[:lookupPrefixLen]
}

// Digest is the cache key for a raw credential.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
