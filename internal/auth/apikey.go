package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix is the literal prefix of every issued key.
const APIKeyPrefix = "oaa_"

const apiKeyHashCost = 10

// NewAPIKey generates a fresh bearer key. The plaintext is shown to the user
// exactly once and only its hash and fingerprint are persisted.
func NewAPIKey() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return APIKeyPrefix + raw
}

// HasAPIKeyPrefix reports whether the presented credential looks like a key.
func HasAPIKeyPrefix(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix)
}

// HashAPIKey returns the bcrypt hash stored for verification.
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), apiKeyHashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FingerprintAPIKey returns a non-secret derived identifier used to locate the
// candidate record by an indexed equality lookup. The fingerprint alone never
// authenticates: VerifyAPIKey must still pass against the stored hash.
func FingerprintAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey reports whether key matches the stored hash.
func VerifyAPIKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
