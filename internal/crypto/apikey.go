package crypto

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Device API keys have the form "dk_<keyID>_<secret>". The key id is stored in
// the clear for lookup; only a bcrypt hash of the secret is persisted.

const apiKeyPrefix = "dk"

// GenerateAPIKey mints a new device API key and the hash to persist.
func GenerateAPIKey() (key, keyID, secretHash string, err error) {
	keyID, err = RandToken(8)
	if err != nil {
		return "", "", "", err
	}
	secret, err := RandToken(24)
	if err != nil {
		return "", "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash api key: %w", err)
	}
	return strings.Join([]string{apiKeyPrefix, keyID, secret}, "_"), keyID, string(hash), nil
}

// ParseAPIKey splits a presented API key into its id and secret parts.
func ParseAPIKey(key string) (keyID, secret string, err error) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed api key")
	}
	return parts[1], parts[2], nil
}

// VerifyAPIKeySecret checks a presented secret against the stored hash.
func VerifyAPIKeySecret(secretHash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)) == nil
}
