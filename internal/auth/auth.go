// Package auth issues and verifies client API keys. Keys are random
// nanoids shown to the client exactly once; only their SHA-256 digest is
// stored, and lookups go by digest.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"replay-tracker/internal/constants"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

func NewAPIKey() (string, error) {
	key, err := gonanoid.New(constants.APIKeyLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return key, nil
}

func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
