package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret returns n cryptographically random bytes, hex encoded
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateServerSecrets returns a 256-bit JWT signing secret and a webhook
// secret in the provider's "whsk_" format for local environments.
func GenerateServerSecrets() (jwtSecret, webhookSecret string, err error) {
	jwtSecret, err = GenerateSecret(32)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}

	raw, err := GenerateSecret(24)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return jwtSecret, "whsk_" + raw, nil
}
