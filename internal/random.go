package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const minSecretSize = 16

// NewSecret returns size bytes of cryptographic randomness.
func NewSecret(size int) ([]byte, error) {
	if size < minSecretSize {
		return nil, errors.New("secret size too small")
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewSecretString is NewSecret encoded as unpadded base64url, suitable for
// environment variables and log-safe display of key IDs.
func NewSecretString(size int) (string, error) {
	b, err := NewSecret(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
