package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random hex identifier, tagged with a type prefix such as
// "doc" or "prof" when one is given.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewSecret returns a 64-char hex token for verification and reset links.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
