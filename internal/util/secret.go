package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewSecret returns a hex-encoded random secret of n bytes (so 2n hex
// characters). Used for webhook signing secrets; 32 bytes by default.
func NewSecret(n int) (string, error) {
	if n < 24 {
		n = 24
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
