package security

import (
	"crypto/rand"
	"encoding/hex"
)

// SessionToken returns a cryptographically random session token as a
// 64-character hex string (256 bits of entropy). Tokens are opaque: they
// are verified by database lookup, not by signature.
func SessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
