package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent computes the SHA-256 hash of a payload as a hex string.
// Used for outcome journal entries so payloads can be compared across runs
// without storing the bodies themselves.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
