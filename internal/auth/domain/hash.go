package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a raw bearer token using the same strategy as token issuance.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
