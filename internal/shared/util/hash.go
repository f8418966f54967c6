package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashUserKey returns a filesystem-safe identifier for a user ID.
func HashUserKey(s string) string {
	return SHA256Hex(s)
}

// SHA256Hex hashes s and returns the lowercase hex digest.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashParts joins parts with '|' and hashes the result.
func HashParts(parts ...string) string {
	return SHA256Hex(strings.Join(parts, "|"))
}
