// Package digest computes the content fingerprint used to identify issued certificates.
package digest

import (
	"encoding/hex"
	"strings"

	"github.com/minio/sha256-simd"
)

// Size is the length of a hex-encoded digest.
const Size = sha256.Size * 2

// Sum returns the lowercase hex SHA-256 of b. Empty input is valid.
func Sum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Normalize trims surrounding whitespace from a user-supplied digest.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// IsValid reports whether s looks like a digest produced by Sum.
func IsValid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
