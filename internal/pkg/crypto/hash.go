// Package crypto provides checksum and credential sealing utilities.
package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ComputeSHA256 computes the hex-encoded SHA-256 checksum of a byte slice.
func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifySHA256 reports whether data hashes to the expected hex checksum.
// The comparison is case-insensitive and constant time.
func VerifySHA256(data []byte, expected string) bool {
	if !ValidateSHA256(expected) {
		return false
	}
	actual := ComputeSHA256(data)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(strings.ToLower(expected))) == 1
}

// ValidateSHA256 validates that a string is a valid SHA-256 hex hash.
func ValidateSHA256(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
