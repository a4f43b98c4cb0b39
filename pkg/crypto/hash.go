package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashHex returns the hex encoded SHA-256 digest of data
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LeadingZeros counts the leading '0' characters of a hex digest
func LeadingZeros(digest string) int {
	for i := 0; i < len(digest); i++ {
		if digest[i] != '0' {
			return i
		}
	}
	return len(digest)
}
