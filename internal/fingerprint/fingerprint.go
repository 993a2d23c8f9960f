// Package fingerprint computes stable content addresses for collected URLs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex SHA-256 digest of the exact raw URL string.
// No normalization is applied: trailing slashes or query-order differences
// yield distinct fingerprints.
func Hash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
