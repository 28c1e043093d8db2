// Package checksum computes the content digests used to detect changed
// .bib sources and to tag record versions.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum for text, such as a serialized record.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Unchanged reports whether data still hashes to a previously stored digest.
// An empty digest never matches.
func Unchanged(known string, data []byte) bool {
	return known != "" && known == Sum(data)
}
