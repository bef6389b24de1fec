package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize folds case and whitespace so that trivially different spellings
// of the same query map to one cache entry.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Fingerprint returns the deterministic cache key for a query: the first
// 16 bytes of sha256(Normalize(query)), hex encoded (32 chars).
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:16])
}
