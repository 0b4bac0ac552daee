// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint returns a stable hash of a normalized query expression, used
// as the retrieval cache key. Normalization lowercases the expression and
// collapses whitespace so cosmetic differences do not fragment the cache.
// The fingerprint is the first 16 hex characters of the SHA-256 digest.
func Fingerprint(expression string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(expression)), " ")
	h := sha256.New()
	h.Write([]byte(normalized))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
