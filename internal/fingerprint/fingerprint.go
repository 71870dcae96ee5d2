// Package fingerprint computes content hashes for duplicate detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/verifysource/newscrawler/internal/crawl"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// Normalize strips the variation that republished copies of the same article
// pick up in transit: case, punctuation, and whitespace runs.
func Normalize(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = punctuationRe.ReplaceAllString(normalized, "")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Hash returns the hex SHA-256 of the normalized content. Byte-identical
// republished articles collapse to the same hash.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// New builds the fingerprint record for a piece of content.
func New(content string) crawl.Fingerprint {
	return crawl.Fingerprint{
		Hash:     Hash(content),
		HashType: crawl.HashTypeSHA256Normalized,
	}
}
