package fingerprint

import (
	"strconv"
	"strings"
)

// NormalizeText lowercases, trims and collapses whitespace so trivially
// reformatted copies hash identically.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// TextHash computes a base-36 rolling hash of the normalized text.
// Equality of hashes is the primary text comparator.
func TextHash(s string) string {
	var h uint64
	for _, r := range NormalizeText(s) {
		h = h*31 + uint64(r)
	}
	return strconv.FormatUint(h, 36)
}

// TextSimilarity compares two text hashes. Equal hashes score 1.0.
// Otherwise the score is the positional character-match ratio between the
// hash strings, a non-robust placeholder that catches little beyond
// near-identical hashes. It is kept only as a soft comparator below the
// exact match.
func TextSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	shortest := len(a)
	if len(b) < shortest {
		shortest = len(b)
	}
	matches := 0
	for i := 0; i < shortest; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(longest)
}
