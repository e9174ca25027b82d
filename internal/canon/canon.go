// Package canon implements the Canonicalizer: a pure, total, deterministic
// normalization used everywhere two strings need to compare equal regardless
// of case, Unicode compatibility forms, or incidental punctuation (accents
// are kept: "café" and "cafe" stay distinct) — concept names, graph entity
// keys, and surface-trigger matching all share this one function so that
// "Node.js", "node js", and "NODE-JS" are the same key.
package canon

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var nonAlnumRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Canonicalize normalizes s for identity comparison: NFKC-normalize, then
// lowercase, then collapse every run of non-alphanumeric characters to a
// single space, then trim. It never errors and never panics — an empty or
// all-punctuation input canonicalizes to "".
//
// The pipeline is idempotent: Canonicalize(Canonicalize(s)) == Canonicalize(s),
// because the output of one pass already satisfies every rule the next pass
// would apply.
func Canonicalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = nonAlnumRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Equal reports whether a and b canonicalize to the same key. Provided as a
// named helper because "canonicalize both sides then compare" is the single
// most common call shape across the engine (concept matching, entity
// identity, surface-trigger matching).
func Equal(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}
