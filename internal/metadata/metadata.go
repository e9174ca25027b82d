// Package metadata implements the Metadata Codec: it round-trips a memory's
// typed cognitive fields (concepts, surfaces_when, authority_score) through
// the primitive-only map[string]any payload that the vector index stores
// alongside each embedding. Qdrant payloads support only JSON primitives, so
// everything a candidate's scoring depends on has to survive that trip.
package metadata

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/elefante-ai/elefante/internal/canon"
)

// defaultAuthorityScore is what a memory's authority_score decodes to when
// neither the top-level key nor custom_metadata carries a parseable value
// (spec §4.2: "defaulting to 0.5 if absent").
const defaultAuthorityScore = 0.5

// CognitiveFields is the subset of a Memory that the vector index payload
// carries, so Candidate Assembler can filter and the Cognitive Scorer can
// read concept/authority signals without re-fetching the full record from
// internal/store on every candidate.
type CognitiveFields struct {
	Concepts       []string
	SurfacesWhen   []string
	AuthorityScore float32
	Domain         string
	MemoryType     string
}

// Encode produces the primitive-only payload map stored in the vector
// index. Every value is a string, a float64, or a []any of strings, since
// those are the only shapes that survive a Qdrant payload round trip intact.
// concepts and surfaces_when are canonicalized before write so every reader
// downstream (including ones that bypass Decode) sees normalized labels;
// authority_score is clamped to [0,1] before write, per spec §4.2.
func Encode(f CognitiveFields) map[string]any {
	return map[string]any{
		"concepts":        toAnySlice(canonicalizeDedup(f.Concepts)),
		"surfaces_when":   toAnySlice(canonicalizeDedup(f.SurfacesWhen)),
		"authority_score": clamp01(float64(f.AuthorityScore)),
		"domain":          f.Domain,
		"memory_type":     f.MemoryType,
	}
}

// Decode reads CognitiveFields back out of a vector index payload. It never
// errors: any field with the wrong shape or an absent key degrades to its
// zero value (or, for authority_score, the spec default) rather than failing
// the whole candidate, since a single malformed payload must never take down
// an entire retrieval pass.
//
// Top-level typed keys take precedence; custom_metadata is consulted only
// when the top-level key is absent, and never allowed to shadow a top-level
// value that is present (spec §4.2: "a separate custom_metadata container is
// never allowed to shadow them").
func Decode(meta map[string]any) CognitiveFields {
	custom, _ := meta["custom_metadata"].(map[string]any)

	concepts := lookupWithFallback(meta, custom, "concepts")
	surfacesWhen := lookupWithFallback(meta, custom, "surfaces_when")
	authorityRaw := lookupWithFallback(meta, custom, "authority_score")

	return CognitiveFields{
		Concepts:       canonicalizeDedup(ParseStringList(concepts)),
		SurfacesWhen:   canonicalizeDedup(ParseStringList(surfacesWhen)),
		AuthorityScore: float32(decodeAuthorityScore(authorityRaw)),
		Domain:         asString(meta["domain"]),
		MemoryType:     asString(meta["memory_type"]),
	}
}

func lookupWithFallback(top, custom map[string]any, key string) any {
	if v, ok := top[key]; ok && v != nil {
		return v
	}
	if custom != nil {
		return custom[key]
	}
	return nil
}

// decodeAuthorityScore parses v as a real number clamped to [0,1], falling
// back to defaultAuthorityScore when v is absent or unparseable.
func decodeAuthorityScore(v any) float64 {
	if v == nil {
		return defaultAuthorityScore
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return defaultAuthorityScore
	}
	f, ok := tryFloat(v)
	if !ok {
		return defaultAuthorityScore
	}
	return clamp01(f)
}

func tryFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// canonicalizeDedup canonicalizes every element and removes duplicates while
// preserving first-seen order, per spec §4.2's final decode step.
func canonicalizeDedup(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		c := canon.Canonicalize(item)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// ParseStringList recovers a []string from a value of unknown shape. It is
// the back-compatible fallback chain the engine relies on whenever a string
// list might have been written by an older encoder, hand-edited, or
// produced by an upstream tool that didn't go through Encode:
//
//  1. []any / []string — the native, Encode-produced shape.
//  2. A JSON-array-looking string ("[\"a\", \"b\"]") — attempt a real
//     json.Unmarshal first; only on failure fall back to a permissive parse:
//     strip the brackets, split on comma, trim whitespace and matching quotes
//     from each element.
//  3. A comma-separated plain string ("a, b, c") — split and trimmed.
//  4. A single non-empty token — returned as a one-element list.
//  5. Anything else (nil, a number, an empty string) — the empty list. A
//     malformed fragment such as "[go, sq" is not special-cased: it goes
//     through steps 3 and 4 like any other string. This function never
//     panics and never returns an
//     error; callers can always trust its output is a valid, if possibly
//     empty, []string.
func ParseStringList(v any) (result []string) {
	defer func() {
		if recover() != nil {
			result = []string{}
		}
	}()

	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return parseStringListFromString(t)
	default:
		return []string{}
	}
}

func parseStringListFromString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}

	// Step 2: JSON-array-looking or Python-list-literal string. A genuine
	// JSON array is tried first so a comma embedded inside a quoted element
	// (e.g. ["a, b", "c"]) is parsed correctly rather than split on; the
	// permissive bracket-strip-and-split only runs when the string isn't
	// actually valid JSON.
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var parsed []string
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			if parsed == nil {
				parsed = []string{}
			}
			return parsed
		}

		inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		if strings.TrimSpace(inner) == "" {
			return []string{}
		}
		parts := strings.Split(inner, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			p = strings.Trim(p, `"'`)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	// Step 3: comma-separated plain string.
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	// Step 4: single token.
	return []string{s}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
