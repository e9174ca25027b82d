// Package score implements the Cognitive Scorer: a six-signal weighted
// composite over each Candidate, producing a ScoredMemory with a structured,
// auditable Explanation. Every signal function here is total and
// side-effect-free — score.Score never touches the vector index, the graph
// store, or the clock: the temporal signal measures against the now
// parameter the caller passes, which keeps tests deterministic.
package score

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/elefante-ai/elefante/internal/canon"
	"github.com/elefante-ai/elefante/internal/model"
)

// Weights are fixed per spec §4.4 and sum to 1.0. Declared individually
// (rather than as a single struct literal) so each has a name a reader can
// grep for independent of the others, matching the teacher's style of
// naming tuned constants rather than burying them in one literal.
const (
	weightVectorSimilarity = 0.30
	weightConceptOverlap   = 0.20
	weightDomainMatch      = 0.15
	weightCoactivation     = 0.10
	weightAuthority        = 0.15
	weightTemporal         = 0.10
)

// The temporal signal decays as exp(-lambda*days); lambda is the configured
// per-day rate passed to New (default 0.01/day, per SPEC_FULL.md's Open
// Questions ledger), not a constant here.

// Scorer computes composite scores for a candidate set.
type Scorer struct {
	decayLambda float64
}

// New constructs a Scorer. decayLambda is the per-day temporal decay rate
// (spec default 0.01).
func New(decayLambda float64) *Scorer {
	return &Scorer{decayLambda: decayLambda}
}

// Score ranks candidates against qa, returning one ScoredMemory per
// candidate sorted descending by composite score. recentIDs is the set of
// memory IDs accessed earlier in the current session. neighborhoods maps a
// candidate's memory ID to its coactivation neighborhood — the set of memory
// IDs historically co-accessed with it in the same search, across all
// sessions (only recentIDs is session-scoped) — and feeds the coactivation
// signal alongside
// recentIDs; a candidate with no entry in neighborhoods scores 0 on that
// signal, same as a memory with no co-access history.
func (s *Scorer) Score(qa model.QueryAnalysis, candidates []model.Candidate, recentIDs map[string]bool, neighborhoods map[string]map[string]bool, now time.Time) []model.ScoredMemory {
	out := make([]model.ScoredMemory, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, model.ScoredMemory{
			Memory:      c.Memory,
			Explanation: s.explain(qa, c, recentIDs, neighborhoods, now),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Explanation.Composite != out[j].Explanation.Composite {
			return out[i].Explanation.Composite > out[j].Explanation.Composite
		}
		// Deterministic tie-break per spec §4.4: higher authority *signal*
		// (not the raw stored AuthorityScore field — the signal also folds
		// in access_count), then higher vector_similarity, then lower ID.
		ai, aj := out[i].Explanation.Signals[signalIdxAuthority].Raw, out[j].Explanation.Signals[signalIdxAuthority].Raw
		if ai != aj {
			return ai > aj
		}
		vi, vj := out[i].Explanation.Signals[signalIdxVectorSimilarity].Raw, out[j].Explanation.Signals[signalIdxVectorSimilarity].Raw
		if vi != vj {
			return vi > vj
		}
		return out[i].Memory.ID.String() < out[j].Memory.ID.String()
	})
	return out
}

// Fixed signal order, per spec §4.4: "Exactly six signal entries, in the
// fixed order above." Used both to build Explanation.Signals and to look up
// a named signal's Raw value for tie-breaking without a second pass.
const (
	signalIdxVectorSimilarity = iota
	signalIdxConceptOverlap
	signalIdxDomainMatch
	signalIdxCoactivation
	signalIdxAuthority
	signalIdxTemporal
)

func (s *Scorer) explain(qa model.QueryAnalysis, c model.Candidate, recentIDs map[string]bool, neighborhoods map[string]map[string]bool, now time.Time) model.Explanation {
	vecSim := vectorSimilarity(c)
	overlap, matched := conceptOverlap(qa.Concepts, c.Memory.Concepts)
	domainScore, domainMatched := domainMatch(qa.Domain, c.Memory.Domain)
	coact := coactivation(recentIDs, neighborhoods[c.Memory.ID.String()])
	auth := authority(c.Memory.AuthorityScore, c.Memory.AccessCount)
	temp, days := temporal(c.Memory.LastAccessedAt, now, s.decayLambda)

	signals := []model.SignalExplanation{
		weighted("vector_similarity", vecSim, weightVectorSimilarity,
			fmt.Sprintf("cosine similarity %.2f", vecSim), nil),
		weighted("concept_overlap", overlap, weightConceptOverlap,
			conceptOverlapReason(overlap, matched), map[string]any{"matched": matched}),
		weighted("domain_match", domainScore, weightDomainMatch,
			domainMatchReason(domainScore, domainMatched), map[string]any{"domain": domainMatched}),
		weighted("coactivation", coact, weightCoactivation,
			"fraction of the recent-access window in this memory's coactivation neighborhood", nil),
		weighted("authority", auth, weightAuthority,
			fmt.Sprintf("authority_score and access history combine to %.2f", auth), nil),
		weighted("temporal", temp, weightTemporal,
			fmt.Sprintf("%d days since last access", days), map[string]any{"days_since_access": days}),
	}

	var composite float64
	for _, sig := range signals {
		composite += sig.Weighted
	}

	return model.Explanation{Signals: signals, Composite: composite}
}

func weighted(name string, raw, weight float64, reason string, details map[string]any) model.SignalExplanation {
	return model.SignalExplanation{Name: name, Raw: raw, Weight: weight, Weighted: raw * weight, Reason: reason, Details: details}
}

func conceptOverlapReason(overlap float64, matched []string) string {
	if overlap == 0 {
		return "no shared concepts"
	}
	return fmt.Sprintf("shares concepts: %v", matched)
}

func domainMatchReason(score float64, domain string) string {
	switch score {
	case 1:
		return fmt.Sprintf("same domain %q", domain)
	case 0.5:
		return "one side is the general domain"
	default:
		return "different domains"
	}
}

// vectorSimilarity is the candidate's vector score from the Candidate
// Assembler: the vector index maps cosine similarity from [-1, 1] onto
// [0, 1] as (cos+1)/2, so it arrives already in [0, 1]. Graph-widened
// candidates carry a zero vector score by construction (they were never
// ranked against the query embedding), which correctly contributes zero to
// this signal rather than an inflated or undefined value.
func vectorSimilarity(c model.Candidate) float64 {
	return float64(c.VectorScore)
}

// conceptOverlap is the Jaccard similarity between the query's extracted
// concepts and the memory's stored concepts, per spec §4.4 ("0 if either set
// is empty"). Also returns the matched canonical concepts for the
// explanation's details.matched (spec: "lists at least one canonical
// concept present in both ... whenever score > 0").
func conceptOverlap(queryConcepts, memoryConcepts []string) (float64, []string) {
	if len(queryConcepts) == 0 || len(memoryConcepts) == 0 {
		return 0, nil
	}
	setA := toCanonicalSet(queryConcepts)
	setB := toCanonicalSet(memoryConcepts)

	var matched []string
	for k := range setA {
		if setB[k] {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	union := len(setA) + len(setB) - len(matched)
	if union == 0 {
		return 0, nil
	}
	return float64(len(matched)) / float64(union), matched
}

func toCanonicalSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[canon.Canonicalize(item)] = true
	}
	return set
}

// domainMatch implements spec §4.4 exactly: 1.0 if the canonical domains are
// equal, 0.5 if either side is (or defaults to) "general", 0.0 otherwise. An
// empty domain defaults to "general" per spec §3 ("default general if
// missing"), so an indeterminate query domain degrades to the partial-credit
// case rather than zero.
func domainMatch(queryDomain, memoryDomain string) (float64, string) {
	q := canon.Canonicalize(queryDomain)
	if q == "" {
		q = "general"
	}
	m := canon.Canonicalize(memoryDomain)
	if m == "" {
		m = "general"
	}

	if q == m {
		return 1, m
	}
	if q == "general" || m == "general" {
		return 0.5, m
	}
	return 0, m
}

// coactivation is the fraction of the last R accessed memory ids (recentIDs)
// that lie in this memory's coactivation neighborhood — the set of memory
// IDs historically co-accessed with it in the same search, per spec §4.4. 0
// if recentIDs is empty or the memory has no coactivation history.
func coactivation(recentIDs map[string]bool, neighborhood map[string]bool) float64 {
	if len(recentIDs) == 0 || len(neighborhood) == 0 {
		return 0
	}
	var hits int
	for id := range recentIDs {
		if neighborhood[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(recentIDs))
}

// authority blends the memory's own stored AuthorityScore with how much use
// it has earned, per spec §4.4: 0.6*authority_score + 0.4*min(1, access_count/20).
func authority(authorityScore float32, accessCount int) float64 {
	usage := float64(accessCount) / 20
	if usage > 1 {
		usage = 1
	}
	return 0.6*clamp01(float64(authorityScore)) + 0.4*usage
}

// temporal is an exponential recency decay: exp(-lambda * daysSinceAccess).
// A memory accessed moments ago scores near 1.0; one untouched for a long
// time decays toward 0 at the configured rate. Also returns the integer day
// count for the explanation's details.days_since_access.
func temporal(lastAccessed, now time.Time, lambda float64) (float64, int) {
	if lastAccessed.IsZero() {
		return 0, 0
	}
	days := now.Sub(lastAccessed).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-lambda * days), int(days)
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
