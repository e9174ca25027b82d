// Package model defines the data types shared by every component of the
// cognitive retrieval and curation engine: the Memory record, the derived
// QueryAnalysis, the Candidate produced by the assembler, and the
// Explanation produced by the scorer.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Health is the curation state assigned to a memory by the Curation
// Analyzer. The zero value is not a valid Health; always set one of the
// named constants.
type Health string

const (
	HealthHealthy Health = "healthy"
	HealthStale   Health = "stale"
	HealthOrphan  Health = "orphan"
	HealthAtRisk  Health = "at_risk"
)

// Memory is a single stored unit of agent-durable knowledge.
//
// Concepts and SurfacesWhen are typed fields owned by the Metadata Codec:
// they round-trip through a primitive-only map when stored in the vector
// index's payload, but are always a []string on this struct. AuthorityScore
// and Importance are independent signals — AuthorityScore feeds the
// Cognitive Scorer's authority signal, Importance is a user/ingestion-time
// weight on how consequential the memory is, unrelated to retrieval rank.
type Memory struct {
	ID             uuid.UUID
	Content        string
	Domain         string
	MemoryType     string
	Concepts       []string
	SurfacesWhen   []string
	AuthorityScore float32
	Importance     float32

	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int

	// SupersededBy, if set, is the memory that replaced this one. The
	// supersession graph formed by this field across all memories is
	// required to be acyclic; internal/store enforces that at write time.
	SupersededBy *uuid.UUID

	// Contradicts holds memory IDs this memory has been confirmed (by a
	// human or an upstream classifier) to directly contradict. This is a
	// stronger, explicit relationship than PotentialConflicts, which the
	// Curation Analyzer only ever infers and never promotes into this set.
	Contradicts []uuid.UUID

	// PotentialConflicts holds memory IDs the Curation Analyzer has
	// soft-flagged via concept-overlap heuristics. Computed only by
	// internal/curate and persisted through internal/store's
	// SetPotentialConflicts; never auto-promoted to Contradicts.
	PotentialConflicts []uuid.UUID
}

// CanonicalKey is the value the Canonicalizer produces for deduplicating and
// matching memory content and concepts; kept here only as a doc anchor —
// the actual function lives in internal/canon to keep it a leaf dependency.

// QueryAnalysis is the Candidate Assembler's structured understanding of an
// incoming query, produced before candidate retrieval so that retrieval and
// scoring can both use it.
type QueryAnalysis struct {
	Query    string
	Intent   string // one of the fixed intent enum; see internal/classifier.
	Concepts []string
	Domain   string // best-effort domain hint, "" if indeterminate.
}

// Candidate is a memory pulled from the vector index (and optionally
// widened via the graph store), carrying just enough retrieval metadata
// for the Cognitive Scorer to work from — it does not yet carry the full
// Explanation, which is the scorer's output, not its input.
type Candidate struct {
	Memory          Memory
	VectorScore     float32 // ANN cosine similarity from the vector index, mapped from [-1, 1] to [0, 1] as (cos+1)/2.
	FromGraphExpand bool    // true if this candidate was added by graph widening rather than direct ANN hit.
}

// SignalExplanation is one weighted term of a composite score.
type SignalExplanation struct {
	Name     string
	Raw      float64 // the signal's own value before weighting, in [0, 1].
	Weight   float64
	Weighted float64 // Raw * Weight; the composite score is the sum of every signal's Weighted value.
	Reason   string  // short human-readable note; carries no semantics a caller should parse.

	// Details carries signal-specific structured data called out by spec §4.4:
	// concept_overlap sets "matched" ([]string), domain_match sets "domain"
	// (string), temporal sets "days_since_access" (int). Other signals leave
	// this nil.
	Details map[string]any
}

// Explanation is the structured, auditable record of how a ScoredMemory's
// composite score was produced. Signals appear in the fixed order defined
// by internal/score, and their Weighted values sum to Composite within
// floating-point tolerance — that invariant is structural, not just
// documented, because internal/score builds Composite by summing these
// same values.
type Explanation struct {
	Signals   []SignalExplanation
	Composite float64
}

// ScoredMemory is a Candidate after the Cognitive Scorer has run.
type ScoredMemory struct {
	Memory      Memory
	Explanation Explanation
}

// ConflictReport is one soft-flagged potential conflict found by the
// Curation Analyzer: a pair of memories, in the same domain, whose concept
// overlap crossed the configured Jaccard threshold. Per spec §4.6 this is a
// soft flag only — it populates PotentialConflicts, never Contradicts.
type ConflictReport struct {
	MemoryA        uuid.UUID
	MemoryB        uuid.UUID
	JaccardOverlap float64
	// SharedConcepts holds up to the first three canonical concepts in the
	// intersection, per spec §4.6 ("shared_concepts = first 3 of intersection").
	SharedConcepts []string
	Reason         string
}

// ProactiveContext is the trigger information passed to the Proactive
// Surfacer: the agent's current working context, used to gate which
// memories are worth the cost of full scoring. Mirrors spec §4.5's named
// subset {file_path, error_message, conversation_snippet} exactly;
// RecentCommands and OpenTopics are an additional, optional widening this
// implementation supports beyond the three the spec names, still subject to
// the same "all empty -> empty result" contract.
type ProactiveContext struct {
	FilePath            string
	ErrorMessage        string
	ConversationSnippet string
	RecentCommands      []string
	OpenTopics          []string
}

// IsEmpty reports whether every context field is empty, in which case the
// Proactive Surfacer must return an empty result without touching storage
// (spec §4.5: "context ... all empty -> empty result").
func (c ProactiveContext) IsEmpty() bool {
	return c.FilePath == "" && c.ErrorMessage == "" && c.ConversationSnippet == "" &&
		len(c.RecentCommands) == 0 && len(c.OpenTopics) == 0
}

// Filter narrows candidate retrieval in the Candidate Assembler.
type Filter struct {
	Domain     string // "" means unrestricted.
	MemoryType string // "" means unrestricted.
}
