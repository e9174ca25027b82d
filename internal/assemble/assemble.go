// Package assemble implements the Candidate Assembler: it turns a raw query
// string into a QueryAnalysis, pulls an over-fetched candidate set from the
// vector index, optionally widens that set by one graph hop, and dedups
// down to a clean []model.Candidate for the Cognitive Scorer.
package assemble

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/elefante-ai/elefante/internal/classifier"
	"github.com/elefante-ai/elefante/internal/embedding"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/metadata"
	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/internal/vectorindex"
)

// minOverfetch is the floor on how many candidates to pull from the vector
// index regardless of the caller's requested limit, so a limit=1 query
// still gives the scorer enough of a pool to rank meaningfully.
const minOverfetch = 30

// MemorySource is the store dependency Assemble hydrates candidates
// against. A vectorindex.Result only carries the Metadata Codec's
// primitive cognitive fields (concepts, surfaces_when, authority_score,
// domain, memory_type) — Content, CreatedAt, LastAccessedAt, and
// AccessCount live only in the primary store, so every candidate is
// hydrated through this interface before it reaches the Cognitive Scorer.
type MemorySource interface {
	Get(ctx context.Context, id uuid.UUID) (model.Memory, error)
}

// Assembler builds candidate sets for a query.
type Assembler struct {
	index      vectorindex.Index
	graph      graphstore.Store
	store      MemorySource
	embedder   embedding.Provider
	classifier classifier.Classifier
	logger     *slog.Logger
}

// New constructs an Assembler. graph may be nil, in which case candidate
// widening via graph expansion is skipped — the assembler degrades to
// vector-only retrieval, never an error.
func New(index vectorindex.Index, graph graphstore.Store, store MemorySource, embedder embedding.Provider, cls classifier.Classifier, logger *slog.Logger) *Assembler {
	if cls == nil {
		cls = classifier.NoopClassifier{}
	}
	return &Assembler{index: index, graph: graph, store: store, embedder: embedder, classifier: cls, logger: logger}
}

// Analyze produces a QueryAnalysis for query without performing retrieval.
// Split out from Assemble so the Cognitive Scorer and Proactive Surfacer
// can both consume the same analysis without re-deriving it.
func (a *Assembler) Analyze(ctx context.Context, query string) model.QueryAnalysis {
	intentRaw, err := a.classifier.ClassifyIntent(ctx, query)
	if err != nil {
		a.logger.Warn("assemble: classifier failed, defaulting intent", "error", err)
		intentRaw = ""
	}
	intent := classifier.Normalize(intentRaw, a.logger)

	return model.QueryAnalysis{
		Query:    query,
		Intent:   string(intent),
		Concepts: extractConcepts(query),
	}
}

// Assemble runs the full pipeline: embed the query, over-fetch from the
// vector index, optionally widen via one graph hop, dedup by memory ID
// keeping the highest vector score per memory (the same dedup discipline
// the teacher's decision hydration step used), then hydrate every surviving
// candidate from the primary store so the scorer sees real Content,
// CreatedAt, LastAccessedAt, and AccessCount instead of the vector index's
// cognitive-fields-only payload.
func (a *Assembler) Assemble(ctx context.Context, qa model.QueryAnalysis, filter model.Filter, limit int) ([]model.Candidate, error) {
	if limit <= 0 {
		limit = 10
	}
	k := limit * 3
	if k < minOverfetch {
		k = minOverfetch
	}

	queryVec, err := a.embedder.Embed(ctx, qa.Query)
	if err != nil {
		return nil, fmt.Errorf("assemble: embed query: %w", err)
	}

	results, err := a.index.Query(ctx, queryVec, vectorindex.Filter{Domain: filter.Domain, MemoryType: filter.MemoryType}, k)
	if err != nil {
		return nil, fmt.Errorf("assemble: query vector index: %w", err)
	}

	byID := make(map[uuid.UUID]model.Candidate, len(results))
	for _, r := range results {
		if existing, ok := byID[r.MemoryID]; ok && existing.VectorScore >= r.Score {
			continue
		}
		byID[r.MemoryID] = toCandidate(r, false)
	}

	if a.graph != nil {
		a.widenViaGraph(ctx, results, byID)
	}

	a.hydrate(ctx, byID)

	out := make([]model.Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	return out, nil
}

// hydrate fills in the persisted fields a vector-index hit or graph-widened
// stub doesn't carry (Content, CreatedAt, LastAccessedAt, AccessCount) from
// the primary store, keeping the vector score and graph-expansion flag the
// candidate already has. A memory present in the vector index or graph but
// since deleted from the store is dropped rather than scored on zero
// values.
func (a *Assembler) hydrate(ctx context.Context, byID map[uuid.UUID]model.Candidate) {
	for id, c := range byID {
		full, err := a.store.Get(ctx, id)
		if err != nil {
			a.logger.Warn("assemble: hydrate candidate failed, dropping", "memory_id", id, "error", err)
			delete(byID, id)
			continue
		}
		c.Memory = full
		byID[id] = c
	}
}

func toCandidate(r vectorindex.Result, fromGraph bool) model.Candidate {
	return model.Candidate{
		Memory: model.Memory{
			ID:             r.MemoryID,
			Domain:         r.Fields.Domain,
			MemoryType:     r.Fields.MemoryType,
			Concepts:       r.Fields.Concepts,
			SurfacesWhen:   r.Fields.SurfacesWhen,
			AuthorityScore: r.Fields.AuthorityScore,
		},
		VectorScore:     r.Score,
		FromGraphExpand: fromGraph,
	}
}

// widenViaGraph pulls one-hop SHARES_CONCEPT neighbors of the top direct
// hits to improve recall for queries whose best answer doesn't happen to be
// the nearest vector neighbor but is tightly linked to one. Mirrors the
// teacher's CandidateFinder/Searcher split: direct retrieval and graph
// widening are independent concerns composed here, not entangled in the
// vector index itself.
func (a *Assembler) widenViaGraph(ctx context.Context, direct []vectorindex.Result, byID map[uuid.UUID]model.Candidate) {
	const widenFanout = 5
	for i, r := range direct {
		if i >= widenFanout {
			break
		}
		entityID := graphstore.EntityID(r.MemoryID.String(), "memory")
		neighbors, err := a.graph.Neighbors(ctx, entityID, "SHARES_CONCEPT")
		if err != nil {
			a.logger.Warn("assemble: graph widen failed", "memory_id", r.MemoryID, "error", err)
			continue
		}
		for _, n := range neighbors {
			id, err := uuid.Parse(n.Name)
			if err != nil {
				continue
			}
			if _, exists := byID[id]; exists {
				continue
			}
			byID[id] = model.Candidate{
				Memory: model.Memory{
					ID:           id,
					Concepts:     metadata.ParseStringList(n.Props["concepts"]),
					SurfacesWhen: metadata.ParseStringList(n.Props["surfaces_when"]),
				},
				VectorScore:     0,
				FromGraphExpand: true,
			}
		}
	}
}

// extractConcepts is a minimal concept extractor: deduped, lowercased tokens
// of three characters or more, where a token is a run of ASCII letters and
// digits (every other character, including non-ASCII letters, separates
// tokens). The Cognitive Scorer's concept_overlap
// signal only needs a reasonable bag of words to intersect against a
// memory's stored Concepts, not a full NLP pipeline — a heavier extractor is
// free to replace this via a future Classifier-style extension point.
func extractConcepts(query string) []string {
	words := splitWords(query)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return words
}
