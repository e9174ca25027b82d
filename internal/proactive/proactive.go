// Package proactive implements the Proactive Surfacer: given the agent's
// current working context (not an explicit query), it decides which stored
// memories are worth surfacing unprompted. A cheap gate runs first so the
// expensive Cognitive Scorer pass only ever runs over a context that
// actually tripped a trigger — mirroring the teacher's candidate-then-gate-
// then-confirm structure in its conflict scorer, with the trigger types of
// spec §4.5 standing in for the teacher's topic-similarity floor.
package proactive

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elefante-ai/elefante/internal/canon"
	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/internal/score"
)

// MemorySource supplies the candidate pool the Surfacer gates and scores,
// plus the coactivation neighborhoods the Cognitive Scorer's coactivation
// signal reads. Kept minimal and storage-agnostic so tests can substitute an
// in-memory fake.
type MemorySource interface {
	AllMemories(ctx context.Context) ([]model.Memory, error)
	CoactivationNeighbors(ctx context.Context, ids []uuid.UUID) (map[string]map[string]bool, error)
}

// Surfacer decides which memories to surface given a ProactiveContext.
type Surfacer struct {
	source MemorySource
	scorer *score.Scorer
	logger *slog.Logger
}

// New constructs a Surfacer.
func New(source MemorySource, scorer *score.Scorer, logger *slog.Logger) *Surfacer {
	return &Surfacer{source: source, scorer: scorer, logger: logger}
}

// conceptTriggerFloor is the concept_overlap threshold spec §4.5 names for
// the concept trigger gate: "concept_overlap(context, memory) > 0.3".
const conceptTriggerFloor = 0.3

// Suggest returns up to limit memories worth surfacing given pc. Any
// backend error degrades to an empty result (spec §4.5, §7): a broken
// proactive path must never block the agent's actual work. An empty pc
// (spec §4.5: "all empty -> empty result") is rejected before touching
// storage at all.
func (s *Surfacer) Suggest(ctx context.Context, pc model.ProactiveContext, recentIDs map[string]bool, limit int) []model.ScoredMemory {
	if pc.IsEmpty() {
		return nil
	}

	memories, err := s.source.AllMemories(ctx)
	if err != nil {
		s.logger.Warn("proactive: failed to load memories, suppressing suggestions", "error", err)
		return nil
	}

	contextConcepts := extractContextConcepts(pc)
	contextDomain := canon.Canonicalize(filepath.Base(filepath.Dir(pc.FilePath)))

	gated := make([]model.Candidate, 0, len(memories))
	for _, m := range memories {
		if triggered(pc, m, contextConcepts, contextDomain) {
			gated = append(gated, model.Candidate{Memory: m, VectorScore: 0})
		}
	}
	if len(gated) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(gated))
	for i, c := range gated {
		ids[i] = c.Memory.ID
	}
	neighborhoods, err := s.source.CoactivationNeighbors(ctx, ids)
	if err != nil {
		s.logger.Warn("proactive: failed to load coactivation neighborhoods, scoring without them", "error", err)
		neighborhoods = nil
	}

	qa := model.QueryAnalysis{
		Query:    syntheticQuery(pc),
		Concepts: contextConcepts,
		Domain:   contextDomain,
	}
	scored := s.scorer.Score(qa, gated, recentIDs, neighborhoods, time.Now())
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// syntheticQuery builds the newline-joined synthetic query string spec §4.5
// step 1 describes: "concatenating the provided context fields with
// newlines."
func syntheticQuery(pc model.ProactiveContext) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{pc.FilePath, pc.ErrorMessage, pc.ConversationSnippet} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// extractContextConcepts derives a concept bag from the context fields for
// the concept trigger gate and for the synthetic query's concept list — the
// same canonicalized-token extraction the Candidate Assembler uses, so a
// context concept and a stored memory concept compare on equal footing.
func extractContextConcepts(pc model.ProactiveContext) []string {
	fields := []string{pc.FilePath, pc.ErrorMessage, pc.ConversationSnippet}
	fields = append(fields, pc.RecentCommands...)
	fields = append(fields, pc.OpenTopics...)

	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		for _, word := range strings.FieldsFunc(f, func(r rune) bool { return !isWordRune(r) }) {
			c := canon.Canonicalize(word)
			if c == "" || len(c) < 3 || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// triggered is the cheap gate: does m pass at least one of the three trigger
// types spec §4.5 names? Implements the surfaces-trigger-matching Open
// Question decision: canonicalized substring match, not tokenized matching —
// a trigger like "deploy" should fire on "deploying" or "pre-deploy" without
// requiring an exact token split on both sides.
func triggered(pc model.ProactiveContext, m model.Memory, contextConcepts []string, contextDomain string) bool {
	return surfacesTrigger(pc, m) || conceptTrigger(contextConcepts, m) || domainTrigger(contextDomain, m)
}

func surfacesTrigger(pc model.ProactiveContext, m model.Memory) bool {
	haystacks := make([]string, 0, 3+len(pc.RecentCommands)+len(pc.OpenTopics))
	haystacks = append(haystacks, pc.FilePath, pc.ErrorMessage, pc.ConversationSnippet)
	haystacks = append(haystacks, pc.RecentCommands...)
	haystacks = append(haystacks, pc.OpenTopics...)

	for _, trigger := range m.SurfacesWhen {
		ct := canon.Canonicalize(trigger)
		if ct == "" {
			continue
		}
		for _, h := range haystacks {
			if containsCanonical(h, ct) {
				return true
			}
		}
	}
	return false
}

// conceptTrigger implements spec §4.5's second gate: concept_overlap(context,
// memory) > 0.3, using the same Jaccard definition the Cognitive Scorer uses
// for its concept_overlap signal.
func conceptTrigger(contextConcepts []string, m model.Memory) bool {
	if len(contextConcepts) == 0 || len(m.Concepts) == 0 {
		return false
	}
	setA := make(map[string]bool, len(contextConcepts))
	for _, c := range contextConcepts {
		setA[canon.Canonicalize(c)] = true
	}
	setB := make(map[string]bool, len(m.Concepts))
	for _, c := range m.Concepts {
		setB[canon.Canonicalize(c)] = true
	}
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return false
	}
	return float64(intersection)/float64(union) > conceptTriggerFloor
}

// domainTrigger implements spec §4.5's optional third gate: the inferred
// context domain matches the memory's domain. The file path's directory
// name is used as a coarse domain hint, since that is the only context field
// plausibly carrying a domain signal without a classifier in the loop.
func domainTrigger(contextDomain string, m model.Memory) bool {
	if contextDomain == "" || m.Domain == "" {
		return false
	}
	return canon.Equal(contextDomain, m.Domain)
}

func containsCanonical(haystack, canonicalNeedle string) bool {
	ch := canon.Canonicalize(haystack)
	if ch == "" {
		return false
	}
	return strings.Contains(ch, canonicalNeedle)
}
