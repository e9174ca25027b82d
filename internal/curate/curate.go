// Package curate implements the Curation Analyzer: it assigns a Health
// state to every memory per the fixed priority chain in spec §4.6, and
// soft-flags pairs of memories whose concept sets overlap enough to be a
// likely (never auto-confirmed) contradiction. AnalyzeAll's worker pool is
// adapted from the teacher's conflicts.Scorer.BackfillScoring — bounded
// concurrency via golang.org/x/sync/errgroup rather than an unbounded
// goroutine-per-pair fan-out.
package curate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/elefante-ai/elefante/internal/canon"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/model"
)

// Analyzer assigns health states and finds potential conflicts.
type Analyzer struct {
	staleAfter       time.Duration
	jaccardThreshold float64
	workers          int
}

// New constructs an Analyzer. jaccardThreshold is the concept-overlap floor
// for flagging a pair as a potential conflict (spec default 0.60).
func New(staleAfter time.Duration, jaccardThreshold float64, workers int) *Analyzer {
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{staleAfter: staleAfter, jaccardThreshold: jaccardThreshold, workers: workers}
}

// Health assigns a single memory's health state, given the count of graph
// connections it has (0 means orphan) and now for staleness comparison.
// Priority order is fixed and must not be reordered: superseded beats
// everything, then an explicit potential-conflict flag, then staleness,
// then orphan status, and only then is a memory healthy.
func (a *Analyzer) Health(m model.Memory, graphConnections int, now time.Time) model.Health {
	if m.SupersededBy != nil {
		return model.HealthAtRisk
	}
	if len(m.PotentialConflicts) > 0 {
		return model.HealthAtRisk
	}
	if now.Sub(m.LastAccessedAt) > a.staleAfter {
		return model.HealthStale
	}
	if graphConnections == 0 {
		return model.HealthOrphan
	}
	return model.HealthHealthy
}

// HealthReason returns the fixed human-readable reason string spec §4.6
// pairs with each priority-chain match — exposed separately from Health so
// the bit-identical-determinism contract in spec §4.6 stays on the cheap
// enum comparison callers already rely on, while explanatory callers
// (snapshot, mcpserver) that want the reason text can ask for it too.
func (a *Analyzer) HealthReason(m model.Memory, graphConnections int, now time.Time) string {
	switch a.Health(m, graphConnections, now) {
	case model.HealthAtRisk:
		if m.SupersededBy != nil {
			return "superseded by newer memory"
		}
		return fmt.Sprintf("%d unresolved potential conflicts", len(m.PotentialConflicts))
	case model.HealthStale:
		return fmt.Sprintf("not accessed in %d days", int(now.Sub(m.LastAccessedAt).Hours()/24))
	case model.HealthOrphan:
		return "no graph connections"
	default:
		return "healthy"
	}
}

// AnalyzeAll computes health for every memory and finds every potential
// conflict pair, using a bounded worker pool so a large memory set doesn't
// spawn one goroutine per pair. graph supplies the connection count each
// memory's Health computation needs; pass nil to treat every memory as
// having zero connections (e.g. in a test fixture with no graph store).
func (a *Analyzer) AnalyzeAll(ctx context.Context, memories []model.Memory, graph graphstore.Store, now time.Time) (map[uuid.UUID]model.Health, []model.ConflictReport, error) {
	health := make(map[uuid.UUID]model.Health, len(memories))
	g := &errgroup.Group{}
	g.SetLimit(a.workers)

	type healthResult struct {
		id     uuid.UUID
		health model.Health
	}
	results := make(chan healthResult, len(memories))

	for _, m := range memories {
		m := m
		g.Go(func() error {
			conns := 0
			if graph != nil {
				n, err := graph.CountEdges(ctx, graphstore.EntityID(m.ID.String(), "memory"))
				if err == nil {
					conns = n
				}
			}
			results <- healthResult{id: m.ID, health: a.Health(m, conns, now)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for r := range results {
		health[r.id] = r.health
	}

	conflicts := a.findPotentialConflicts(memories)
	return health, conflicts, nil
}

// findPotentialConflicts does a naive O(n^2) pairwise scan, but skips any
// pair whose concept sets don't intersect at all before computing the full
// Jaccard score — a concept-inverted-index fast path that keeps the scan
// from touching genuinely unrelated pairs, the one optimization spec §4.6
// explicitly permits.
func (a *Analyzer) findPotentialConflicts(memories []model.Memory) []model.ConflictReport {
	conceptIndex := make(map[string][]int, len(memories)*2)
	canonConcepts := make([][]string, len(memories))
	for i, m := range memories {
		cs := make([]string, len(m.Concepts))
		for j, c := range m.Concepts {
			cs[j] = canon.Canonicalize(c)
			conceptIndex[cs[j]] = append(conceptIndex[cs[j]], i)
		}
		canonConcepts[i] = cs
	}

	seen := make(map[[2]int]bool)
	var reports []model.ConflictReport

	for concept, indices := range conceptIndex {
		_ = concept
		for x := 0; x < len(indices); x++ {
			for y := x + 1; y < len(indices); y++ {
				i, j := indices[x], indices[y]
				if i > j {
					i, j = j, i
				}
				key := [2]int{i, j}
				if seen[key] {
					continue
				}
				seen[key] = true

				// Spec §4.6: "Skip if domain(A) != domain(B) after
				// canonicalization" — a pair in different domains is never a
				// conflict candidate, however much their concepts overlap.
				if !canon.Equal(memories[i].Domain, memories[j].Domain) {
					continue
				}

				overlap, shared := jaccardSet(canonConcepts[i], canonConcepts[j])
				if overlap >= a.jaccardThreshold {
					reports = append(reports, model.ConflictReport{
						MemoryA:        memories[i].ID,
						MemoryB:        memories[j].ID,
						JaccardOverlap: overlap,
						SharedConcepts: shared,
						Reason:         fmt.Sprintf("%.0f%% concept overlap in shared domain", overlap*100),
					})
				}
			}
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].JaccardOverlap > reports[j].JaccardOverlap
	})
	return reports
}

// jaccardSet computes the Jaccard overlap of two canonical concept sets and
// the first three concepts (in a' stable, sorted order) of their
// intersection, per spec §4.6's ConflictReport.shared_concepts.
func jaccardSet(a, b []string) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}
	var intersection []string
	for k := range setA {
		if setB[k] {
			intersection = append(intersection, k)
		}
	}
	sort.Strings(intersection)

	union := len(setA) + len(setB) - len(intersection)
	if union == 0 {
		return 0, nil
	}

	shared := intersection
	if len(shared) > 3 {
		shared = shared[:3]
	}
	return float64(len(intersection)) / float64(union), shared
}
