// Package snapshot generates the curation snapshot file the dashboard
// reads: a point-in-time JSON graph view of every memory's health, every
// graph entity, and every edge between them, written atomically so a
// concurrent reader never observes a partial file. The dashboard holds no
// reference to the graph store or vector index at all (see
// internal/dashboard) — this package is the only writer of the artifact it
// reads.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/elefante-ai/elefante/internal/canon"
	"github.com/elefante-ai/elefante/internal/curate"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/model"
)

// MemorySource supplies the full memory set to snapshot.
type MemorySource interface {
	All(ctx context.Context) ([]model.Memory, error)
}

const (
	nodeTypeMemory = "memory"
	nodeTypeEntity = "entity"

	edgeTypeSharesConcept     = "SHARES_CONCEPT"
	edgeTypeSupports          = "SUPPORTS"
	edgeTypeContradicts       = "CONTRADICTS"
	edgeTypePotentialConflict = "POTENTIAL_CONFLICT"
)

// Node is one graph node in the snapshot file: either a memory or a graph
// store entity. Properties is a flat string-keyed map matching spec §6's
// schema — concepts and surfaces_when are carried as JSON-encoded strings,
// the same primitive-only discipline internal/metadata applies to the vector
// index payload; potential_conflicts is a plain list of memory ID strings.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"` // "memory" or "entity"
	Properties map[string]any `json:"properties"`
}

// Edge is one directed edge in the snapshot file.
type Edge struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
}

// Stats summarizes the snapshot's contents for the dashboard's header.
type Stats struct {
	TotalMemories int `json:"total_memories"`
	TotalEntities int `json:"total_entities"`
	TotalEdges    int `json:"total_edges"`
	Healthy       int `json:"healthy"`
	Stale         int `json:"stale"`
	Orphan        int `json:"orphan"`
	AtRisk        int `json:"at_risk"`
}

// Snapshot is the full JSON document written to disk, matching the
// generated_at/stats/nodes/edges schema the dashboard's one and only read
// path consumes.
type Snapshot struct {
	GeneratedAt string `json:"generated_at"`
	Stats       Stats  `json:"stats"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Generate builds a Snapshot from the current memory set and graph store.
// The caller is responsible for holding the graph store's write lock for
// the duration of this call when one is in use, per spec §5's requirement
// that the snapshot only be generated when no write is in flight — mirrors
// the exclusive-processing-window discipline the teacher documents for its
// own drain step. graph may be nil, in which case every memory is treated
// as having zero graph connections and no entity nodes or entity edges
// appear in the output.
func Generate(ctx context.Context, source MemorySource, graph graphstore.Store, analyzer *curate.Analyzer, now time.Time) (Snapshot, error) {
	memories, err := source.All(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: load memories: %w", err)
	}

	health, conflicts, err := analyzer.AnalyzeAll(ctx, memories, graph, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: analyze: %w", err)
	}

	nodes := make([]Node, 0, len(memories))
	stats := Stats{TotalMemories: len(memories)}
	for _, m := range memories {
		h := health[m.ID]
		switch h {
		case model.HealthHealthy:
			stats.Healthy++
		case model.HealthStale:
			stats.Stale++
		case model.HealthOrphan:
			stats.Orphan++
		case model.HealthAtRisk:
			stats.AtRisk++
		}
		nodes = append(nodes, memoryNode(m, h))
	}

	var edges []Edge
	for _, m := range memories {
		for _, c := range m.Contradicts {
			edges = append(edges, Edge{Src: m.ID.String(), Dst: c.String(), Type: edgeTypeContradicts})
		}
	}
	for _, c := range conflicts {
		edges = append(edges, Edge{Src: c.MemoryA.String(), Dst: c.MemoryB.String(), Type: edgeTypePotentialConflict})
	}
	edges = append(edges, sharesConceptEdges(memories, conflicts)...)

	if graph != nil {
		entities, err := graph.AllEntities(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: list entities: %w", err)
		}
		stats.TotalEntities = len(entities)
		for _, e := range entities {
			nodes = append(nodes, entityNode(e))
		}

		graphEdges, err := graph.AllEdges(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: list edges: %w", err)
		}
		// Graph store edges link entity-keyed IDs ("entity:" plus the
		// canonical type and name), never raw memory UUIDs, so they never collide
		// with the Contradicts/potential-conflict edges derived from Memory
		// fields above. They pass through as SUPPORTS, the one spec-listed
		// edge type not otherwise derivable from a Memory record.
		for _, e := range graphEdges {
			edges = append(edges, Edge{Src: e.Src, Dst: e.Dst, Type: edgeTypeSupports})
		}
	}

	stats.TotalEdges = len(edges)

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		if edges[i].Dst != edges[j].Dst {
			return edges[i].Dst < edges[j].Dst
		}
		return edges[i].Type < edges[j].Type
	})

	return Snapshot{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Stats:       stats,
		Nodes:       nodes,
		Edges:       edges,
	}, nil
}

func memoryNode(m model.Memory, health model.Health) Node {
	conflictIDs := make([]string, len(m.PotentialConflicts))
	for i, id := range m.PotentialConflicts {
		conflictIDs[i] = id.String()
	}
	return Node{
		ID:   m.ID.String(),
		Type: nodeTypeMemory,
		Properties: map[string]any{
			"title":                titleOf(m.Content),
			"domain":               m.Domain,
			"memory_type":          m.MemoryType,
			"concepts":             mustJSON(m.Concepts),
			"surfaces_when":        mustJSON(m.SurfacesWhen),
			"authority_score":      m.AuthorityScore,
			"health":               string(health),
			"potential_conflicts": conflictIDs,
		},
	}
}

func entityNode(e graphstore.Entity) Node {
	props := map[string]any{
		"title": e.Name,
		"type":  e.Type,
	}
	for k, v := range e.Props {
		props[k] = v
	}
	return Node{ID: e.ID, Type: nodeTypeEntity, Properties: props}
}

// titleOf derives a short display title from a memory's content: the first
// line, truncated, since the stored content can be arbitrarily long prose
// and the dashboard needs something label-sized to render on a node.
func titleOf(content string) string {
	const maxLen = 80
	firstLine := content
	for i, r := range content {
		if r == '\n' {
			firstLine = content[:i]
			break
		}
	}
	if len(firstLine) <= maxLen {
		return firstLine
	}
	return firstLine[:maxLen] + "…"
}

func mustJSON(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// sharesConceptEdges emits a SHARES_CONCEPT edge for every memory pair with
// nonzero concept overlap that wasn't already flagged as a potential
// conflict, so the dashboard graph shows thematic links distinctly from
// flagged conflicts rather than duplicating the same pair under two edge
// types.
func sharesConceptEdges(memories []model.Memory, conflicts []model.ConflictReport) []Edge {
	flagged := make(map[[2]uuid.UUID]bool, len(conflicts))
	for _, c := range conflicts {
		flagged[pairKey(c.MemoryA, c.MemoryB)] = true
	}

	canonConcepts := make([][]string, len(memories))
	for i, m := range memories {
		cs := make([]string, len(m.Concepts))
		for j, c := range m.Concepts {
			cs[j] = canon.Canonicalize(c)
		}
		canonConcepts[i] = cs
	}

	var edges []Edge
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			if flagged[pairKey(memories[i].ID, memories[j].ID)] {
				continue
			}
			if overlaps(canonConcepts[i], canonConcepts[j]) {
				edges = append(edges, Edge{
					Src:  memories[i].ID.String(),
					Dst:  memories[j].ID.String(),
					Type: edgeTypeSharesConcept,
				})
			}
		}
	}
	return edges
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}

// WriteFile serializes snap and writes it to path atomically: write to a
// temp file in the same directory, then os.Rename, so a reader polling the
// path never sees a half-written file.
func WriteFile(snap Snapshot, path string) error {
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// ReadFile reads and parses the snapshot file at path.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: unmarshal %s: %w", path, err)
	}
	return snap, nil
}
