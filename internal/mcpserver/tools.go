package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/elefante-ai/elefante/internal/canon"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/metadata"
	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/internal/vectorindex"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("memory_search",
			mcplib.WithDescription(`Search stored memories by meaning, not just keywords.

WHEN TO USE: before acting on something you might already have a stored
opinion, preference, or decision about. Read each result's explanation —
it breaks the composite score down into vector_similarity, concept_overlap,
domain_match, coactivation, authority, and temporal signals, so you can see
*why* a memory ranked where it did, not just that it did.

mode="semantic" (default) ranks by embedding similarity plus the five other
signals. mode="concept" skips the vector index entirely and ranks by shared
concepts, domain, coactivation, authority, and recency — useful when you already
know the exact concept label you're looking for and want to bypass
embedding drift.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Natural-language search query."),
				mcplib.Required(),
			),
			mcplib.WithString("mode",
				mcplib.Description(`"semantic" (default) or "concept".`),
			),
			mcplib.WithString("domain",
				mcplib.Description("Optional: restrict results to this domain (canonicalized before matching)."),
			),
			mcplib.WithString("memory_type",
				mcplib.Description("Optional: restrict results to this memory_type."),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of results to return."),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(10),
			),
			mcplib.WithString("format",
				mcplib.Description(`"concise" (default) returns a compact summary per result. "full" returns every stored field.`),
			),
		),
		s.wrapWithMiddleware("memory_search", s.handleMemorySearch),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_add",
			mcplib.WithDescription(`Store a new durable memory.

WHEN TO USE: after learning something worth remembering across sessions —
a preference, a decision and its reasoning, a recurring gotcha, a fact
about the project or the user. Content is never rewritten once stored; if
something changes, add a new memory rather than trying to edit this one.

Give it concepts (a short comma-separated list of canonical topic labels)
and surfaces_when (phrases that should make this memory surface unprompted
via proactive_suggestions) — the more specific these are, the more useful
the memory becomes later.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("content",
				mcplib.Description("The memory content, in full. Never rewritten after storage."),
				mcplib.Required(),
			),
			mcplib.WithString("memory_type",
				mcplib.Description("One of: preference, fact, decision, task, insight, code, note, conversation. Unknown values fall back to \"note\"."),
				mcplib.Required(),
			),
			mcplib.WithString("domain",
				mcplib.Description(`Short topic label, e.g. "project-x" or "deployment". Defaults to "general".`),
			),
			mcplib.WithNumber("importance",
				mcplib.Description("How consequential this memory is, 1 (trivial) to 10 (critical)."),
				mcplib.Min(1),
				mcplib.Max(10),
				mcplib.DefaultNumber(5),
			),
			mcplib.WithString("concepts",
				mcplib.Description(`Comma-separated canonical topic labels, e.g. "deploy, rollback, canary".`),
			),
			mcplib.WithString("surfaces_when",
				mcplib.Description(`Comma-separated trigger phrases that should cause this memory to surface unprompted, e.g. "on ConnectionResetError, before deploy".`),
			),
			mcplib.WithNumber("authority_score",
				mcplib.Description("How authoritative this memory is, 0.0 to 1.0. Defaults to 0.5."),
				mcplib.Min(0),
				mcplib.Max(1),
				mcplib.DefaultNumber(0.5),
			),
		),
		s.wrapWithMiddleware("memory_add", s.handleMemoryAdd),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("proactive_suggestions",
			mcplib.WithDescription(`Surface memories relevant to your current working context without an
explicit query.

WHEN TO USE: while working — pass whatever you currently have on hand
(the file you're editing, an error message you just hit, a snippet of the
conversation). This is deliberately cheap to call often: if nothing trips
a trigger, it returns an empty result rather than forcing a full search.

Never fails loudly — any backend problem degrades silently to an empty
result, since a broken proactive path must never block real work.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("file_path",
				mcplib.Description("The file currently being worked on, if any."),
			),
			mcplib.WithString("error_message",
				mcplib.Description("An error message just encountered, if any."),
			),
			mcplib.WithString("conversation_snippet",
				mcplib.Description("A snippet of the current conversation, if relevant."),
			),
			mcplib.WithString("recent_commands",
				mcplib.Description("Comma-separated recent shell/tool commands, if any."),
			),
			mcplib.WithString("open_topics",
				mcplib.Description("Comma-separated topics currently in play, if any."),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of suggestions to return."),
				mcplib.Min(1),
				mcplib.Max(20),
				mcplib.DefaultNumber(3),
			),
		),
		s.wrapWithMiddleware("proactive_suggestions", s.handleProactiveSuggestions),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("graph_query",
			mcplib.WithDescription(`Explore how memories and concepts are linked in the graph store.

WHEN TO USE: to see what a memory or concept connects to — other memories
sharing a concept (SHARES_CONCEPT), a memory's own concept tags
(HAS_CONCEPT). Contradictions and potential conflicts are not graph edges
and do not appear here.

pattern is an entity reference: "<name>" (assumed type "concept") or
"<name>:<type>" (e.g. "a1b2c3-...:memory" to explore a specific memory's
neighbors by its ID).`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("pattern",
				mcplib.Description(`Entity reference: "name" or "name:type".`),
				mcplib.Required(),
			),
			mcplib.WithString("edge_type",
				mcplib.Description("Optional: restrict traversal to this edge type, e.g. SHARES_CONCEPT, HAS_CONCEPT."),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of neighbors to return."),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.wrapWithMiddleware("graph_query", s.handleGraphQuery),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("context_get",
			mcplib.WithDescription(`Get a situational summary of everything Elefante currently knows.

WHEN TO USE: at the start of a session, to orient — how many memories are
stored, their curation health breakdown, and which memories this session
has already touched (feeding the coactivation signal for later searches).`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.wrapWithMiddleware("context_get", s.handleContextGet),
	)
}

var validMemoryTypes = map[string]bool{
	"preference": true, "fact": true, "decision": true, "task": true,
	"insight": true, "code": true, "note": true, "conversation": true,
}

func (s *Server) handleMemorySearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, sessionID := withSession(ctx)

	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	mode := request.GetString("mode", "semantic")
	domain := canon.Canonicalize(request.GetString("domain", ""))
	memoryType := request.GetString("memory_type", "")
	limit := request.GetInt("limit", 10)

	qa := s.assembler.Analyze(ctx, query)
	if domain != "" {
		qa.Domain = domain
	}
	filter := model.Filter{Domain: domain, MemoryType: memoryType}

	var candidates []model.Candidate
	var err error
	switch mode {
	case "concept":
		candidates, err = s.conceptCandidates(ctx, filter)
	default:
		candidates, err = s.assembler.Assemble(ctx, qa, filter, limit)
	}
	if err != nil {
		s.logger.Warn("mcpserver: memory_search backend failure, returning empty result", "error", err)
		candidates = nil
	}

	recentIDs := s.sessions.set(sessionID)
	candidateIDs := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		candidateIDs[i] = c.Memory.ID
	}
	neighborhoods, err := s.store.CoactivationNeighbors(ctx, candidateIDs)
	if err != nil {
		s.logger.Warn("mcpserver: load coactivation neighborhoods failed, scoring without them", "error", err)
		neighborhoods = nil
	}

	scored := s.scorer.Score(qa, candidates, recentIDs, neighborhoods, time.Now())
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	now := time.Now()
	resultIDs := make([]uuid.UUID, 0, len(scored))
	for _, sm := range scored {
		if err := s.store.RecordAccess(ctx, sm.Memory.ID, now); err != nil {
			s.logger.Warn("mcpserver: record access failed", "memory_id", sm.Memory.ID, "error", err)
		}
		s.sessions.record(sessionID, sm.Memory.ID.String())
		resultIDs = append(resultIDs, sm.Memory.ID)
	}
	// The memories returned together by this search are, by definition,
	// coactivated — feeding future coactivation signal lookups for this set.
	if err := s.store.RecordCoaccess(ctx, resultIDs); err != nil {
		s.logger.Warn("mcpserver: record coaccess failed", "error", err)
	}

	format := request.GetString("format", "concise")
	results := make([]map[string]any, len(scored))
	for i, sm := range scored {
		results[i] = searchHit(sm, format == "full")
	}

	encoded, _ := json.MarshalIndent(map[string]any{
		"query":   query,
		"mode":    mode,
		"count":   len(results),
		"results": results,
	}, "", "  ")
	return jsonResult(encoded), nil
}

// conceptCandidates builds a candidate set directly from the store, bypassing
// the vector index entirely — mode="concept" trades recall-by-meaning for a
// guaranteed exact pass over every memory's canonical concept set.
func (s *Server) conceptCandidates(ctx context.Context, filter model.Filter) ([]model.Candidate, error) {
	memories, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: load memories for concept search: %w", err)
	}
	out := make([]model.Candidate, 0, len(memories))
	for _, m := range memories {
		if filter.Domain != "" && !canon.Equal(filter.Domain, m.Domain) {
			continue
		}
		if filter.MemoryType != "" && filter.MemoryType != m.MemoryType {
			continue
		}
		out = append(out, model.Candidate{Memory: m, VectorScore: 0})
	}
	return out, nil
}

func searchHit(sm model.ScoredMemory, full bool) map[string]any {
	hit := map[string]any{
		"id":              sm.Memory.ID.String(),
		"domain":          sm.Memory.Domain,
		"memory_type":     sm.Memory.MemoryType,
		"authority_score": sm.Memory.AuthorityScore,
		"composite":       sm.Explanation.Composite,
		"explanation":     sm.Explanation,
	}
	if full {
		hit["content"] = sm.Memory.Content
		hit["concepts"] = sm.Memory.Concepts
		hit["surfaces_when"] = sm.Memory.SurfacesWhen
		hit["importance"] = sm.Memory.Importance
		hit["access_count"] = sm.Memory.AccessCount
		hit["last_accessed_at"] = sm.Memory.LastAccessedAt
		if sm.Memory.SupersededBy != nil {
			hit["superseded_by"] = sm.Memory.SupersededBy.String()
		}
	} else {
		hit["title"] = titleOf(sm.Memory.Content)
	}
	return hit
}

func titleOf(content string) string {
	const maxLen = 100
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

func (s *Server) handleMemoryAdd(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	content := request.GetString("content", "")
	if content == "" {
		return errorResult("content is required"), nil
	}

	memoryType := request.GetString("memory_type", "")
	var fallbackNote string
	if !validMemoryTypes[memoryType] {
		fallbackNote = fmt.Sprintf("memory_type %q is not a recognized enum value, stored as \"note\"", memoryType)
		s.logger.Warn("mcpserver: memory_add unknown memory_type, defaulting", "raw", memoryType)
		memoryType = "note"
	}

	domain := request.GetString("domain", "")
	if domain == "" {
		domain = "general"
	}
	domain = canon.Canonicalize(domain)
	if domain == "" {
		domain = "general"
	}

	importance := float32(request.GetFloat("importance", 5))
	concepts := metadata.ParseStringList(request.GetString("concepts", ""))
	surfacesWhen := metadata.ParseStringList(request.GetString("surfaces_when", ""))
	authorityScore := float32(request.GetFloat("authority_score", 0.5))
	if authorityScore < 0 {
		authorityScore = 0
	} else if authorityScore > 1 {
		authorityScore = 1
	}

	now := time.Now()
	m := model.Memory{
		ID:             uuid.New(),
		Content:        content,
		Domain:         domain,
		MemoryType:     memoryType,
		Concepts:       concepts,
		SurfacesWhen:   surfacesWhen,
		AuthorityScore: authorityScore,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return errorResult(fmt.Sprintf("store memory: %v", err)), nil
	}

	if err := s.indexMemory(ctx, m); err != nil {
		s.logger.Warn("mcpserver: memory_add vector index upsert failed", "memory_id", m.ID, "error", err)
	}

	linked, err := s.linkMemoryGraph(ctx, m)
	if err != nil {
		s.logger.Warn("mcpserver: memory_add graph link failed", "memory_id", m.ID, "error", err)
	}

	s.notifyMemoryAdded(m)

	result := map[string]any{
		"id":           m.ID.String(),
		"domain":       m.Domain,
		"memory_type":  m.MemoryType,
		"concepts":     m.Concepts,
		"linked_peers": linked,
	}
	if fallbackNote != "" {
		result["warning"] = fallbackNote
	}
	encoded, _ := json.MarshalIndent(result, "", "  ")
	return jsonResult(encoded), nil
}

// indexMemory embeds m's content and upserts it into the vector index, so it
// is immediately reachable by memory_search in "semantic" mode.
func (s *Server) indexMemory(ctx context.Context, m model.Memory) error {
	vec, err := s.embedder.Embed(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}
	return s.index.Upsert(ctx, []vectorindex.Point{{
		ID:        m.ID,
		Embedding: vec,
		CreatedAt: m.CreatedAt,
		Fields: metadata.CognitiveFields{
			Concepts:       m.Concepts,
			SurfacesWhen:   m.SurfacesWhen,
			AuthorityScore: m.AuthorityScore,
			Domain:         m.Domain,
			MemoryType:     m.MemoryType,
		},
	}})
}

// linkMemoryGraph registers m as a graph entity, links it to its own concept
// entities (HAS_CONCEPT, both directions so graph_query can traverse from
// either side), and links it to every existing memory in the same canonical
// domain it shares a canonical concept with (SHARES_CONCEPT, both
// directions) — the same edge the
// Candidate Assembler's widenViaGraph widens through. Returns the number of
// memory peers linked.
func (s *Server) linkMemoryGraph(ctx context.Context, m model.Memory) (int, error) {
	if s.graph == nil {
		return 0, nil
	}

	memEntity, err := s.graph.UpsertEntity(ctx, m.ID.String(), "memory", map[string]string{
		"concepts":      strings.Join(m.Concepts, ","),
		"surfaces_when": strings.Join(m.SurfacesWhen, ","),
		"domain":        m.Domain,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert memory entity: %w", err)
	}

	for _, c := range m.Concepts {
		conceptEntity, err := s.graph.UpsertEntity(ctx, c, "concept", nil)
		if err != nil {
			continue
		}
		_ = s.graph.UpsertEdge(ctx, memEntity.ID, conceptEntity.ID, "HAS_CONCEPT", nil)
		_ = s.graph.UpsertEdge(ctx, conceptEntity.ID, memEntity.ID, "HAS_CONCEPT", nil)
	}

	others, err := s.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load memories for graph linking: %w", err)
	}
	linked := 0
	mySet := make(map[string]bool, len(m.Concepts))
	for _, c := range m.Concepts {
		mySet[canon.Canonicalize(c)] = true
	}
	for _, other := range others {
		if other.ID == m.ID || !canon.Equal(other.Domain, m.Domain) {
			continue
		}
		if !shareConcept(mySet, other.Concepts) {
			continue
		}
		otherID := graphstore.EntityID(other.ID.String(), "memory")
		if err := s.graph.UpsertEdge(ctx, memEntity.ID, otherID, "SHARES_CONCEPT", nil); err != nil {
			continue
		}
		_ = s.graph.UpsertEdge(ctx, otherID, memEntity.ID, "SHARES_CONCEPT", nil)
		linked++
	}
	return linked, nil
}

func shareConcept(set map[string]bool, concepts []string) bool {
	for _, c := range concepts {
		if set[canon.Canonicalize(c)] {
			return true
		}
	}
	return false
}

func (s *Server) handleProactiveSuggestions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, sessionID := withSession(ctx)

	pc := model.ProactiveContext{
		FilePath:            request.GetString("file_path", ""),
		ErrorMessage:        request.GetString("error_message", ""),
		ConversationSnippet: request.GetString("conversation_snippet", ""),
		RecentCommands:      metadata.ParseStringList(request.GetString("recent_commands", "")),
		OpenTopics:          metadata.ParseStringList(request.GetString("open_topics", "")),
	}
	limit := request.GetInt("limit", 3)

	recentIDs := s.sessions.set(sessionID)
	scored := s.surfacer.Suggest(ctx, pc, recentIDs, limit)

	now := time.Now()
	for _, sm := range scored {
		if err := s.store.RecordAccess(ctx, sm.Memory.ID, now); err != nil {
			s.logger.Warn("mcpserver: record access failed", "memory_id", sm.Memory.ID, "error", err)
		}
		s.sessions.record(sessionID, sm.Memory.ID.String())
	}

	results := make([]map[string]any, len(scored))
	for i, sm := range scored {
		results[i] = searchHit(sm, false)
	}

	encoded, _ := json.MarshalIndent(map[string]any{
		"count":   len(results),
		"results": results,
	}, "", "  ")
	return jsonResult(encoded), nil
}

func (s *Server) handleGraphQuery(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.graph == nil {
		return errorResult("graph store is not configured"), nil
	}

	pattern := request.GetString("pattern", "")
	if pattern == "" {
		return errorResult("pattern is required"), nil
	}
	edgeType := request.GetString("edge_type", "")
	limit := request.GetInt("limit", 20)

	name, entityType := parsePattern(pattern)
	id := graphstore.EntityID(name, entityType)

	entity, err := s.graph.Entity(ctx, id)
	if err != nil {
		encoded, _ := json.MarshalIndent(map[string]any{
			"found":     false,
			"pattern":   pattern,
			"neighbors": []any{},
		}, "", "  ")
		return jsonResult(encoded), nil
	}

	neighbors, err := s.graph.Neighbors(ctx, id, edgeType)
	if err != nil {
		return errorResult(fmt.Sprintf("graph query failed: %v", err)), nil
	}
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}

	out := make([]map[string]any, len(neighbors))
	for i, n := range neighbors {
		out[i] = map[string]any{"name": n.Name, "type": n.Type, "props": n.Props}
	}

	encoded, _ := json.MarshalIndent(map[string]any{
		"found":     true,
		"entity":    map[string]any{"name": entity.Name, "type": entity.Type, "props": entity.Props},
		"neighbors": out,
	}, "", "  ")
	return jsonResult(encoded), nil
}

// parsePattern splits a "name:type" pattern into its parts, defaulting to
// entity type "concept" when no type is given — the common case of looking
// up a topic by its canonical label.
func parsePattern(pattern string) (name, entityType string) {
	if idx := strings.LastIndex(pattern, ":"); idx >= 0 {
		return pattern[:idx], pattern[idx+1:]
	}
	return pattern, "concept"
}

func (s *Server) handleContextGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, sessionID := withSession(ctx)

	memories, err := s.store.All(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("load memories: %v", err)), nil
	}

	health, conflicts, err := s.analyzer.AnalyzeAll(ctx, memories, s.graph, time.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("analyze memories: %v", err)), nil
	}

	// Persist what AnalyzeAll just found so curate.Health's potential_conflicts
	// rule and the curation snapshot both see live detection results, not just
	// whatever was written the last time a memory was inserted.
	if err := s.store.SetPotentialConflicts(ctx, conflicts); err != nil {
		s.logger.Warn("mcpserver: persist potential conflicts failed", "error", err)
	}

	stats := map[string]int{}
	for _, m := range memories {
		h := health[m.ID]
		stats[string(h)]++
		if h != model.HealthHealthy {
			s.notifyMemoryCurated(m, string(h))
		}
	}

	result := map[string]any{
		"session_id":               sessionID,
		"total_memories":           len(memories),
		"health":                   stats,
		"open_potential_conflicts": len(conflicts),
		"session_recent_accessed":  s.sessions.list(sessionID),
	}
	encoded, _ := json.MarshalIndent(result, "", "  ")
	return jsonResult(encoded), nil
}
