// Package mcpserver implements the Model Context Protocol tool surface for
// Elefante: memory_search, memory_add, proactive_suggestions, graph_query,
// and context_get, exposed over github.com/mark3labs/mcp-go. It is the one
// place every engine component (internal/assemble, internal/score,
// internal/proactive, internal/curate, internal/graphstore, internal/store,
// internal/embedding) is wired together behind a request handler, adapted
// tool-by-tool from the teacher's internal/mcp package: long descriptive
// WithDescription blocks teaching the agent when to call each tool, hint
// annotations, and a format param defaulting to a concise compacted response
// with a "full" escape hatch.
package mcpserver

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/elefante-ai/elefante/internal/assemble"
	"github.com/elefante-ai/elefante/internal/curate"
	"github.com/elefante-ai/elefante/internal/embedding"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/proactive"
	"github.com/elefante-ai/elefante/internal/score"
	"github.com/elefante-ai/elefante/internal/store"
	"github.com/elefante-ai/elefante/internal/vectorindex"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so a connected agent knows the recall-before/record-after
// workflow without per-project configuration.
const serverInstructions = `You have access to Elefante, a persistent local memory system.

WORKFLOW:

1. At the START of a session: call context_get to see what you already know —
   how many memories are stored and their curation health.

2. BEFORE acting on something you might already have an opinion about: call
   memory_search with a natural-language query. Read the explanation on each
   result; a high concept_overlap or authority score means trust it.

3. WHILE WORKING: call proactive_suggestions with your current file path,
   error message, or conversation snippet. Elefante surfaces anything
   relevant without you having to know to ask for it.

4. AFTER learning something worth remembering — a preference, a decision, a
   fact, a recurring gotcha: call memory_add. Give it concepts and
   surfaces_when triggers so it can be found again the right way.

5. To explore how memories and concepts relate to each other, call
   graph_query with an entity name.

Be specific in queries and memory content. Concepts and domains are
canonicalized automatically — you don't need to worry about casing or
punctuation matching exactly.`

// Server wraps the MCP server with Elefante's engine components.
type Server struct {
	mcpServer *mcpserver.MCPServer

	store       *store.Store
	graph       graphstore.Store
	index       vectorindex.Index
	embedder    embedding.Provider
	assembler   *assemble.Assembler
	scorer      *score.Scorer
	surfacer    *proactive.Surfacer
	analyzer    *curate.Analyzer
	logger      *slog.Logger
	sessions    *sessionTracker
	hooks       []MemoryHook
	middlewares []Middleware
}

// Deps bundles the engine components the tool surface is wired against.
type Deps struct {
	Store     *store.Store
	Graph     graphstore.Store
	Index     vectorindex.Index
	Embedder  embedding.Provider
	Assembler *assemble.Assembler
	Scorer    *score.Scorer
	Surfacer  *proactive.Surfacer
	Analyzer  *curate.Analyzer
	Logger    *slog.Logger

	// Hooks and Middlewares adapt the top-level module's public EventHook
	// and Middleware extension points; both are optional.
	Hooks       []MemoryHook
	Middlewares []Middleware
}

// New creates and configures a new MCP server exposing the five Elefante
// tools. version is reported to connecting clients during the initialize
// handshake.
func New(deps Deps, version string) *Server {
	s := &Server{
		store:       deps.Store,
		graph:       deps.Graph,
		index:       deps.Index,
		embedder:    deps.Embedder,
		assembler:   deps.Assembler,
		scorer:      deps.Scorer,
		surfacer:    deps.Surfacer,
		analyzer:    deps.Analyzer,
		logger:      deps.Logger,
		sessions:    newSessionTracker(),
		hooks:       deps.Hooks,
		middlewares: deps.Middlewares,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"elefante",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(encoded []byte) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(encoded)},
		},
	}
}
