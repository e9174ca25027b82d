// Package elefante is a local, single-user persistent memory system for AI
// agents. It exposes a Model Context Protocol tool surface backed by a
// cognitive retrieval and curation engine: a canonicalizer, a metadata codec,
// a candidate assembler, a multi-signal scorer, a proactive surfacer, and a
// curation analyzer.
package elefante

import "context"

// EmbeddingProvider generates vector embeddings from text.
// When supplied via WithEmbeddingProvider, replaces the auto-detected
// Ollama/OpenAI/noop provider. Uses []float32 rather than a backend-specific
// vector type so external consumers never need the vectorindex dependency.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Classifier assigns a query-intent label, used by the Candidate Assembler's
// QueryAnalysis step. When supplied via WithClassifier, replaces the default
// NoopClassifier (which always reports "reference"). Any label the
// implementation returns outside the fixed intent enum is mapped back to
// "reference" by the caller — Classifier implementations need not validate
// their own output.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string) (string, error)
}

// EventHook receives notifications when a memory is added or reclassified
// by curation; memory access does not fire a hook. Multiple hooks may be registered via multiple
// WithEventHook calls. Hook methods run in goroutines and must not block
// indefinitely; failures are logged but never fail the originating call.
type EventHook interface {
	OnMemoryAdded(ctx context.Context, m Memory) error
	OnMemoryCurated(ctx context.Context, m Memory, health string) error
}

// Middleware wraps an MCP tool handler. Applied outermost, so it observes
// every tool call including ones added by extension code. Multiple
// middlewares are applied in registration order (first-registered =
// outermost).
type Middleware func(next ToolHandlerFunc) ToolHandlerFunc

// ToolHandlerFunc is the public shape of an MCP tool handler, used only for
// composing Middleware. It intentionally avoids importing mark3labs/mcp-go's
// request/response types so extension code built against this module does
// not need to pin the same mcp-go version.
type ToolHandlerFunc func(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)
