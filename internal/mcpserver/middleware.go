package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/elefante-ai/elefante/internal/model"
)

// ToolHandler is the generic shape a Middleware wraps: a tool invocation
// reduced to its name and argument map, independent of the mcp-go request/
// response types, so extension code built against the top-level module
// never has to pin the same mcp-go version this package does.
type ToolHandler func(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)

// Middleware wraps a ToolHandler. Applied outermost-first: the first
// middleware in the slice observes every call before any other.
type Middleware func(next ToolHandler) ToolHandler

// MemoryHook receives notifications when a memory is stored or curated.
// Hook invocations run in their own goroutine and never block or fail the
// originating tool call — see handleMemoryAdd and handleContextGet.
type MemoryHook interface {
	OnMemoryAdded(ctx context.Context, m model.Memory) error
	OnMemoryCurated(ctx context.Context, m model.Memory, health string) error
}

type mcplibHandler func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error)

// wrapWithMiddleware adapts inner to a ToolHandler, runs it through every
// configured middleware (outermost first), then adapts the result back to
// the mcp-go request/response shape. With no middlewares configured it
// returns inner unchanged.
func (s *Server) wrapWithMiddleware(name string, inner mcplibHandler) mcplibHandler {
	if len(s.middlewares) == 0 {
		return inner
	}

	base := ToolHandler(func(ctx context.Context, _ string, args map[string]any) (map[string]any, error) {
		req := mcplib.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		result, err := inner(ctx, req)
		if err != nil {
			return nil, err
		}
		return resultToMap(result)
	})

	wrapped := base
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		wrapped = s.middlewares[i](wrapped)
	}

	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		out, err := wrapped(ctx, name, request.Params.Arguments)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		encoded, marshalErr := json.Marshal(out)
		if marshalErr != nil {
			return errorResult(marshalErr.Error()), nil
		}
		return jsonResult(encoded), nil
	}
}

// resultToMap converts a CallToolResult back into the map[string]any shape
// ToolHandler works with. Every handler in this package only ever produces
// JSON text content via jsonResult or errorResult, so this round-trips
// losslessly for in-tree handlers; a third-party handler that returns
// non-JSON text degrades to a single "raw" field rather than failing.
func resultToMap(result *mcplib.CallToolResult) (map[string]any, error) {
	if result == nil {
		return nil, nil
	}
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			text = tc.Text
			break
		}
	}
	if result.IsError {
		return nil, errors.New(text)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return map[string]any{"raw": text}, nil
	}
	return m, nil
}

// notifyMemoryAdded fires every registered MemoryHook in its own goroutine.
// Per the public EventHook contract, a hook failure is logged and never
// propagates back to the memory_add caller.
func (s *Server) notifyMemoryAdded(m model.Memory) {
	for _, h := range s.hooks {
		h := h
		go func() {
			if err := h.OnMemoryAdded(context.Background(), m); err != nil {
				s.logger.Warn("mcpserver: event hook OnMemoryAdded failed", "memory_id", m.ID, "error", err)
			}
		}()
	}
}

// notifyMemoryCurated fires every registered MemoryHook's curation
// notification in its own goroutine. Called from handleContextGet once per
// memory the Curation Analyzer did not mark healthy, so a host embedding
// Elefante via WithEventHook learns about at-risk, stale, and orphaned
// memories without polling the snapshot file itself.
func (s *Server) notifyMemoryCurated(m model.Memory, health string) {
	for _, h := range s.hooks {
		h := h
		go func() {
			if err := h.OnMemoryCurated(context.Background(), m, health); err != nil {
				s.logger.Warn("mcpserver: event hook OnMemoryCurated failed", "memory_id", m.ID, "error", err)
			}
		}()
	}
}
