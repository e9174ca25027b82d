// Package ctxutil provides shared context key accessors.
//
// It carries the current MCP client session ID through a request's context
// under one unexported key; internal/mcpserver sets it when a tool call
// starts.
package ctxutil

import "context"

type contextKey string

const keySessionID contextKey = "session_id"

// WithSessionID returns a new context carrying the MCP client session ID.
// Session scoping is how Elefante implements the session-scoped coactivation
// history decision recorded in SPEC_FULL.md's Open Questions ledger.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

// SessionIDFromContext extracts the MCP client session ID from the context.
// Returns "" if none was set (e.g. in tests or a direct library call).
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keySessionID).(string); ok {
		return v
	}
	return ""
}
