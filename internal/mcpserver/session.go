package mcpserver

import (
	"context"
	"sync"

	"github.com/elefante-ai/elefante/internal/ctxutil"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// recentWindow is R from spec's Open Questions ledger: the coactivation
// signal looks at the last R memories accessed, scoped per MCP client
// session rather than globally (documented deviation, SPEC_FULL.md §5.2).
const recentWindow = 20

// sessionTracker holds each connected MCP client's recent-access window,
// keyed by session ID. It is the session-scoped analogue of a single global
// recent-access ring the spec's default describes.
type sessionTracker struct {
	mu     sync.Mutex
	recent map[string][]string // sessionID -> memory IDs, most recent last, capped at recentWindow
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{recent: make(map[string][]string)}
}

// record appends memoryID to sessionID's recent-access window, evicting the
// oldest entry once the window exceeds recentWindow. A no-op for an empty
// sessionID (e.g. a direct library call made with no MCP session attached).
func (t *sessionTracker) record(sessionID, memoryID string) {
	if sessionID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.recent[sessionID]
	for _, id := range ids {
		if id == memoryID {
			return
		}
	}
	ids = append(ids, memoryID)
	if len(ids) > recentWindow {
		ids = ids[len(ids)-recentWindow:]
	}
	t.recent[sessionID] = ids
}

// set returns sessionID's recent-access window as a membership set, for the
// Cognitive Scorer's coactivation signal.
func (t *sessionTracker) set(sessionID string) map[string]bool {
	if sessionID == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.recent[sessionID]
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// list returns sessionID's recent-access window in access order, oldest first.
func (t *sessionTracker) list(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.recent[sessionID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// withSession extracts the connecting MCP client's session ID (if any) and
// threads it through ctx via internal/ctxutil, so internal/proactive and the
// coactivation signal never need to import mcp-go themselves.
func withSession(ctx context.Context) (context.Context, string) {
	session := mcpserver.ClientSessionFromContext(ctx)
	if session == nil {
		return ctx, ""
	}
	sessionID := session.SessionID()
	if sessionID == "" {
		return ctx, ""
	}
	return ctxutil.WithSessionID(ctx, sessionID), sessionID
}
