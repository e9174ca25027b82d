package dashboard

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elefante-ai/elefante/internal/snapshot"
)

func testServer(t *testing.T, snapshotPath string) *Server {
	t.Helper()
	return New(Config{
		SnapshotPath: snapshotPath,
		Port:         0,
		Logger:       slog.Default(),
	})
}

// handler-level test: exercises the mux directly rather than binding a real
// port, since Start() blocks.
func doRequest(t *testing.T, s *Server, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec.Result()
}

func TestSnapshotRouteServesWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := snapshot.Snapshot{
		Nodes: []snapshot.Node{{ID: "m1", Type: "memory"}},
		Stats: snapshot.Stats{TotalMemories: 1},
	}
	require.NoError(t, snapshot.WriteFile(snap, path))

	s := testServer(t, path)
	resp := doRequest(t, s, http.MethodGet, "/api/snapshot")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"m1"`)
}

func TestSnapshotRouteHandlesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s := testServer(t, path)

	resp := doRequest(t, s, http.MethodGet, "/api/snapshot")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthRoute(t *testing.T) {
	s := testServer(t, filepath.Join(t.TempDir(), "snapshot.json"))
	resp := doRequest(t, s, http.MethodGet, "/health")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNoUIRoutesWhenUIFSNil(t *testing.T) {
	s := testServer(t, filepath.Join(t.TempDir(), "snapshot.json"))
	resp := doRequest(t, s, http.MethodGet, "/")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
