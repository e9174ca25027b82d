package proactive

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/internal/score"
)

type fakeSource struct {
	memories []model.Memory
	err      error
}

func (f fakeSource) AllMemories(context.Context) ([]model.Memory, error) {
	return f.memories, f.err
}

func (f fakeSource) CoactivationNeighbors(context.Context, []uuid.UUID) (map[string]map[string]bool, error) {
	return nil, nil
}

func newTestSurfacer(memories []model.Memory) *Surfacer {
	return New(fakeSource{memories: memories}, score.New(0.01), slog.Default())
}

// S6 from spec.md §8: a context error_message matches a memory's
// surfaces_when trigger and that memory is returned with a positive
// composite score.
func TestSuggestSurfacesTrigger(t *testing.T) {
	m := model.Memory{
		ID:             uuid.New(),
		Domain:         "general",
		SurfacesWhen:   []string{"on connectionreseterror"},
		AuthorityScore: 0.5,
		LastAccessedAt: time.Now(),
	}
	s := newTestSurfacer([]model.Memory{m})

	pc := model.ProactiveContext{ErrorMessage: "ConnectionResetError at ingest"}
	results := s.Suggest(context.Background(), pc, nil, 3)

	require.Len(t, results, 1)
	assert.Equal(t, m.ID, results[0].Memory.ID)
	assert.Greater(t, results[0].Explanation.Composite, 0.0)
}

// Testable property 10: every returned suggestion satisfies at least one
// trigger gate.
func TestSuggestOnlyReturnsTriggeredMemories(t *testing.T) {
	triggered := model.Memory{
		ID:             uuid.New(),
		Domain:         "general",
		SurfacesWhen:   []string{"deploy"},
		LastAccessedAt: time.Now(),
	}
	untriggered := model.Memory{
		ID:             uuid.New(),
		Domain:         "general",
		Concepts:       []string{"unrelated"},
		LastAccessedAt: time.Now(),
	}
	s := newTestSurfacer([]model.Memory{triggered, untriggered})

	pc := model.ProactiveContext{ConversationSnippet: "about to deploy the canary build"}
	results := s.Suggest(context.Background(), pc, nil, 10)

	require.Len(t, results, 1)
	assert.Equal(t, triggered.ID, results[0].Memory.ID)
}

// Testable property 11: |result| <= limit for all calls.
func TestSuggestRespectsLimit(t *testing.T) {
	var memories []model.Memory
	for i := 0; i < 10; i++ {
		memories = append(memories, model.Memory{
			ID:             uuid.New(),
			Domain:         "general",
			SurfacesWhen:   []string{"ambient"},
			LastAccessedAt: time.Now(),
		})
	}
	s := newTestSurfacer(memories)

	pc := model.ProactiveContext{ConversationSnippet: "ambient noise everywhere"}
	results := s.Suggest(context.Background(), pc, nil, 3)

	assert.LessOrEqual(t, len(results), 3)
}

// Spec §4.5: "context ... all empty -> empty result", checked before
// touching storage.
func TestSuggestEmptyContextReturnsEmpty(t *testing.T) {
	s := newTestSurfacer([]model.Memory{{ID: uuid.New(), Domain: "general"}})
	results := s.Suggest(context.Background(), model.ProactiveContext{}, nil, 3)
	assert.Empty(t, results)
}

// Spec §4.5 / §7: proactive suggestions convert every backend error to an
// empty result, never raise.
func TestSuggestBackendErrorReturnsEmpty(t *testing.T) {
	s := New(fakeSource{err: assertError{}}, score.New(0.01), slog.Default())
	pc := model.ProactiveContext{FilePath: "/src/main.go"}
	results := s.Suggest(context.Background(), pc, nil, 3)
	assert.Empty(t, results)
}

type assertError struct{}

func (assertError) Error() string { return "backend unavailable" }

func TestSuggestConceptTrigger(t *testing.T) {
	m := model.Memory{
		ID:             uuid.New(),
		Domain:         "general",
		Concepts:       []string{"approval", "quality"},
		LastAccessedAt: time.Now(),
	}
	s := newTestSurfacer([]model.Memory{m})

	// Context concepts {user, approval, protocol, quality, review} overlap
	// {approval, quality} at 2/5 = 0.4, above the 0.3 concept-trigger floor.
	pc := model.ProactiveContext{ConversationSnippet: "user approval protocol quality review"}
	results := s.Suggest(context.Background(), pc, nil, 3)

	require.Len(t, results, 1)
	assert.Equal(t, m.ID, results[0].Memory.ID)
}
