package curate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elefante-ai/elefante/internal/model"
)

func TestHealthPriorityOrder(t *testing.T) {
	a := New(90*24*time.Hour, 0.6, 2)
	now := time.Now()
	supersededBy := uuid.New()

	// Superseded beats every other condition, including a potential conflict.
	m := model.Memory{
		SupersededBy:       &supersededBy,
		PotentialConflicts: []uuid.UUID{uuid.New()},
		LastAccessedAt:     now.Add(-200 * 24 * time.Hour),
	}
	assert.Equal(t, model.HealthAtRisk, a.Health(m, 0, now))

	// Potential conflict beats staleness and orphan status.
	m = model.Memory{
		PotentialConflicts: []uuid.UUID{uuid.New()},
		LastAccessedAt:     now.Add(-200 * 24 * time.Hour),
	}
	assert.Equal(t, model.HealthAtRisk, a.Health(m, 0, now))

	// Staleness beats orphan status.
	m = model.Memory{LastAccessedAt: now.Add(-200 * 24 * time.Hour)}
	assert.Equal(t, model.HealthStale, a.Health(m, 0, now))

	// No graph connections, recently accessed: orphan.
	m = model.Memory{LastAccessedAt: now}
	assert.Equal(t, model.HealthOrphan, a.Health(m, 0, now))

	// Recently accessed with connections: healthy.
	m = model.Memory{LastAccessedAt: now}
	assert.Equal(t, model.HealthHealthy, a.Health(m, 3, now))
}

func TestFindPotentialConflictsSymmetricAndThresholded(t *testing.T) {
	a := New(90*24*time.Hour, 0.6, 2)

	idA, idB, idC := uuid.New(), uuid.New(), uuid.New()
	memories := []model.Memory{
		{ID: idA, Concepts: []string{"deploy", "rollback", "canary"}},
		{ID: idB, Concepts: []string{"deploy", "rollback", "canary"}},
		{ID: idC, Concepts: []string{"pasta", "recipe"}},
	}

	reports := a.findPotentialConflicts(memories)
	require.Len(t, reports, 1)
	assert.InDelta(t, 1.0, reports[0].JaccardOverlap, 1e-9)
	pair := map[uuid.UUID]bool{reports[0].MemoryA: true, reports[0].MemoryB: true}
	assert.True(t, pair[idA] && pair[idB])
}

func TestFindPotentialConflictsSkipsDifferentDomains(t *testing.T) {
	a := New(90*24*time.Hour, 0.6, 2)

	idA, idB := uuid.New(), uuid.New()
	memories := []model.Memory{
		{ID: idA, Domain: "work", Concepts: []string{"deploy", "rollback", "canary"}},
		{ID: idB, Domain: "personal", Concepts: []string{"deploy", "rollback", "canary"}},
	}

	reports := a.findPotentialConflicts(memories)
	assert.Empty(t, reports, "pairs in different domains must never be flagged, regardless of overlap")
}

func TestFindPotentialConflictsSharedConceptsAndReason(t *testing.T) {
	a := New(90*24*time.Hour, 0.6, 2)

	idA, idB := uuid.New(), uuid.New()
	memories := []model.Memory{
		{ID: idA, Domain: "work", Concepts: []string{"a", "b", "c", "d"}},
		{ID: idB, Domain: "work", Concepts: []string{"a", "b", "c", "e"}},
	}

	reports := a.findPotentialConflicts(memories)
	require.Len(t, reports, 1)
	assert.InDelta(t, 0.6, reports[0].JaccardOverlap, 1e-9)
	assert.Len(t, reports[0].SharedConcepts, 3)
	assert.NotEmpty(t, reports[0].Reason)
}

func TestAnalyzeAllBoundedWorkerPool(t *testing.T) {
	a := New(90*24*time.Hour, 0.6, 2)
	now := time.Now()

	memories := make([]model.Memory, 0, 50)
	for i := 0; i < 50; i++ {
		memories = append(memories, model.Memory{ID: uuid.New(), LastAccessedAt: now})
	}

	health, _, err := a.AnalyzeAll(context.Background(), memories, nil, now)
	require.NoError(t, err)
	assert.Len(t, health, 50)
	for _, m := range memories {
		assert.Equal(t, model.HealthOrphan, health[m.ID])
	}
}
