package score

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elefante-ai/elefante/internal/model"
)

func TestScoreWeightsSumToComposite(t *testing.T) {
	s := New(0.01)
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	qa := model.QueryAnalysis{Query: "how do we do retries", Concepts: []string{"retry", "backoff"}, Domain: "engineering"}
	c := model.Candidate{
		Memory: model.Memory{
			ID:             uuid.New(),
			Domain:         "engineering",
			Concepts:       []string{"retry", "timeout"},
			AuthorityScore: 0.8,
			LastAccessedAt: now.Add(-24 * time.Hour),
		},
		VectorScore: 0.9,
	}

	results := s.Score(qa, []model.Candidate{c}, map[string]bool{}, nil, now)
	require.Len(t, results, 1)

	explanation := results[0].Explanation
	var sum float64
	for _, sig := range explanation.Signals {
		sum += sig.Weighted
	}
	assert.InDelta(t, explanation.Composite, sum, 1e-9)
}

func TestScoreOrdersDescendingWithDeterministicTieBreak(t *testing.T) {
	s := New(0.01)
	now := time.Now()

	lowID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	highID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	candidates := []model.Candidate{
		{Memory: model.Memory{ID: highID, AuthorityScore: 0.9}, VectorScore: 0.5},
		{Memory: model.Memory{ID: lowID, AuthorityScore: 0.1}, VectorScore: 0.5},
	}

	// Equal vector score; the higher AuthorityScore raises the authority
	// signal and so the composite, which ranks highID first.
	results := s.Score(model.QueryAnalysis{}, candidates, nil, nil, now)
	require.Len(t, results, 2)
	assert.Equal(t, highID, results[0].Memory.ID)
	assert.Equal(t, lowID, results[1].Memory.ID)

	// Identical candidates apart from ID: composite, authority and vector
	// signals all tie, so the lower ID must come first.
	tied := []model.Candidate{
		{Memory: model.Memory{ID: highID, AuthorityScore: 0.5}, VectorScore: 0.5},
		{Memory: model.Memory{ID: lowID, AuthorityScore: 0.5}, VectorScore: 0.5},
	}
	results = s.Score(model.QueryAnalysis{}, tied, nil, nil, now)
	require.Len(t, results, 2)
	assert.Equal(t, lowID, results[0].Memory.ID)
	assert.Equal(t, highID, results[1].Memory.ID)
}

func TestConceptOverlapJaccard(t *testing.T) {
	overlap, matched := conceptOverlap(nil, []string{"a"})
	assert.Equal(t, 0.0, overlap)
	assert.Nil(t, matched)

	overlap, matched = conceptOverlap([]string{"Go", "sqlite"}, []string{"go", "SQLite"})
	assert.InDelta(t, 1.0, overlap, 1e-9)
	assert.ElementsMatch(t, []string{"go", "sqlite"}, matched)

	overlap, matched = conceptOverlap([]string{"go", "sqlite"}, []string{"go", "badger"})
	assert.InDelta(t, 1.0/3.0, overlap, 1e-9)
	assert.Equal(t, []string{"go"}, matched)
}

func TestTemporalDecay(t *testing.T) {
	now := time.Now()
	score, days := temporal(now, now, 0.01)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, 0, days)

	score, days = temporal(now.Add(-90*24*time.Hour), now, 0.01)
	assert.Less(t, score, 0.5)
	assert.Equal(t, 90, days)

	score, days = temporal(time.Time{}, now, 0.01)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 0, days)
}

func TestDomainMatch(t *testing.T) {
	// Empty domains default to "general", which is a partial (0.5) match
	// against any concrete domain, per spec §4.4.
	score, _ := domainMatch("", "engineering")
	assert.Equal(t, 0.5, score)

	score, _ = domainMatch("engineering", "")
	assert.Equal(t, 0.5, score)

	score, domain := domainMatch("Engineering", "engineering")
	assert.Equal(t, 1.0, score)
	assert.Equal(t, "engineering", domain)

	score, _ = domainMatch("engineering", "sales")
	assert.Equal(t, 0.0, score)
}

func TestCoactivationFractionOfRecentIDsInNeighborhood(t *testing.T) {
	// No recent-access history at all: 0, regardless of neighborhood.
	assert.Equal(t, 0.0, coactivation(nil, map[string]bool{"a": true}))

	// Memory has no recorded coactivation history: 0, regardless of recentIDs.
	assert.Equal(t, 0.0, coactivation(map[string]bool{"a": true}, nil))

	// 2 of the 4 recently-accessed ids fall in this memory's neighborhood.
	recent := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	neighborhood := map[string]bool{"b": true, "d": true, "z": true}
	assert.InDelta(t, 0.5, coactivation(recent, neighborhood), 1e-9)

	// Full overlap.
	assert.InDelta(t, 1.0, coactivation(map[string]bool{"a": true}, map[string]bool{"a": true}), 1e-9)
}

func TestAuthoritySignalBlendsScoreAndAccessCount(t *testing.T) {
	// AuthorityScore is a float32, so the expected values use 0.8 as float32
	// holds it.
	a := float64(float32(0.8))
	assert.InDelta(t, 0.6*a, authority(0.8, 0), 1e-9)
	assert.InDelta(t, 0.6*a+0.4, authority(0.8, 40), 1e-9) // access_count clamps at 20.
	assert.InDelta(t, 0.6*a+0.4*0.5, authority(0.8, 10), 1e-9)
}
