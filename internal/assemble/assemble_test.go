package assemble

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elefante-ai/elefante/internal/classifier"
	"github.com/elefante-ai/elefante/internal/metadata"
	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/internal/vectorindex"
)

type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, f.dims), nil
}
func (f fakeEmbedder) Dimensions() int { return f.dims }

type erroringEmbedder struct{}

func (erroringEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder unavailable")
}
func (erroringEmbedder) Dimensions() int { return 8 }

type fakeIndex struct {
	results []vectorindex.Result
	err     error
}

func (f fakeIndex) Query(context.Context, []float32, vectorindex.Filter, int) ([]vectorindex.Result, error) {
	return f.results, f.err
}
func (f fakeIndex) Upsert(context.Context, []vectorindex.Point) error { return nil }
func (f fakeIndex) DeleteByIDs(context.Context, []uuid.UUID) error    { return nil }
func (f fakeIndex) Healthy(context.Context) error                    { return nil }

// fakeStore stands in for internal/store.Store: Assemble hydrates every
// candidate through it before scoring, since a vector-index hit only
// carries the Metadata Codec's cognitive fields.
type fakeStore struct {
	memories map[uuid.UUID]model.Memory
}

func (f fakeStore) Get(_ context.Context, id uuid.UUID) (model.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return model.Memory{}, errors.New("not found")
	}
	return m, nil
}

func TestAssembleDedupesByHighestVectorScore(t *testing.T) {
	id := uuid.New()
	index := fakeIndex{results: []vectorindex.Result{
		{MemoryID: id, Score: 0.9, Fields: metadata.CognitiveFields{Domain: "general"}},
		{MemoryID: id, Score: 0.4, Fields: metadata.CognitiveFields{Domain: "general"}},
	}}
	store := fakeStore{memories: map[uuid.UUID]model.Memory{
		id: {ID: id, Content: "stored content", Domain: "general"},
	}}
	a := New(index, nil, store, fakeEmbedder{dims: 8}, classifier.NoopClassifier{}, slog.Default())

	candidates, err := a.Assemble(context.Background(), a.Analyze(context.Background(), "q"), model.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	// The higher-scoring duplicate comes first here, so a later, lower score
	// must not overwrite it (the vector index is expected to return each ID
	// once, but a defensive dedup keeps the assembler correct regardless).
	assert.Equal(t, id, candidates[0].Memory.ID)
	assert.Equal(t, float32(0.9), candidates[0].VectorScore)
}

// Candidates are hydrated from the store before being handed to the
// scorer: Content, CreatedAt, LastAccessedAt, and AccessCount never come
// from the vector index, only from the primary store.
func TestAssembleHydratesCandidatesFromStore(t *testing.T) {
	id := uuid.New()
	index := fakeIndex{results: []vectorindex.Result{
		{MemoryID: id, Score: 0.8, Fields: metadata.CognitiveFields{Domain: "general"}},
	}}
	store := fakeStore{memories: map[uuid.UUID]model.Memory{
		id: {ID: id, Content: "the hydrated body", Domain: "general", AccessCount: 3},
	}}
	a := New(index, nil, store, fakeEmbedder{dims: 8}, classifier.NoopClassifier{}, slog.Default())

	candidates, err := a.Assemble(context.Background(), a.Analyze(context.Background(), "q"), model.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "the hydrated body", candidates[0].Memory.Content)
	assert.Equal(t, 3, candidates[0].Memory.AccessCount)
	assert.Equal(t, float32(0.8), candidates[0].VectorScore)
}

// A vector-index hit for a memory since deleted from the store is dropped
// rather than scored on zero-value fields.
func TestAssembleDropsCandidateMissingFromStore(t *testing.T) {
	id := uuid.New()
	index := fakeIndex{results: []vectorindex.Result{
		{MemoryID: id, Score: 0.8, Fields: metadata.CognitiveFields{Domain: "general"}},
	}}
	a := New(index, nil, fakeStore{memories: map[uuid.UUID]model.Memory{}}, fakeEmbedder{dims: 8}, classifier.NoopClassifier{}, slog.Default())

	candidates, err := a.Assemble(context.Background(), a.Analyze(context.Background(), "q"), model.Filter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestAssembleOverfetchFloor(t *testing.T) {
	index := fakeIndex{}
	a := New(index, nil, fakeStore{}, fakeEmbedder{dims: 8}, classifier.NoopClassifier{}, slog.Default())

	// limit*3 < minOverfetch, so the floor of 30 applies; Assemble should
	// still succeed (and not pass a zero/negative k to the index).
	candidates, err := a.Assemble(context.Background(), a.Analyze(context.Background(), "q"), model.Filter{}, 1)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestAssembleEmbedderErrorPropagates(t *testing.T) {
	a := New(fakeIndex{}, nil, fakeStore{}, erroringEmbedder{}, classifier.NoopClassifier{}, slog.Default())
	qa := a.Analyze(context.Background(), "q")
	_, err := a.Assemble(context.Background(), qa, model.Filter{}, 10)
	assert.Error(t, err)
}

// unknownIntentClassifier returns a label outside the fixed intent enum.
type unknownIntentClassifier struct{}

func (unknownIntentClassifier) ClassifyIntent(context.Context, string) (string, error) {
	return "banana", nil
}

func TestAnalyzeDefaultsUnknownIntentToReference(t *testing.T) {
	a := New(fakeIndex{}, nil, fakeStore{}, fakeEmbedder{dims: 8}, unknownIntentClassifier{}, slog.Default())
	qa := a.Analyze(context.Background(), "what did we decide about retries")
	assert.Equal(t, "reference", qa.Intent)
	assert.NotEmpty(t, qa.Concepts)
}
