// Package vectorindex wraps the Qdrant ANN vector index used by the
// Candidate Assembler. It owns exactly the vector-similarity concern: the
// typed cognitive fields a candidate carries (concepts, surfaces_when,
// authority_score) pass through internal/metadata on the way in and out of
// the payload map, never touched directly here.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/elefante-ai/elefante/internal/metadata"
)

// Config holds the connection settings for a QdrantIndex.
type Config struct {
	URL        string // e.g. "http://localhost:6333" or "host:6334"
	APIKey     string
	Collection string
	Dims       uint64
}

// Point is the data needed to upsert a single memory into the index.
type Point struct {
	ID        uuid.UUID
	Embedding []float32
	Fields    metadata.CognitiveFields
	CreatedAt time.Time
}

// Result is an ANN hit: a memory ID and its cosine similarity mapped to
// [0, 1] (see mapCosineToUnit).
type Result struct {
	MemoryID uuid.UUID
	Score    float32
	Fields   metadata.CognitiveFields
}

// Index is the interface the Candidate Assembler depends on. Declared here
// so tests can substitute a fake without pulling in a real Qdrant
// connection, mirroring the Searcher/CandidateFinder split the teacher used
// for the same reason.
type Index interface {
	Query(ctx context.Context, embedding []float32, filter Filter, limit int) ([]Result, error)
	Upsert(ctx context.Context, points []Point) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
	Healthy(ctx context.Context) error
}

// Filter narrows a Query by the payload fields EnsureCollection indexes.
type Filter struct {
	Domain     string
	MemoryType string
}

// QdrantIndex implements Index backed by a local or cloud Qdrant instance.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthMu  sync.Mutex
	lastCheck time.Time
	lastErr   error
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vectorindex: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorindex: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantIndex creates a new QdrantIndex and connects to Qdrant via gRPC.
func NewQdrantIndex(cfg Config, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if it doesn't already exist, with
// HNSW parameters tuned for cosine similarity over the configured embedding
// model's dimensionality.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vectorindex: check collection exists: %w", err)
	}
	if exists {
		q.logger.Info("qdrant: collection already exists", "collection", q.collection)
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dims,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %q: %w", q.collection, err)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"domain", "memory_type"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("vectorindex: create index on %q: %w", field, err)
		}
	}

	floatType := qdrant.FieldType_FieldTypeFloat
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "authority_score",
		FieldType:      &floatType,
	}); err != nil {
		return fmt.Errorf("vectorindex: create index on authority_score: %w", err)
	}

	q.logger.Info("qdrant: created collection with payload indexes", "collection", q.collection, "dims", q.dims)
	return nil
}

// Query searches for memories near embedding, optionally restricted by
// filter, returning up to limit hits. The Candidate Assembler is the one
// place that applies spec §4.3's K = max(limit_k*3, 30) over-fetch — this
// method fetches exactly what it's asked for so that multiplier is applied
// once, not compounded at every layer.
func (q *QdrantIndex) Query(ctx context.Context, embedding []float32, filter Filter, limit int) ([]Result, error) {
	var must []*qdrant.Condition
	if filter.Domain != "" {
		must = append(must, qdrant.NewMatch("domain", filter.Domain))
	}
	if filter.MemoryType != "" {
		must = append(must, qdrant.NewMatch("memory_type", filter.MemoryType))
	}

	fetchLimit := uint64(limit) //nolint:gosec // limit is bounded by the caller
	queryReq := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(embedding),
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		queryReq.Filter = &qdrant.Filter{Must: must}
	}

	scored, err := q.client.Query(ctx, queryReq)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: qdrant query: %w", err)
	}

	results := make([]Result, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		memoryID, err := uuid.Parse(idStr)
		if err != nil {
			q.logger.Warn("qdrant: invalid UUID in point ID", "id", idStr)
			continue
		}
		results = append(results, Result{
			MemoryID: memoryID,
			Score:    mapCosineToUnit(sp.Score),
			Fields:   metadata.Decode(payloadToMap(sp.Payload)),
		})
	}

	return results, nil
}

// mapCosineToUnit maps a cosine similarity score (range [-1, 1]) to the
// [0, 1] range internal/score's VectorScore signal expects. Qdrant reports
// raw cosine similarity, not a pre-normalized score.
func mapCosineToUnit(cosine float32) float32 {
	return (cosine + 1) / 2
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = qdrantValueToAny(v)
	}
	return out
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		out := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			out = append(out, qdrantValueToAny(item))
		}
		return out
	default:
		return nil
	}
}

// Upsert inserts or updates points in the index.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := metadata.Encode(p.Fields)
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID.String()),
			Vectors: qdrant.NewVectorsDense(p.Embedding),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByIDs removes specific points from the index by memory ID.
func (q *QdrantIndex) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id.String())
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: qdrant delete %d points: %w", len(ids), err)
	}
	return nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds to avoid hammering the health endpoint on every search request.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	q.healthMu.Lock()
	defer q.healthMu.Unlock()

	if time.Since(q.lastCheck) < 5*time.Second {
		return q.lastErr
	}

	_, err := q.client.HealthCheck(ctx)
	q.lastCheck = time.Now()
	if err != nil {
		q.lastErr = fmt.Errorf("vectorindex: qdrant unhealthy: %w", err)
	} else {
		q.lastErr = nil
	}
	return q.lastErr
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
