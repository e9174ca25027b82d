// Package graphstore implements the graph store: a durable, directory-backed
// entity/relationship graph used for proactive surfacing and graph_query
// expansion. Storage is github.com/dgraph-io/badger/v4, an embedded
// append-only KV store; a github.com/dominikbraun/graph in-memory view is
// rebuilt from it on open for pattern queries and adjacency counting.
//
// Entity identity is idempotent by construction: an entity's Badger key is
// built from (canon(type), canon(name)), so two upserts for "Node.js" and "NODE-JS"
// (type "technology") land on the same key — there is no read-then-write
// race that could create duplicate nodes, which is the historical bug this
// design note exists to prevent (see SPEC_FULL.md §3.4).
package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dominikbraun/graph"

	"github.com/elefante-ai/elefante/internal/canon"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("graphstore: entity not found")

// Entity is a node in the graph: a named, typed thing memories can be
// linked to (a concept, a person, a project, a tool).
type Entity struct {
	ID    string // "entity:" + canon(Type) + "|" + canon(Name); stable across upserts.
	Name  string
	Type  string
	Props map[string]string
}

// Edge is a directed, typed relationship between two entities.
type Edge struct {
	Src, Dst string // Entity IDs.
	Type     string
	Props    map[string]string
}

// Store is the interface the Candidate Assembler, Proactive Surfacer, and
// the graph_query MCP tool depend on.
type Store interface {
	UpsertEntity(ctx context.Context, name, entityType string, props map[string]string) (Entity, error)
	UpsertEdge(ctx context.Context, src, dst, edgeType string, props map[string]string) error
	Entity(ctx context.Context, id string) (Entity, error)
	Neighbors(ctx context.Context, id string, edgeType string) ([]Entity, error)
	CountEdges(ctx context.Context, id string) (int, error)
	AllEntities(ctx context.Context) ([]Entity, error)
	AllEdges(ctx context.Context) ([]Edge, error)
	Close() error
}

// BadgerStore is the Store implementation backing a single local data
// directory. Open requires dir to either not exist yet (it will be created
// by Badger) or already be a Badger directory — never a regular file, which
// Badger itself rejects.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	g graph.Graph[string, Entity]
}

const (
	entityKeyPrefix = "entity:"
	edgeKeyPrefix   = "edge:"
)

func entityKey(name, entityType string) string {
	return entityKeyPrefix + canon.Canonicalize(entityType) + "|" + canon.Canonicalize(name)
}

// EntityID computes the stable, idempotent entity ID for (name, entityType)
// without requiring a round trip through the store — callers that need to
// look up an entity they know the name and type of (e.g. the Candidate
// Assembler resolving a memory's own graph node) can compute it directly.
func EntityID(name, entityType string) string {
	return entityKey(name, entityType)
}

func edgeKey(src, dst, edgeType string) string {
	return edgeKeyPrefix + src + "|" + canon.Canonicalize(edgeType) + "|" + dst
}

// Open opens (or creates) the Badger-backed graph store at dir. If a
// regular file already exists at dir, Open returns an error rather than
// clobbering it — the graph store's state must live in a directory (the
// LOCK file and value-log/WAL segments Badger maintains alongside the
// key-value data), not a single file.
func Open(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("graphstore: %q exists and is not a directory", dir)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open badger at %q: %w", dir, err)
	}

	s := &BadgerStore{
		db:     db,
		logger: logger,
		g:      graph.New(entityHash, graph.Directed()),
	}
	if err := s.rebuildGraph(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graphstore: rebuild in-memory graph: %w", err)
	}
	return s, nil
}

func entityHash(e Entity) string { return e.ID }

func (s *BadgerStore) rebuildGraph() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		// First pass: vertices, so every edge has both endpoints already added.
		for it.Seek([]byte(entityKeyPrefix)); it.ValidForPrefix([]byte(entityKeyPrefix)); it.Next() {
			var e Entity
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			if err := s.g.AddVertex(e); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
				return err
			}
		}

		for it.Seek([]byte(edgeKeyPrefix)); it.ValidForPrefix([]byte(edgeKeyPrefix)); it.Next() {
			var e Edge
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			if err := s.g.AddEdge(e.Src, e.Dst); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return err
			}
		}
		return nil
	})
}

// UpsertEntity creates the entity if absent, or returns the existing one
// with props merged in. Idempotent on (canon(name), type).
func (s *BadgerStore) UpsertEntity(_ context.Context, name, entityType string, props map[string]string) (Entity, error) {
	id := entityKey(name, entityType)
	var result Entity

	err := s.db.Update(func(txn *badger.Txn) error {
		existing := Entity{ID: id, Name: name, Type: entityType, Props: map[string]string{}}
		item, err := txn.Get([]byte(id))
		switch {
		case err == nil:
			if verr := item.Value(func(val []byte) error { return json.Unmarshal(val, &existing) }); verr != nil {
				return verr
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// New entity.
		default:
			return err
		}

		for k, v := range props {
			existing.Props[k] = v
		}
		result = existing

		encoded, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		return txn.Set([]byte(id), encoded)
	})
	if err != nil {
		return Entity{}, fmt.Errorf("graphstore: upsert entity %q: %w", name, err)
	}

	if err := s.g.AddVertex(result); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		s.logger.Warn("graphstore: in-memory vertex add failed", "entity", name, "error", err)
	}
	return result, nil
}

// UpsertEdge creates a directed edge if absent. Idempotent on (src, dst, type).
func (s *BadgerStore) UpsertEdge(_ context.Context, src, dst, edgeType string, props map[string]string) error {
	key := edgeKey(src, dst, edgeType)
	e := Edge{Src: src, Dst: dst, Type: edgeType, Props: props}

	err := s.db.Update(func(txn *badger.Txn) error {
		encoded, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), encoded)
	})
	if err != nil {
		return fmt.Errorf("graphstore: upsert edge %s->%s: %w", src, dst, err)
	}

	if err := s.g.AddEdge(src, dst); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		s.logger.Warn("graphstore: in-memory edge add failed", "src", src, "dst", dst, "error", err)
	}
	return nil
}

// Entity fetches a single entity by ID.
func (s *BadgerStore) Entity(_ context.Context, id string) (Entity, error) {
	var e Entity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &e) })
	})
	if err != nil {
		return Entity{}, err
	}
	return e, nil
}

// Neighbors returns entities reachable by one outbound hop of the given
// edge type (or every outbound edge if edgeType is "").
func (s *BadgerStore) Neighbors(ctx context.Context, id string, edgeType string) ([]Entity, error) {
	adjacency, err := s.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("graphstore: adjacency map: %w", err)
	}
	edges, ok := adjacency[id]
	if !ok {
		return nil, nil
	}

	out := make([]Entity, 0, len(edges))
	for dst := range edges {
		if edgeType != "" {
			if err := s.db.View(func(txn *badger.Txn) error {
				_, err := txn.Get([]byte(edgeKey(id, dst, edgeType)))
				return err
			}); err != nil {
				continue
			}
		}
		e, err := s.Entity(ctx, dst)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// CountEdges returns id's total degree (outbound plus inbound edges), used
// by the Curation Analyzer's orphan check (spec §4.6: "no shared-concept
// edges, no supports/contradicts edges" — a memory with only inbound edges
// is still connected, not an orphan).
func (s *BadgerStore) CountEdges(_ context.Context, id string) (int, error) {
	adjacency, err := s.g.AdjacencyMap()
	if err != nil {
		return 0, fmt.Errorf("graphstore: adjacency map: %w", err)
	}
	predecessors, err := s.g.PredecessorMap()
	if err != nil {
		return 0, fmt.Errorf("graphstore: predecessor map: %w", err)
	}
	return len(adjacency[id]) + len(predecessors[id]), nil
}

// AllEntities returns every entity in the store, for the snapshot generator
// and the graph_query tool's unfiltered listing.
func (s *BadgerStore) AllEntities(_ context.Context) ([]Entity, error) {
	var out []Entity
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(entityKeyPrefix)); it.ValidForPrefix([]byte(entityKeyPrefix)); it.Next() {
			var e Entity
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: list entities: %w", err)
	}
	return out, nil
}

// AllEdges returns every edge in the store, for the snapshot generator.
func (s *BadgerStore) AllEdges(_ context.Context) ([]Edge, error) {
	var out []Edge
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(edgeKeyPrefix)); it.ValidForPrefix([]byte(edgeKeyPrefix)); it.Next() {
			var e Edge
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: list edges: %w", err)
	}
	return out, nil
}

// Close releases the Badger database handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
