// Package store is the primary memory persistence layer: a single-writer,
// embedded SQLite database holding memory rows plus the contradicts and
// potential_conflicts junction tables. Schema lives in migrations/*.sql,
// embedded at build time and applied in filename order, gated by a
// schema_version table — the same migration discipline
// goblincore-geoffreyengram's Store uses, adapted from hand-written SQL
// blocks in Go to embedded files so the schema is reviewable on its own.
//
// A single open connection (db.SetMaxOpenConns(1)) makes every write
// atomic with respect to other writes without an explicit application-level
// lock — SQLite's own lock serializes them — satisfying the single-writer
// discipline spec §5 requires.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/elefante-ai/elefante/internal/metadata"
	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/migrations"
)

// ErrNotFound is returned when a requested memory does not exist.
var ErrNotFound = errors.New("store: memory not found")

// ErrCyclicSupersession is returned by SetSupersededBy when the requested
// link would close a cycle in the supersession chain.
var ErrCyclicSupersession = errors.New("store: supersession link would create a cycle")

const sqliteTimeLayout = "2006-01-02 15:04:05"

// Store wraps a SQLite connection for memory persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (name TEXT PRIMARY KEY)`); err != nil {
		return err
	}

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version WHERE name = ?`, name).Scan(&applied); err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (name) VALUES (?)`, name); err != nil {
			return err
		}
	}
	return nil
}

// Insert stores a new memory. m.CreatedAt and m.LastAccessedAt are set by
// the caller; Insert does not default them, so tests can assert on exact
// timestamps.
func (s *Store) Insert(ctx context.Context, m model.Memory) error {
	concepts, err := encodeStringListJSON(m.Concepts)
	if err != nil {
		return fmt.Errorf("store: encode concepts: %w", err)
	}
	surfacesWhen, err := encodeStringListJSON(m.SurfacesWhen)
	if err != nil {
		return fmt.Errorf("store: encode surfaces_when: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, domain, memory_type, concepts, surfaces_when, authority_score, importance, created_at, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Content, m.Domain, m.MemoryType, concepts, surfacesWhen,
		m.AuthorityScore, m.Importance, m.CreatedAt.UTC().Format(sqliteTimeLayout), m.LastAccessedAt.UTC().Format(sqliteTimeLayout), m.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("store: insert memory: %w", err)
	}
	return nil
}

// Get fetches a single memory by ID, including its contradicts and
// potential_conflicts sets.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, domain, memory_type, concepts, surfaces_when, authority_score, importance, created_at, last_accessed_at, access_count, superseded_by
		FROM memories WHERE id = ?`, id.String())

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Memory{}, ErrNotFound
	}
	if err != nil {
		return model.Memory{}, fmt.Errorf("store: get memory %s: %w", id, err)
	}

	if m.Contradicts, err = s.relatedIDs(ctx, "contradicts", "contradicts_id", id); err != nil {
		return model.Memory{}, err
	}
	if m.PotentialConflicts, err = s.relatedIDs(ctx, "potential_conflicts", "conflict_id", id); err != nil {
		return model.Memory{}, err
	}
	return m, nil
}

// All loads every memory, without relationship sets, for use by the
// Curation Analyzer and Proactive Surfacer. At the single-user scale the
// spec targets (hundreds to low thousands of memories), loading everything
// into Go and scoring/analyzing in-process is fast enough — the same
// tradeoff goblincore-geoffreyengram's GetMemoriesWithVectors makes at NPC
// scale.
func (s *Store) All(ctx context.Context) ([]model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, domain, memory_type, concepts, surfaces_when, authority_score, importance, created_at, last_accessed_at, access_count, superseded_by
		FROM memories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan memory row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var idStr string
	var concepts, surfacesWhen, createdAt, lastAccessedAt string
	var supersededBy sql.NullString

	if err := row.Scan(&idStr, &m.Content, &m.Domain, &m.MemoryType, &concepts, &surfacesWhen,
		&m.AuthorityScore, &m.Importance, &createdAt, &lastAccessedAt, &m.AccessCount, &supersededBy); err != nil {
		return model.Memory{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Memory{}, fmt.Errorf("corrupt memory id %q: %w", idStr, err)
	}
	m.ID = id
	m.Concepts = metadata.ParseStringList(concepts)
	m.SurfacesWhen = metadata.ParseStringList(surfacesWhen)
	m.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
	m.LastAccessedAt, _ = time.Parse(sqliteTimeLayout, lastAccessedAt)
	if supersededBy.Valid {
		id, err := uuid.Parse(supersededBy.String)
		if err == nil {
			m.SupersededBy = &id
		}
	}
	return m, nil
}

func (s *Store) relatedIDs(ctx context.Context, table, column string, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE memory_id = ?`, column, table), id.String()) //nolint:gosec // table/column are fixed internal constants, never user input
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out, rows.Err()
}

// RecordAccess bumps a memory's access_count and last_accessed_at. The
// increment happens in the SQL statement itself (access_count = access_count + 1),
// making it atomic under SQLite's single-writer lock without a separate
// read-modify-write round trip.
func (s *Store) RecordAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		at.UTC().Format(sqliteTimeLayout), id.String())
	if err != nil {
		return fmt.Errorf("store: record access for %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

// SetSupersededBy marks old as superseded by newer, rejecting the write if
// it would close a cycle in the supersession chain (spec §3: "supersedes is
// acyclic"). Generalizes the teacher's GetRevisionChainIDs — fetch the
// existing chain, then validate before writing, rather than trusting the
// caller.
func (s *Store) SetSupersededBy(ctx context.Context, old, newer uuid.UUID) error {
	if old == newer {
		return ErrCyclicSupersession
	}

	cursor := newer
	for i := 0; i < 10_000; i++ {
		var next sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT superseded_by FROM memories WHERE id = ?`, cursor.String()).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) || !next.Valid {
			break
		}
		if err != nil {
			return fmt.Errorf("store: walk supersession chain: %w", err)
		}
		nextID, err := uuid.Parse(next.String)
		if err != nil {
			break
		}
		if nextID == old {
			return ErrCyclicSupersession
		}
		cursor = nextID
	}

	res, err := s.db.ExecContext(ctx, `UPDATE memories SET superseded_by = ? WHERE id = ?`, newer.String(), old.String())
	if err != nil {
		return fmt.Errorf("store: set superseded_by: %w", err)
	}
	return checkRowsAffected(res, old)
}

// SetPotentialConflicts replaces the whole potential_conflicts table with
// reports, the conflict set the Curation Analyzer last computed. Each report
// is written in both directions, so both memories independently carry the
// relationship, matching the symmetric-by-construction invariant in spec §4.6.
func (s *Store) SetPotentialConflicts(ctx context.Context, reports []model.ConflictReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM potential_conflicts`); err != nil {
		return fmt.Errorf("store: clear potential_conflicts: %w", err)
	}

	for _, r := range reports {
		for _, pair := range [][2]uuid.UUID{{r.MemoryA, r.MemoryB}, {r.MemoryB, r.MemoryA}} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO potential_conflicts (memory_id, conflict_id, jaccard_overlap) VALUES (?, ?, ?)
				ON CONFLICT(memory_id, conflict_id) DO UPDATE SET jaccard_overlap = excluded.jaccard_overlap`,
				pair[0].String(), pair[1].String(), r.JaccardOverlap); err != nil {
				return fmt.Errorf("store: insert potential_conflict: %w", err)
			}
		}
	}
	return tx.Commit()
}

// RecordCoaccess bumps the co-access count for every unordered pair within
// ids, symmetrically in both directions, so score.coactivation's neighborhood
// lookup for either memory in a pair finds the other. Called once per
// completed search with the set of memories that search actually returned,
// building up the "co-accessed in the same session historically" history the
// Cognitive Scorer's coactivation signal reads back via CoactivationNeighbors.
func (s *Store) RecordCoaccess(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) < 2 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range ids {
		for j := range ids {
			if i == j {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO coaccess (memory_id, coaccessed_id, access_count) VALUES (?, ?, 1)
				ON CONFLICT(memory_id, coaccessed_id) DO UPDATE SET access_count = access_count + 1`,
				ids[i].String(), ids[j].String()); err != nil {
				return fmt.Errorf("store: insert coaccess: %w", err)
			}
		}
	}
	return tx.Commit()
}

// CoactivationNeighbors batch-loads each of ids' coactivation neighborhood —
// the set of memory IDs historically co-accessed with it in the same search —
// keyed by memory ID string to match the map[string]bool shape
// score.Scorer.Score already uses for recentIDs.
func (s *Store) CoactivationNeighbors(ctx context.Context, ids []uuid.UUID) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	query := fmt.Sprintf(`SELECT memory_id, coaccessed_id FROM coaccess WHERE memory_id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query coaccess: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var memoryID, coaccessedID string
		if err := rows.Scan(&memoryID, &coaccessedID); err != nil {
			return nil, fmt.Errorf("store: scan coaccess row: %w", err)
		}
		if out[memoryID] == nil {
			out[memoryID] = make(map[string]bool)
		}
		out[memoryID][coaccessedID] = true
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func encodeStringListJSON(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
