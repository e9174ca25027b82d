// Command elefante-snapshot regenerates the curation snapshot file
// internal/dashboard reads. It opens the memory store and graph store
// directly rather than through the full elefante.App — the snapshot never
// touches the vector index, so there is no reason to pay for a Qdrant
// connection just to write a JSON file.
//
// Run once and exit (default), or pass -daemon to regenerate on a loop at
// the configured ELEFANTE_SNAPSHOT_PERIOD interval until terminated.
//
// The graph store is an embedded, single-process Badger database: this
// command cannot run concurrently with cmd/elefante against the same
// ELEFANTE_DATA_DIR. Stop the server first, or point ELEFANTE_DATA_DIR at a
// read replica directory synced on your own schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/elefante-ai/elefante/internal/config"
	"github.com/elefante-ai/elefante/internal/curate"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/snapshot"
	"github.com/elefante-ai/elefante/internal/store"
)

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	daemon := flag.Bool("daemon", false, "regenerate the snapshot on a loop instead of once")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *daemon); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, daemon bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "elefante.db"))
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = st.Close() }()

	graph, err := graphstore.Open(filepath.Join(cfg.DataDir, "graph"), logger)
	if err != nil {
		return fmt.Errorf("graphstore: %w", err)
	}
	defer func() { _ = graph.Close() }()

	analyzer := curate.New(cfg.StaleAfter, cfg.ConflictJaccardThresh, cfg.CurationWorkers)
	snapshotPath := filepath.Join(cfg.DataDir, "snapshot.json")

	if !daemon {
		return generateOnce(ctx, st, graph, analyzer, snapshotPath, logger)
	}

	logger.Info("elefante-snapshot: daemon mode", "period", cfg.SnapshotPeriod, "path", snapshotPath)
	ticker := time.NewTicker(cfg.SnapshotPeriod)
	defer ticker.Stop()

	if err := generateOnce(ctx, st, graph, analyzer, snapshotPath, logger); err != nil {
		logger.Error("elefante-snapshot: initial generation failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := generateOnce(ctx, st, graph, analyzer, snapshotPath, logger); err != nil {
				logger.Error("elefante-snapshot: generation failed", "error", err)
			}
		}
	}
}

func generateOnce(ctx context.Context, st *store.Store, graph graphstore.Store, analyzer *curate.Analyzer, path string, logger *slog.Logger) error {
	// Persist whatever the analyzer's own conflict pass finds before the
	// snapshot reads memories, so curate.Health's potential_conflicts rule
	// and the snapshot's memory nodes both reflect live detection rather
	// than whatever was last written at ingestion time.
	memories, err := st.All(ctx)
	if err != nil {
		return fmt.Errorf("list memories: %w", err)
	}
	_, conflicts, err := analyzer.AnalyzeAll(ctx, memories, graph, time.Now())
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := st.SetPotentialConflicts(ctx, conflicts); err != nil {
		logger.Warn("elefante-snapshot: persist potential conflicts failed", "error", err)
	}

	snap, err := snapshot.Generate(ctx, st, graph, analyzer, time.Now())
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := snapshot.WriteFile(snap, path); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	logger.Info("elefante-snapshot: wrote snapshot",
		"path", path,
		"total_memories", snap.Stats.TotalMemories,
		"total_entities", snap.Stats.TotalEntities,
		"total_edges", snap.Stats.TotalEdges,
	)
	return nil
}
