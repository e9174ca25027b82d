package elefante

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"github.com/elefante-ai/elefante/internal/assemble"
	"github.com/elefante-ai/elefante/internal/classifier"
	"github.com/elefante-ai/elefante/internal/config"
	"github.com/elefante-ai/elefante/internal/curate"
	"github.com/elefante-ai/elefante/internal/embedding"
	"github.com/elefante-ai/elefante/internal/graphstore"
	"github.com/elefante-ai/elefante/internal/mcpserver"
	"github.com/elefante-ai/elefante/internal/model"
	"github.com/elefante-ai/elefante/internal/proactive"
	"github.com/elefante-ai/elefante/internal/score"
	"github.com/elefante-ai/elefante/internal/store"
	"github.com/elefante-ai/elefante/internal/telemetry"
	"github.com/elefante-ai/elefante/internal/vectorindex"
)

// App is the Elefante memory engine's lifecycle. Construct with New(), then
// mount MCPServer() on a transport of the caller's choosing (cmd/elefante
// uses stdio). App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        *store.Store
	graph        *graphstore.BadgerStore
	index        *vectorindex.QdrantIndex
	mcpSrv       *mcpserver.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initializes Elefante: it loads configuration, opens the SQLite memory
// store and Badger graph store, connects to Qdrant, constructs every
// cognitive engine component, and wires them behind an MCP tool surface.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present; a local single-user deployment is the
	// common case, and production supervisors won't have one.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.qdrantURL != "" {
		cfg.QdrantURL = o.qdrantURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("elefante starting", "version", version, "data_dir", cfg.DataDir)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "elefante.db"))
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("store: %w", err)
	}

	graph, err := graphstore.Open(filepath.Join(cfg.DataDir, "graph"), logger)
	if err != nil {
		_ = st.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("graphstore: %w", err)
	}

	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = embeddingProviderAdapter{o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	var cls classifier.Classifier
	if o.classifier != nil {
		cls = classifierAdapter{o.classifier}
	} else {
		cls = classifier.NoopClassifier{}
	}

	index, err := vectorindex.NewQdrantIndex(vectorindex.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // EmbeddingDimensions is validated positive by config.Validate
	}, logger)
	if err != nil {
		_ = graph.Close()
		_ = st.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("vectorindex: %w", err)
	}
	if err := index.EnsureCollection(context.Background()); err != nil {
		_ = index.Close()
		_ = graph.Close()
		_ = st.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("vectorindex: ensure collection: %w", err)
	}

	assembler := assemble.New(index, graph, st, embedder, cls, logger)
	scorer := score.New(cfg.TemporalDecayLambda)
	surfacer := proactive.New(storeMemorySource{st}, scorer, logger)
	analyzer := curate.New(cfg.StaleAfter, cfg.ConflictJaccardThresh, cfg.CurationWorkers)

	var hooks []mcpserver.MemoryHook
	for _, h := range o.eventHooks {
		hooks = append(hooks, eventHookAdapter{h})
	}
	var middlewares []mcpserver.Middleware
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, adaptMiddleware(mw))
	}

	mcpSrv := mcpserver.New(mcpserver.Deps{
		Store:       st,
		Graph:       graph,
		Index:       index,
		Embedder:    embedder,
		Assembler:   assembler,
		Scorer:      scorer,
		Surfacer:    surfacer,
		Analyzer:    analyzer,
		Logger:      logger,
		Hooks:       hooks,
		Middlewares: middlewares,
	}, version)

	return &App{
		cfg:          cfg,
		store:        st,
		graph:        graph,
		index:        index,
		mcpSrv:       mcpSrv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// MCPServer returns the underlying mark3labs/mcp-go server so a caller can
// mount it on whatever transport fits (stdio, an in-process test harness, or
// an embedding host's own HTTP mux).
func (a *App) MCPServer() *mcpgoserver.MCPServer {
	return a.mcpSrv.MCPServer()
}

// Config returns the resolved configuration the App was built from, for
// callers (such as cmd/elefante-snapshot) that need DataDir and
// SnapshotPeriod without re-loading the environment.
func (a *App) Config() config.Config { return a.cfg }

// Store exposes the memory store for callers building a snapshot pipeline
// alongside a running App.
func (a *App) Store() *store.Store { return a.store }

// Graph exposes the graph store for the same reason as Store.
func (a *App) Graph() *graphstore.BadgerStore { return a.graph }

// Logger returns the App's structured logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Shutdown closes the Qdrant connection, the graph store, the memory store,
// and the OpenTelemetry provider, in that order. Call it once, after the MCP
// transport loop returns; a failed New returns no App and has already
// released what it opened.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("elefante shutting down")

	var errs []error
	if err := a.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("vectorindex close: %w", err))
	}
	if err := a.graph.Close(); err != nil {
		errs = append(errs, fmt.Errorf("graphstore close: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if err := a.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	msg := "elefante: shutdown encountered errors:"
	for _, e := range errs {
		msg += "\n  " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

// newEmbeddingProvider auto-detects which embedding backend to use: an
// explicit "openai" or "ollama" choice, or "auto", which prefers OpenAI when
// an API key is present and otherwise assumes a local Ollama install, so
// memory content leaves the machine under "auto" only when OPENAI_API_KEY is
// set. "noop" (or any other value)
// falls back to the deterministic hash-based provider, the same one tests
// use, so a misconfigured provider degrades to non-semantic-but-functional
// retrieval rather than failing startup.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	provider := cfg.EmbeddingProvider
	if provider == "auto" {
		if cfg.OpenAIAPIKey != "" {
			provider = "openai"
		} else {
			provider = "ollama"
		}
	}

	switch provider {
	case "openai":
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			logger.Warn("embedding: openai provider unavailable, falling back to noop", "error", err)
			return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
		}
		logger.Info("embedding: openai provider configured", "model", cfg.EmbeddingModel)
		return p
	case "ollama":
		logger.Info("embedding: ollama provider configured", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
	default:
		logger.Warn("embedding: no real provider configured, using deterministic noop provider", "configured", cfg.EmbeddingProvider)
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}
}

// storeMemorySource adapts *store.Store to internal/proactive.MemorySource,
// which asks for AllMemories and CoactivationNeighbors — a one-line rename
// rather than changing either package's own vocabulary for its own concern.
type storeMemorySource struct{ s *store.Store }

func (a storeMemorySource) AllMemories(ctx context.Context) ([]model.Memory, error) {
	return a.s.All(ctx)
}

func (a storeMemorySource) CoactivationNeighbors(ctx context.Context, ids []uuid.UUID) (map[string]map[string]bool, error) {
	return a.s.CoactivationNeighbors(ctx, ids)
}

// embeddingProviderAdapter adapts the public EmbeddingProvider interface to
// internal/embedding.Provider. The two interfaces already share an identical
// method set; this type exists only to cross the package boundary without
// internal/embedding importing the root package (which would cycle).
type embeddingProviderAdapter struct{ p EmbeddingProvider }

func (a embeddingProviderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

func (a embeddingProviderAdapter) Dimensions() int { return a.p.Dimensions() }

// classifierAdapter adapts the public Classifier interface to
// internal/classifier.Classifier, for the same reason as
// embeddingProviderAdapter above.
type classifierAdapter struct{ c Classifier }

func (a classifierAdapter) ClassifyIntent(ctx context.Context, text string) (string, error) {
	return a.c.ClassifyIntent(ctx, text)
}

// eventHookAdapter adapts the public EventHook to internal/mcpserver.MemoryHook,
// converting the internal model.Memory each hook fires on into the public,
// dependency-free Memory type.
type eventHookAdapter struct{ hook EventHook }

func (a eventHookAdapter) OnMemoryAdded(ctx context.Context, m model.Memory) error {
	return a.hook.OnMemoryAdded(ctx, toPublicMemory(m))
}

func (a eventHookAdapter) OnMemoryCurated(ctx context.Context, m model.Memory, health string) error {
	return a.hook.OnMemoryCurated(ctx, toPublicMemory(m), health)
}

func toPublicMemory(m model.Memory) Memory {
	var supersededBy *string
	if m.SupersededBy != nil {
		s := m.SupersededBy.String()
		supersededBy = &s
	}
	return Memory{
		ID:             m.ID.String(),
		Content:        m.Content,
		Domain:         m.Domain,
		MemoryType:     m.MemoryType,
		Concepts:       m.Concepts,
		SurfacesWhen:   m.SurfacesWhen,
		AuthorityScore: m.AuthorityScore,
		Importance:     m.Importance,
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.LastAccessedAt,
		AccessCount:    m.AccessCount,
		SupersededBy:   supersededBy,
	}
}

// adaptMiddleware converts the public Middleware type to
// internal/mcpserver.Middleware. Both share the exact same underlying
// function shape (func(next func(...)...) func(...)...); the conversion is
// a type assertion-free reslicing of that shape across the package boundary.
func adaptMiddleware(mw Middleware) mcpserver.Middleware {
	return func(next mcpserver.ToolHandler) mcpserver.ToolHandler {
		wrapped := mw(ToolHandlerFunc(next))
		return mcpserver.ToolHandler(wrapped)
	}
}
