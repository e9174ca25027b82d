package elefante

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	dataDir           string
	qdrantURL         string
	logger            *slog.Logger
	version           string
	embeddingProvider EmbeddingProvider
	classifier        Classifier
	eventHooks        []EventHook
	middlewares       []Middleware
}

// WithDataDir overrides the base directory for the SQLite memory store and
// the Badger graph store (ELEFANTE_DATA_DIR env var).
func WithDataDir(dir string) Option {
	return func(o *resolvedOptions) { o.dataDir = dir }
}

// WithQdrantURL overrides the Qdrant gRPC endpoint from config (QDRANT_URL
// env var). Elefante runs equally well against a local Qdrant container or
// Qdrant Cloud; this only changes where vectors are indexed.
func WithQdrantURL(url string) Option {
	return func(o *resolvedOptions) { o.qdrantURL = url }
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported to MCP clients at
// initialize, in logs, and as the OpenTelemetry service version.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (Ollama/OpenAI/noop).
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithClassifier replaces the default NoopClassifier used for query-intent
// analysis in the Candidate Assembler.
func WithClassifier(c Classifier) Option {
	return func(o *resolvedOptions) { o.classifier = c }
}

// WithEventHook registers an event hook to receive memory lifecycle
// notifications. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithMiddleware registers an outermost tool-call middleware. Multiple
// middlewares may be registered. Applied in registration order: the
// first-registered middleware is outermost (called first for every tool
// invocation).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
