// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Storage settings.
	DataDir string // Base directory for the SQLite memory store and the Badger graph store.

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int // Vector dimensions; must match the chosen model's output.
	OllamaURL           string
	OllamaModel         string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool // Use HTTP instead of HTTPS for the OTEL exporter (default: true).
	ServiceName  string

	// Qdrant vector index settings.
	QdrantURL        string // gRPC-compatible URL (e.g. "http://localhost:6334")
	QdrantAPIKey     string
	QdrantCollection string

	// Dashboard settings.
	DashboardPort int

	// Cognitive Scorer / Curation Analyzer tunables (spec §4.4, §4.6, §9 Open Questions).
	TemporalDecayLambda   float64 // Per-day decay rate for the temporal signal. Default 0.01.
	StaleAfter            time.Duration
	ConflictJaccardThresh float64 // Concept-overlap floor for potential_conflicts flagging. Default 0.60.
	CurationWorkers       int     // Bounded worker pool size for AnalyzeAll.

	// Operational settings.
	LogLevel       string
	SnapshotPeriod time.Duration // How often cmd/elefante-snapshot regenerates the curation snapshot in daemon mode.
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value,
// or if the resulting configuration fails Validate (an out-of-range value).
// Missing variables use sensible defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		DataDir:             envStr("ELEFANTE_DATA_DIR", defaultDataDir()),
		EmbeddingProvider:   envStr("ELEFANTE_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:      envStr("ELEFANTE_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "elefante"),
		QdrantURL:           envStr("QDRANT_URL", "http://localhost:6334"),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("ELEFANTE_QDRANT_COLLECTION", "elefante_memories"),
		LogLevel:            envStr("ELEFANTE_LOG_LEVEL", "info"),
	}

	cfg.EmbeddingDimensions, errs = collectInt(errs, "ELEFANTE_EMBEDDING_DIMENSIONS", 1024)
	cfg.DashboardPort, errs = collectInt(errs, "ELEFANTE_DASHBOARD_PORT", 4173)
	cfg.CurationWorkers, errs = collectInt(errs, "ELEFANTE_CURATION_WORKERS", 4)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", true)

	cfg.StaleAfter, errs = collectDuration(errs, "ELEFANTE_STALE_AFTER", 90*24*time.Hour)
	cfg.SnapshotPeriod, errs = collectDuration(errs, "ELEFANTE_SNAPSHOT_PERIOD", 5*time.Minute)

	cfg.TemporalDecayLambda, errs = collectFloat(errs, "ELEFANTE_TEMPORAL_DECAY_LAMBDA", 0.01)
	cfg.ConflictJaccardThresh, errs = collectFloat(errs, "ELEFANTE_CONFLICT_JACCARD_THRESHOLD", 0.60)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultDataDir places memory state under the user's home directory,
// matching the single-user/local deployment model — there is no shared
// database to point at.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".elefante"
	}
	return home + "/.elefante"
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is sane.
func (c Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("config: ELEFANTE_DATA_DIR must not be empty"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: ELEFANTE_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.DashboardPort < 1 || c.DashboardPort > 65535 {
		errs = append(errs, errors.New("config: ELEFANTE_DASHBOARD_PORT must be between 1 and 65535"))
	}
	if c.CurationWorkers <= 0 {
		errs = append(errs, errors.New("config: ELEFANTE_CURATION_WORKERS must be positive"))
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, errors.New("config: ELEFANTE_STALE_AFTER must be positive"))
	}
	if c.SnapshotPeriod <= 0 {
		errs = append(errs, errors.New("config: ELEFANTE_SNAPSHOT_PERIOD must be positive"))
	}
	if c.TemporalDecayLambda <= 0 {
		errs = append(errs, errors.New("config: ELEFANTE_TEMPORAL_DECAY_LAMBDA must be positive"))
	}
	if c.ConflictJaccardThresh <= 0 || c.ConflictJaccardThresh > 1 {
		errs = append(errs, errors.New("config: ELEFANTE_CONFLICT_JACCARD_THRESHOLD must be in (0, 1]"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}
