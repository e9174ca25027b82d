package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.42")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.42 {
		t.Fatalf("expected 0.42, got %f", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "not-a-float")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid float, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="not-a-float" is not a valid float` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidDimensions(t *testing.T) {
	t.Setenv("ELEFANTE_EMBEDDING_DIMENSIONS", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid ELEFANTE_EMBEDDING_DIMENSIONS")
	}
	if got := err.Error(); !contains(got, "ELEFANTE_EMBEDDING_DIMENSIONS") || !contains(got, "abc") {
		t.Fatalf("error should mention ELEFANTE_EMBEDDING_DIMENSIONS and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("ELEFANTE_EMBEDDING_DIMENSIONS", "abc")
	t.Setenv("ELEFANTE_DASHBOARD_PORT", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "ELEFANTE_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention ELEFANTE_EMBEDDING_DIMENSIONS, got: %s", got)
	}
	if !contains(got, "ELEFANTE_DASHBOARD_PORT") {
		t.Fatalf("error should mention ELEFANTE_DASHBOARD_PORT, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.DashboardPort != 4173 {
		t.Fatalf("expected default dashboard port 4173, got %d", cfg.DashboardPort)
	}
	if cfg.EmbeddingDimensions != 1024 {
		t.Fatalf("expected default embedding dimensions 1024, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ConflictJaccardThresh != 0.60 {
		t.Fatalf("expected default conflict jaccard threshold 0.60, got %f", cfg.ConflictJaccardThresh)
	}
	if cfg.StaleAfter != 90*24*time.Hour {
		t.Fatalf("expected default stale-after 90d, got %s", cfg.StaleAfter)
	}
}

func TestLoad_ValidatesDashboardPortRange(t *testing.T) {
	t.Setenv("ELEFANTE_DASHBOARD_PORT", "70000")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when ELEFANTE_DASHBOARD_PORT is out of range")
	}
	if !contains(err.Error(), "ELEFANTE_DASHBOARD_PORT") {
		t.Fatalf("error should mention ELEFANTE_DASHBOARD_PORT, got: %s", err.Error())
	}
}

func TestLoad_ValidatesConflictJaccardThresholdRange(t *testing.T) {
	t.Setenv("ELEFANTE_CONFLICT_JACCARD_THRESHOLD", "1.5")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when ELEFANTE_CONFLICT_JACCARD_THRESHOLD is out of range")
	}
	if !contains(err.Error(), "ELEFANTE_CONFLICT_JACCARD_THRESHOLD") {
		t.Fatalf("error should mention ELEFANTE_CONFLICT_JACCARD_THRESHOLD, got: %s", err.Error())
	}
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_EmbeddingProviderSelection(t *testing.T) {
	t.Setenv("ELEFANTE_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.EmbeddingProvider != "ollama" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "ollama", cfg.EmbeddingProvider)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Fatalf("expected OllamaURL %q, got %q", "http://localhost:11434", cfg.OllamaURL)
	}
}

func TestLoad_QdrantURLDefaultsAndOverride(t *testing.T) {
	t.Run("explicit URL", func(t *testing.T) {
		qdrantURL := "https://qdrant.example.com:6334"
		t.Setenv("QDRANT_URL", qdrantURL)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != qdrantURL {
			t.Fatalf("expected QdrantURL %q, got %q", qdrantURL, cfg.QdrantURL)
		}
	})

	t.Run("default", func(t *testing.T) {
		// QDRANT_URL is not set; the local default should apply.
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != "http://localhost:6334" {
			t.Fatalf("expected default QdrantURL, got %q", cfg.QdrantURL)
		}
	})
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("ELEFANTE_DATA_DIR", "/tmp/elefante-test-data")
	t.Setenv("ELEFANTE_EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEFANTE_EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("ELEFANTE_EMBEDDING_DIMENSIONS", "3072")
	t.Setenv("OTEL_SERVICE_NAME", "elefante-test")
	t.Setenv("ELEFANTE_LOG_LEVEL", "debug")
	t.Setenv("ELEFANTE_QDRANT_COLLECTION", "elefante_test_memories")
	t.Setenv("ELEFANTE_DASHBOARD_PORT", "9090")
	t.Setenv("ELEFANTE_CURATION_WORKERS", "8")
	t.Setenv("ELEFANTE_STALE_AFTER", "48h")
	t.Setenv("ELEFANTE_SNAPSHOT_PERIOD", "1m")
	t.Setenv("ELEFANTE_TEMPORAL_DECAY_LAMBDA", "0.02")
	t.Setenv("ELEFANTE_CONFLICT_JACCARD_THRESHOLD", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.DataDir != "/tmp/elefante-test-data" {
		t.Fatalf("expected DataDir override, got %q", cfg.DataDir)
	}
	if cfg.EmbeddingProvider != "openai" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "openai", cfg.EmbeddingProvider)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("expected OpenAIAPIKey %q, got %q", "sk-test", cfg.OpenAIAPIKey)
	}
	if cfg.EmbeddingModel != "text-embedding-3-large" {
		t.Fatalf("expected EmbeddingModel %q, got %q", "text-embedding-3-large", cfg.EmbeddingModel)
	}
	if cfg.EmbeddingDimensions != 3072 {
		t.Fatalf("expected EmbeddingDimensions 3072, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ServiceName != "elefante-test" {
		t.Fatalf("expected ServiceName %q, got %q", "elefante-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if cfg.QdrantCollection != "elefante_test_memories" {
		t.Fatalf("expected QdrantCollection %q, got %q", "elefante_test_memories", cfg.QdrantCollection)
	}
	if cfg.DashboardPort != 9090 {
		t.Fatalf("expected DashboardPort 9090, got %d", cfg.DashboardPort)
	}
	if cfg.CurationWorkers != 8 {
		t.Fatalf("expected CurationWorkers 8, got %d", cfg.CurationWorkers)
	}
	if cfg.StaleAfter != 48*time.Hour {
		t.Fatalf("expected StaleAfter 48h, got %s", cfg.StaleAfter)
	}
	if cfg.SnapshotPeriod != time.Minute {
		t.Fatalf("expected SnapshotPeriod 1m, got %s", cfg.SnapshotPeriod)
	}
	if cfg.TemporalDecayLambda != 0.02 {
		t.Fatalf("expected TemporalDecayLambda 0.02, got %f", cfg.TemporalDecayLambda)
	}
	if cfg.ConflictJaccardThresh != 0.75 {
		t.Fatalf("expected ConflictJaccardThresh 0.75, got %f", cfg.ConflictJaccardThresh)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
