package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ScopeMode controls how memories from different logical scopes (sessions,
// conversations) are stored.
type ScopeMode string

const (
	// ScopeShared keeps one shared memory pool; the scope id is recorded on
	// each memory but does not partition retrieval. This is the default.
	ScopeShared ScopeMode = "shared"

	// ScopePerScope partitions retrieval by scope id: queries only see
	// memories created under the same scope.
	ScopePerScope ScopeMode = "per_scope"
)

// Config contains the complete configuration for an engram store.
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4o-mini",
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	    },
//	    RecordStore: core.RecordStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./engram.db",
//	        },
//	    },
//	}
type Config struct {
	// LLM contains LLM provider configuration (extraction and planning).
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// RecordStore contains durable record store configuration.
	RecordStore RecordStoreConfig `json:"record_store"`

	// Memory tunes the engine behavior (optional, defaults applied).
	Memory MemoryConfig `json:"memory"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai, ollama. An empty provider disables
// extraction and query planning; the store then only accepts prebuilt
// records and retrieves without a planner.
type LLMConfig struct {
	// Provider is the LLM provider name (openai, ollama).
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g., "gpt-4o-mini", "llama3.1").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, provider default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, hash. The hash provider is deterministic
// and offline, meant for tests and air-gapped use.
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, hash).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the vector dimension. 0 auto-detects from the first
	// successful embedding.
	Dimensions int `json:"dimensions,omitempty"`
}

// RecordStoreConfig contains configuration for durable persistence.
//
// Supported providers: sqlite, postgres, mysql, none. "none" keeps records
// in memory only (snapshots remain available).
type RecordStoreConfig struct {
	// Provider is the record store provider name (sqlite, postgres, mysql, none).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table
	// For PostgreSQL: host, port, user, password, db_name, table, ssl_mode
	// For MySQL: host, port, user, password, db_name, table
	Config map[string]interface{} `json:"config"`
}

// MemoryConfig tunes the memory engine. Zero values take documented defaults.
type MemoryConfig struct {
	// ScopeMode is "shared" (default) or "per_scope".
	ScopeMode ScopeMode `json:"scope_mode,omitempty"`

	// IndexBackend selects the vector index: "linear" (default) or "ann".
	IndexBackend string `json:"index_backend,omitempty"`

	// SnapshotDir is where index snapshots are written. Empty disables
	// snapshotting.
	SnapshotDir string `json:"snapshot_dir,omitempty"`

	// FusionThreshold is the composite similarity above which two records
	// merge. Default 0.85.
	FusionThreshold float64 `json:"fusion_threshold,omitempty"`

	// MinRebuildInterval throttles Build calls per scope. Default 30s.
	MinRebuildInterval time.Duration `json:"min_rebuild_interval,omitempty"`

	// MetadataFilterLimit caps the retrieval coarse-filter set. Default 200.
	MetadataFilterLimit int `json:"metadata_filter_limit,omitempty"`

	// VectorThreshold is the minimum similarity for a vector hit. Default 0.45.
	VectorThreshold float64 `json:"vector_threshold,omitempty"`

	// SemanticThreshold is the lower lexical cutoff. Default 0.1.
	SemanticThreshold float64 `json:"semantic_threshold,omitempty"`

	// DormantAfterDays marks records dormant after this many days without
	// access. Default 90.
	DormantAfterDays float64 `json:"dormant_after_days,omitempty"`

	// ForceEvictAfterDays force-evicts dormant records after this many days
	// without access. Default 180.
	ForceEvictAfterDays float64 `json:"force_evict_after_days,omitempty"`

	// MaintenanceInterval is the period of the background maintenance loop
	// (forgetting sweep + index compaction). 0 disables the loop;
	// Maintenance can still be called manually.
	MaintenanceInterval time.Duration `json:"maintenance_interval,omitempty"`

	// EmbeddingCacheSize is the maximum number of cached embeddings.
	// Default 4096.
	EmbeddingCacheSize int64 `json:"embedding_cache_size,omitempty"`

	// PlannerEnabled turns on the LLM query planner. Requires an LLM
	// provider.
	PlannerEnabled bool `json:"planner_enabled,omitempty"`

	// DefaultScope is the scope id used when a session context carries
	// none.
	DefaultScope string `json:"default_scope,omitempty"`
}

// applyDefaults fills zero values with the documented defaults.
func (m *MemoryConfig) applyDefaults() {
	if m.ScopeMode == "" {
		m.ScopeMode = ScopeShared
	}
	if m.IndexBackend == "" {
		m.IndexBackend = "linear"
	}
	if m.FusionThreshold <= 0 {
		m.FusionThreshold = 0.85
	}
	if m.MinRebuildInterval <= 0 {
		m.MinRebuildInterval = 30 * time.Second
	}
	if m.MetadataFilterLimit <= 0 {
		m.MetadataFilterLimit = 200
	}
	if m.VectorThreshold <= 0 {
		m.VectorThreshold = 0.45
	}
	if m.SemanticThreshold <= 0 {
		m.SemanticThreshold = 0.1
	}
	if m.DormantAfterDays <= 0 {
		m.DormantAfterDays = 90
	}
	if m.ForceEvictAfterDays <= 0 {
		m.ForceEvictAfterDays = 180
	}
	if m.EmbeddingCacheSize <= 0 {
		m.EmbeddingCacheSize = 4096
	}
	if m.DefaultScope == "" {
		m.DefaultScope = "default"
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql, none)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - MEMORY_SCOPE_MODE, MEMORY_INDEX_BACKEND, MEMORY_SNAPSHOT_DIR, MEMORY_PLANNER_ENABLED
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storeConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./engram.db"),
			"table":   getEnvOrDefault("SQLITE_TABLE", "memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "engram"),
			"table":    getEnvOrDefault("POSTGRES_TABLE", "memories"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "engram"),
			"table":    getEnvOrDefault("MYSQL_TABLE", "memories"),
		}
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	var llmBaseURL, defaultModel string
	switch llmProvider {
	case "ollama":
		llmBaseURL = getEnvOrDefault("OLLAMA_LLM_BASE_URL", "http://localhost:11434")
		defaultModel = "llama3.1"
	default:
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		defaultModel = "gpt-4o-mini"
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embedderModel := os.Getenv("EMBEDDING_MODEL")
	if embedderModel == "" && embedderProvider == "openai" {
		embedderModel = "text-embedding-3-small"
	}
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "0"))

	config := &Config{
		LLM: LLMConfig{
			Provider: llmProvider,
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", defaultModel),
			BaseURL:  llmBaseURL,
		},
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		RecordStore: RecordStoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Memory: MemoryConfig{
			ScopeMode:      ScopeMode(getEnvOrDefault("MEMORY_SCOPE_MODE", string(ScopeShared))),
			IndexBackend:   getEnvOrDefault("MEMORY_INDEX_BACKEND", "linear"),
			SnapshotDir:    os.Getenv("MEMORY_SNAPSHOT_DIR"),
			PlannerEnabled: os.Getenv("MEMORY_PLANNER_ENABLED") == "true",
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewStoreError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewStoreError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// An embedding provider is always required. The LLM provider is optional
// (extraction and planning are then unavailable). The record store provider
// must be one of the known backends.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewStoreError("Validate", ErrInvalidConfig)
	}
	switch c.RecordStore.Provider {
	case "", "none", "sqlite", "postgres", "mysql":
	default:
		return NewStoreError("Validate", ErrInvalidConfig)
	}
	switch c.Memory.ScopeMode {
	case "", ScopeShared, ScopePerScope:
	default:
		return NewStoreError("Validate", ErrInvalidConfig)
	}
	if c.Memory.PlannerEnabled && c.LLM.Provider == "" {
		return NewStoreError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// Checks the current directory first, then walks up to 5 parent directories.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
