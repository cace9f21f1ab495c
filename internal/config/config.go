package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemod configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Recall ranking configuration
	Recall RecallConfig `yaml:"recall"`

	// Dream (idle consolidation) configuration
	Dream DreamConfig `yaml:"dream"`

	// Per-tenant context lifecycle
	Contexts ContextConfig `yaml:"contexts"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the sqlite-backed stores.
type StorageConfig struct {
	// Root directory; each tenant gets a subdirectory with its own database
	RootDir string `yaml:"root_dir"`

	// Require the sqlite-vec extension (fail startup if unavailable)
	RequireVectorExt bool `yaml:"require_vector_ext"`

	// Busy timeout for sqlite connections
	BusyTimeout string `yaml:"busy_timeout"`
}

// EmbeddingConfig configures the embedding engine and vector index.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // ollama, genai, none
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	Timeout   string `yaml:"timeout"`

	// Circuit breaker around the provider
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the embedding circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`
	OpenFor     string `yaml:"open_for"`
}

// RecallConfig configures recall ranking and memoization.
type RecallConfig struct {
	// Weight of the semantic signal; lexical gets the remainder
	SemanticWeight float64 `yaml:"semantic_weight"`

	// Relevance multiplier applied to failed goals matching the topic
	FailedGoalBoost float64 `yaml:"failed_goal_boost"`

	// Result cache
	CacheTTL     string `yaml:"cache_ttl"`
	CacheEntries int    `yaml:"cache_entries"`

	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// DreamConfig configures the idle consolidation scheduler.
type DreamConfig struct {
	Enabled     bool   `yaml:"enabled"`
	IdleTimeout string `yaml:"idle_timeout"`

	// ConnectionDiscovery strategy
	LookbackHours     int     `yaml:"lookback_hours"`
	MaxConnections    int     `yaml:"max_connections"`
	MinSharedEntities int     `yaml:"min_shared_entities"`
	Confidence        float64 `yaml:"confidence"`

	// CommunityRefresh strategy
	CommunityStaleness  string  `yaml:"community_staleness"`
	CommunityResolution float64 `yaml:"community_resolution"`
	CommunityMinSize    int     `yaml:"community_min_size"`
}

// ContextConfig configures per-tenant context lifecycle.
type ContextConfig struct {
	TTL           string `yaml:"ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mnemod",
		Version: "0.3.0",

		Storage: StorageConfig{
			RootDir:          "data",
			RequireVectorExt: false,
			BusyTimeout:      "5s",
		},

		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			Dimension: 768,
			Timeout:   "30s",
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenFor:     "60s",
			},
		},

		Recall: RecallConfig{
			SemanticWeight:  0.6,
			FailedGoalBoost: 1.15,
			CacheTTL:        "5m",
			CacheEntries:    256,
			DefaultLimit:    5,
			MaxLimit:        50,
		},

		Dream: DreamConfig{
			Enabled:             true,
			IdleTimeout:         "5m",
			LookbackHours:       168,
			MaxConnections:      10,
			MinSharedEntities:   2,
			Confidence:          0.6,
			CommunityStaleness:  "24h",
			CommunityResolution: 1.0,
			CommunityMinSize:    1,
		},

		Contexts: ContextConfig{
			TTL:           "30m",
			SweepInterval: "5m",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("MNEMOD_DATA_DIR"); dir != "" {
		c.Storage.RootDir = dir
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.APIKey = key
		c.Embedding.Provider = "genai"
	}
	if key := os.Getenv("MNEMOD_EMBED_KEY"); key != "" {
		c.Embedding.APIKey = key
	}
	if url := os.Getenv("MNEMOD_EMBED_URL"); url != "" {
		c.Embedding.BaseURL = url
	}
	if v := os.Getenv("MNEMOD_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// GetBusyTimeout returns the sqlite busy timeout as a duration.
func (c *Config) GetBusyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Storage.BusyTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetEmbeddingTimeout returns the embedding request timeout as a duration.
func (c *Config) GetEmbeddingTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRecallCacheTTL returns the recall cache TTL as a duration.
func (c *Config) GetRecallCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Recall.CacheTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetIdleTimeout returns the dream idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Dream.IdleTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetCommunityStaleness returns the community refresh staleness threshold.
func (c *Config) GetCommunityStaleness() time.Duration {
	d, err := time.ParseDuration(c.Dream.CommunityStaleness)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetContextTTL returns the per-tenant context TTL as a duration.
func (c *Config) GetContextTTL() time.Duration {
	d, err := time.ParseDuration(c.Contexts.TTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetSweepInterval returns the context eviction sweep interval.
func (c *Config) GetSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.Contexts.SweepInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetBreakerOpenFor returns how long the embedding breaker stays open.
func (c *Config) GetBreakerOpenFor() time.Duration {
	d, err := time.ParseDuration(c.Embedding.Breaker.OpenFor)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// ValidProviders lists all supported embedding providers.
var ValidProviders = []string{"ollama", "genai", "none"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage root_dir not configured")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidProviders)
	}

	if c.Embedding.Provider == "genai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("genai embedding provider requires an API key (set GEMINI_API_KEY)")
	}

	if c.Recall.SemanticWeight < 0 || c.Recall.SemanticWeight > 1 {
		return fmt.Errorf("recall semantic_weight must be in [0,1], got %v", c.Recall.SemanticWeight)
	}

	return nil
}
