package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "mnemod" || cfg.Recall.SemanticWeight != 0.6 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemod.yaml")
	body := `
recall:
  semantic_weight: 0.8
dream:
  idle_timeout: 10m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recall.SemanticWeight != 0.8 {
		t.Errorf("semantic_weight = %v, want 0.8", cfg.Recall.SemanticWeight)
	}
	if got := cfg.GetIdleTimeout(); got != 10*time.Minute {
		t.Errorf("idle timeout = %v, want 10m", got)
	}
	// Untouched keys keep their defaults.
	if cfg.Recall.FailedGoalBoost != 1.15 {
		t.Errorf("failed_goal_boost = %v, want default 1.15", cfg.Recall.FailedGoalBoost)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MNEMOD_DATA_DIR", "/tmp/elsewhere")
	t.Setenv("GEMINI_API_KEY", "k123")
	t.Setenv("MNEMOD_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.RootDir != "/tmp/elsewhere" {
		t.Errorf("RootDir = %q", cfg.Storage.RootDir)
	}
	if cfg.Embedding.Provider != "genai" || cfg.Embedding.APIKey != "k123" {
		t.Errorf("GEMINI_API_KEY should select the genai provider: %+v", cfg.Embedding)
	}
	if !cfg.Logging.DebugMode || cfg.Logging.Level != "debug" {
		t.Errorf("debug override not applied: %+v", cfg.Logging)
	}
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contexts.TTL = "not a duration"
	cfg.Embedding.Breaker.OpenFor = ""

	if got := cfg.GetContextTTL(); got != 30*time.Minute {
		t.Errorf("GetContextTTL = %v, want 30m fallback", got)
	}
	if got := cfg.GetBreakerOpenFor(); got != 60*time.Second {
		t.Errorf("GetBreakerOpenFor = %v, want 60s fallback", got)
	}
	if got := cfg.GetCommunityStaleness(); got != 24*time.Hour {
		t.Errorf("GetCommunityStaleness = %v, want default 24h", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"empty root dir", func(c *Config) { c.Storage.RootDir = "" }, true},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cloudmagic" }, true},
		{"genai without key", func(c *Config) { c.Embedding.Provider = "genai"; c.Embedding.APIKey = "" }, true},
		{"genai with key", func(c *Config) { c.Embedding.Provider = "genai"; c.Embedding.APIKey = "k" }, false},
		{"weight out of range", func(c *Config) { c.Recall.SemanticWeight = 1.5 }, true},
		{"provider none", func(c *Config) { c.Embedding.Provider = "none" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "mnemod.yaml")
	cfg := DefaultConfig()
	cfg.Recall.CacheEntries = 99

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Recall.CacheEntries != 99 {
		t.Errorf("CacheEntries = %d, want 99", back.Recall.CacheEntries)
	}
}
