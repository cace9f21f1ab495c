// Package vector provides the semantic-similarity signal for recall: an
// embedding engine abstraction with local (Ollama) and cloud (GenAI)
// backends, a circuit breaker, and an embedded chromem index holding one
// collection per profile.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"mnemod/internal/logging"
)

// ErrUnavailable is returned when no embedding engine is configured or the
// circuit breaker is open. Callers degrade to lexical-only ranking.
var ErrUnavailable = errors.New("embedding unavailable")

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	Provider  string // "ollama", "genai", or "none"
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
}

// NewEngine creates an embedding engine based on configuration. Provider
// "none" returns nil with no error; recall then runs lexical-only.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "vector.NewEngine")
	defer timer.Stop()

	switch cfg.Provider {
	case "none", "":
		logging.Embedding("no embedding provider configured; semantic ranking disabled")
		return nil, nil
	case "ollama":
		logging.Embedding("initializing ollama engine: url=%s model=%s", cfg.BaseURL, cfg.Model)
		return NewOllamaEngine(cfg.BaseURL, cfg.Model, cfg.Dimension)
	case "genai":
		logging.Embedding("initializing genai engine: model=%s", cfg.Model)
		return NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama', 'genai', or 'none')", cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
