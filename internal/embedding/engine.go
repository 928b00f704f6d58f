// Package embedding provides vector embedding engines for corpus recall.
package embedding

import (
	"context"
	"fmt"

	"scribe/internal/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name for diagnostics.
	Name() string

	// Close releases engine resources.
	Close() error
}

// NewEngine builds an Engine from configuration. When the genai provider is
// selected but no API key is available, the deterministic hash engine is
// used so ingestion and recall stay functional offline.
func NewEngine(ctx context.Context, cfg config.EmbeddingConfig) (Engine, error) {
	switch cfg.Provider {
	case "genai", "":
		if cfg.APIKey == "" {
			return NewHashEngine(), nil
		}
		return NewGenAIEngine(ctx, cfg.APIKey, cfg.Model, cfg.TaskType)
	case "hash":
		return NewHashEngine(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
