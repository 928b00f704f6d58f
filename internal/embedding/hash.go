package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// hashDimensions keeps the fallback engine cheap while leaving enough
// buckets for token-level separation.
const hashDimensions = 256

// HashEngine is a deterministic, offline embedding engine. It hashes
// tokens into a fixed number of buckets and L2-normalizes the result.
// Recall quality is crude but stable, which is what tests and keyless
// environments need.
type HashEngine struct{}

// NewHashEngine creates a new hash embedding engine.
func NewHashEngine() *HashEngine {
	return &HashEngine{}
}

// Embed generates a deterministic embedding for a single text.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDimensions)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()[]{}")
		if token == "" {
			continue
		}
		sum := sha256.Sum256([]byte(token))
		bucket := binary.BigEndian.Uint32(sum[:4]) % hashDimensions
		// Sign bit from the hash spreads tokens across both directions
		if sum[4]&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int {
	return hashDimensions
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash"
}

// Close is a no-op.
func (e *HashEngine) Close() error {
	return nil
}
