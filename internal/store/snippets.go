package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"scribe/internal/logging"
)

// Snippet is one chunk of corpus text available for recall.
type Snippet struct {
	ID        int64
	Source    string
	Content   string
	Score     float64 // similarity score when returned from search
	CreatedAt time.Time
}

// StoreSnippet stores a corpus snippet, embedding it when an engine is
// attached. Duplicate content (by hash) is skipped; returns true when a
// new row was inserted.
func (s *LocalStore) StoreSnippet(ctx context.Context, source, content string) (bool, error) {
	hash := contentHash(content)

	s.mu.Lock()
	engine := s.embeddingEngine
	s.mu.Unlock()

	var blob []byte
	if engine != nil {
		vec, err := engine.Embed(ctx, content)
		if err != nil {
			// Store without an embedding rather than drop the snippet;
			// re-embedding can backfill later.
			logging.Get(logging.CategoryStore).Warn("Embedding failed for snippet from %s: %v", source, err)
		} else {
			blob = serializeVector(vec)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT OR IGNORE INTO snippets
		(source, content, content_hash, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		source, content, hash, blob, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to store snippet: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SnippetCount returns the number of stored snippets.
func (s *LocalStore) SnippetCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snippets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snippets: %w", err)
	}
	return n, nil
}

// SearchSnippets returns the top-k snippets most similar to the query.
// Without an embedding engine it returns nothing: recall is an
// enhancement, not a requirement, for drafting.
func (s *LocalStore) SearchSnippets(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = 5
	}

	s.mu.RLock()
	engine := s.embeddingEngine
	s.mu.RUnlock()

	if engine == nil {
		return nil, nil
	}

	queryVec, err := engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	timer := logging.StartTimer(logging.CategoryStore, "SearchSnippets")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		return s.searchSnippetsVec(queryVec, k)
	}

	// Brute-force cosine scan. The corpus is operator notes, not a web
	// crawl; scanning thousands of rows is well under a millisecond per
	// hundred snippets.
	rows, err := s.db.Query(`SELECT id, source, content, embedding, created_at
		FROM snippets WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan snippets: %w", err)
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		var blob []byte
		var createdAt int64
		if err := rows.Scan(&sn.ID, &sn.Source, &sn.Content, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		sn.CreatedAt = time.UnixMilli(createdAt)

		vec := deserializeVector(blob)
		if len(vec) != len(queryVec) {
			// Engine changed dimensions since this snippet was stored
			continue
		}
		sn.Score = cosineSimilarity(queryVec, vec)
		results = append(results, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}

	logging.StoreDebug("SearchSnippets: %d candidates, returning %d", len(results), min(k, len(results)))
	return results, nil
}

// searchSnippetsVec ranks snippets with the sqlite-vec extension instead
// of scanning in Go. Caller holds the read lock.
func (s *LocalStore) searchSnippetsVec(queryVec []float32, k int) ([]Snippet, error) {
	rows, err := s.db.Query(`SELECT id, source, content, created_at,
		vec_distance_cosine(embedding, ?) AS distance
		FROM snippets WHERE embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?`, serializeVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("vec snippet search failed: %w", err)
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		var createdAt int64
		var distance float64
		if err := rows.Scan(&sn.ID, &sn.Source, &sn.Content, &createdAt, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		sn.CreatedAt = time.UnixMilli(createdAt)
		sn.Score = 1 - distance
		results = append(results, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("SearchSnippets (vec): returning %d", len(results))
	return results, nil
}

// contentHash returns the dedup key for snippet content.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// serializeVector packs a float32 slice into a little-endian blob.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector unpacks a little-endian blob into a float32 slice.
func deserializeVector(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
