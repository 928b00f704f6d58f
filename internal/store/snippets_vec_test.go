//go:build sqlite_vec && cgo

package store

import (
	"context"
	"testing"

	"scribe/internal/embedding"
)

func TestSearchSnippetsVecPath(t *testing.T) {
	st := openTestStore(t)
	if !st.vectorExt {
		t.Fatal("vec build should report the extension available")
	}
	st.SetEmbeddingEngine(embedding.NewHashEngine())

	ctx := context.Background()
	if _, err := st.StoreSnippet(ctx, "cdn.md", "Edge caches keep content close to users."); err != nil {
		t.Fatalf("store snippet: %v", err)
	}
	if _, err := st.StoreSnippet(ctx, "db.md", "Vacuum thresholds tune autovacuum pacing."); err != nil {
		t.Fatalf("store snippet: %v", err)
	}

	got, err := st.SearchSnippets(ctx, "edge caches close to users", 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Source != "cdn.md" {
		t.Fatalf("expected cdn.md ranked first, got %s", got[0].Source)
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("results not ranked by similarity: %+v", got)
	}
}
