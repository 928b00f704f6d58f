package embedding

import "testing"

func TestNormalizeTaskType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "SEMANTIC_SIMILARITY"},
		{"SEMANTIC_SIMILARITY", "SEMANTIC_SIMILARITY"},
		{"RETRIEVAL_DOCUMENT", "RETRIEVAL_DOCUMENT"},
		{"RETRIEVAL_QUERY", "RETRIEVAL_QUERY"},
		{"CLUSTERING", "CLUSTERING"},
		{"not-a-task-type", "SEMANTIC_SIMILARITY"},
	}
	for _, tt := range tests {
		if got := normalizeTaskType(tt.in); got != tt.want {
			t.Errorf("normalizeTaskType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenAIEngineMetadata(t *testing.T) {
	e := &GenAIEngine{model: "gemini-embedding-001"}
	if e.Name() != "genai:gemini-embedding-001" {
		t.Fatalf("unexpected name: %s", e.Name())
	}
	if e.Dimensions() != 768 {
		t.Fatalf("unexpected dimensions: %d", e.Dimensions())
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
