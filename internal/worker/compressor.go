package worker

import (
	"context"
	"fmt"
	"strings"

	"scribe/internal/llm"
	"scribe/internal/logging"
)

// SemanticCompressor implements the Compressor interface using an LLM.
type SemanticCompressor struct {
	client llm.Client
}

// NewSemanticCompressor creates a new SemanticCompressor.
func NewSemanticCompressor(client llm.Client) *SemanticCompressor {
	return &SemanticCompressor{
		client: client,
	}
}

// Compress summarizes a list of conversation turns into a single string.
func (sc *SemanticCompressor) Compress(ctx context.Context, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	if sc.client == nil {
		return "", fmt.Errorf("no llm client configured")
	}

	logging.WorkerDebug("Compressing %d turns via SemanticCompressor", len(turns))

	var sb strings.Builder
	for _, turn := range turns {
		role := "Assistant"
		if turn.Role == "user" {
			role = "User"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", role, turn.Content))
	}

	prompt := fmt.Sprintf(`Summarize the following drafting history into a concise context string.
Retain key facts, source references, and the current state of the report.
Discard redundant phrasing.

History:
%s

Summary:`, sb.String())

	systemPrompt := "You are a context compressor. Your job is to summarize working history to retain memory for a research agent."

	summary, err := sc.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("semantic compression failed: %w", err)
	}

	return strings.TrimSpace(summary), nil
}
