package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// scriptedClient routes calls by system prompt so one mock can serve
// planner, drafter, and summarizer.
type scriptedClient struct {
	mu sync.Mutex

	planResponse    string
	planErr         error
	draftResponse   string
	draftErr        error
	draftFunc       func(prompt string) (string, error)
	summaryResponse string
	summaryErr      error

	planCalls  int
	draftCalls int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.Contains(system, "planning the structure"):
		c.planCalls++
		return c.planResponse, c.planErr
	case strings.Contains(system, "research writer"):
		c.draftCalls++
		if c.draftFunc != nil {
			return c.draftFunc(prompt)
		}
		return c.draftResponse, c.draftErr
	case strings.Contains(system, "executive summary"):
		return c.summaryResponse, c.summaryErr
	default:
		return "", fmt.Errorf("unexpected system prompt: %q", system)
	}
}

const validOutlineJSON = `{
	"title": "Edge Caching Strategies",
	"summary": "How CDNs keep content close to users.",
	"sections": [
		{"heading": "Cache Hierarchies", "brief": "Describe tiered caches."},
		{"heading": "Invalidation", "brief": "Cover purge and TTL tradeoffs."}
	]
}`

func defaultScriptedClient() *scriptedClient {
	return &scriptedClient{
		planResponse:    validOutlineJSON,
		draftResponse:   "Drafted section prose.",
		summaryResponse: "Edge caches cut latency by serving content near users.",
	}
}
