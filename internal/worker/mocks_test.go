package worker

import (
	"context"
	"fmt"
	"sync"
)

// mockClient is a scripted llm.Client for tests.
type mockClient struct {
	mu sync.Mutex

	// respond computes the reply; when nil, response/err are returned as-is.
	respond func(system, prompt string) (string, error)

	response string
	err      error
	calls    int
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	respond := m.respond
	response, err := m.response, m.err
	m.mu.Unlock()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if respond != nil {
		return respond(system, prompt)
	}
	return response, err
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// failingClient always errors.
type failingClient struct{}

func (failingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("model unavailable")
}

func (failingClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return "", fmt.Errorf("model unavailable")
}
