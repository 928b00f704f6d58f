package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/config"
)

func clientConfigFixture() config.LLMConfig {
	return config.LLMConfig{
		Provider: "gemini",
		APIKey:   "test-key",
		Model:    "test-model",
		Timeout:  "30s",
	}
}

func geminiTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func geminiClientFor(srv *httptest.Server, retries int) *GeminiClient {
	return NewGeminiClientWithConfig(GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
}

func writeGeminiResponse(w http.ResponseWriter, text string) {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestGeminiCompleteWithSystem(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest

	srv := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		writeGeminiResponse(w, "drafted text")
	})

	c := geminiClientFor(srv, 1)
	text, err := c.CompleteWithSystem(context.Background(), "be brief", "write it")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if text != "drafted text" {
		t.Fatalf("unexpected text: %q", text)
	}
	if !strings.HasSuffix(gotPath, "/models/test-model:generateContent") {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header missing, got %q", gotKey)
	}
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not sent: %+v", gotReq.SystemInstruction)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "write it" {
		t.Fatalf("prompt not sent: %+v", gotReq.Contents)
	}
}

func TestGeminiRetriesOn500(t *testing.T) {
	var calls int32
	srv := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		writeGeminiResponse(w, "recovered")
	})

	c := geminiClientFor(srv, 3)
	text, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("unexpected text: %q", text)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestGeminiNoRetryOn400(t *testing.T) {
	var calls int32
	srv := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	c := geminiClientFor(srv, 3)
	if _, err := c.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("client errors must not retry, got %d calls", calls)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	})

	c := geminiClientFor(srv, 1)
	if _, err := c.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503} {
		if !retryable(status) {
			t.Errorf("%d should be retryable", status)
		}
	}
	for _, status := range []int{200, 400, 401, 404} {
		if retryable(status) {
			t.Errorf("%d should not be retryable", status)
		}
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	if backoffDelay(0) != time.Second {
		t.Fatalf("first backoff = %v", backoffDelay(0))
	}
	if backoffDelay(10) != 30*time.Second {
		t.Fatalf("backoff should cap at 30s, got %v", backoffDelay(10))
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	cfg := clientConfigFixture()
	cfg.APIKey = ""
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected ErrNoAPIKey")
	}
}

func TestNewClientProviders(t *testing.T) {
	cfg := clientConfigFixture()

	cfg.Provider = "gemini"
	if _, err := NewClient(cfg); err != nil {
		t.Fatalf("gemini client failed: %v", err)
	}

	cfg.Provider = "openai"
	if _, err := NewClient(cfg); err != nil {
		t.Fatalf("openai client failed: %v", err)
	}

	cfg.Provider = "mystery"
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected unknown provider error")
	}
}
