package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/report"
	"scribe/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Report.OutputDir = t.TempDir()
	cfg.Supervisor.SectionConcurrency = 2
	cfg.Supervisor.QueueWorkers = 2
	cfg.Supervisor.DrainTimeout = "1s"
	return cfg
}

func startSupervisor(t *testing.T, client *scriptedClient) *Supervisor {
	t.Helper()
	sup, err := New(testConfig(t), client, nil)
	if err != nil {
		t.Fatalf("new supervisor failed: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = sup.Stop() })
	return sup
}

func TestGenerateReportComplete(t *testing.T) {
	client := defaultScriptedClient()
	sup := startSupervisor(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, path, err := sup.GenerateReport(ctx, "edge caching")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if rep.Status != report.StatusComplete {
		t.Fatalf("expected complete status, got %s", rep.Status)
	}
	if rep.Title != "Edge Caching Strategies" {
		t.Fatalf("unexpected title: %q", rep.Title)
	}
	if len(rep.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(rep.Sections))
	}

	// Sections must come back in outline order regardless of draft order.
	if rep.Sections[0].Heading != "Cache Hierarchies" || rep.Sections[1].Heading != "Invalidation" {
		t.Fatalf("sections out of order: %+v", rep.Sections)
	}
	for _, s := range rep.Sections {
		if s.Failed || s.Body == "" {
			t.Fatalf("section %d not drafted: %+v", s.Index, s)
		}
		if s.WorkerID == "" {
			t.Fatalf("section %d missing worker id", s.Index)
		}
	}

	// Executive summary comes from the summarizer, not the outline.
	if !strings.Contains(rep.Summary, "cut latency") {
		t.Fatalf("unexpected summary: %q", rep.Summary)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("exported report unreadable: %v", err)
	}
	if !strings.Contains(string(data), "# Edge Caching Strategies") {
		t.Fatal("exported markdown missing title")
	}
}

func TestGenerateReportPartial(t *testing.T) {
	client := defaultScriptedClient()
	client.draftFunc = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Invalidation") {
			return "", fmt.Errorf("model refused")
		}
		return "Drafted section prose.", nil
	}
	sup := startSupervisor(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, path, err := sup.GenerateReport(ctx, "edge caching")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if rep.Status != report.StatusPartial {
		t.Fatalf("expected partial status, got %s", rep.Status)
	}
	if rep.FailedSections() != 1 {
		t.Fatalf("expected 1 failed section, got %d", rep.FailedSections())
	}
	if !rep.Sections[1].Failed {
		t.Fatal("expected Invalidation section marked failed")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("exported report unreadable: %v", err)
	}
	if !strings.Contains(string(data), "could not be drafted") {
		t.Fatal("exported markdown missing failure placeholder")
	}
}

func TestGenerateReportCancelPersistsPartial(t *testing.T) {
	st, err := store.NewLocalStore(filepath.Join(t.TempDir(), "scribe.db"))
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := defaultScriptedClient()
	client.planResponse = `{
		"title": "Edge Caching Strategies",
		"summary": "How CDNs keep content close to users.",
		"sections": [
			{"heading": "Cache Hierarchies", "brief": "Describe tiered caches."},
			{"heading": "Invalidation", "brief": "Cover purge and TTL tradeoffs."},
			{"heading": "Observability", "brief": "Measuring hit ratios."}
		]
	}`
	client.draftFunc = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Cache Hierarchies") {
			return "Tiered caches.", nil
		}
		// Simulates ctrl-c arriving while later sections are in flight.
		cancel()
		return "", context.Canceled
	}

	cfg := testConfig(t)
	cfg.Supervisor.SectionConcurrency = 1
	sup, err := New(cfg, client, st)
	if err != nil {
		t.Fatalf("new supervisor failed: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = sup.Stop() })

	rep, _, err := sup.GenerateReport(ctx, "edge caching")
	if err == nil {
		t.Fatal("expected interruption error")
	}
	if rep == nil || rep.Status != report.StatusPartial {
		t.Fatalf("expected partial report back, got %+v", rep)
	}

	// The drafted work must survive the interruption in the store.
	saved, err := st.GetReport(rep.ID)
	if err != nil {
		t.Fatalf("interrupted report not persisted: %v", err)
	}
	if saved.Status != report.StatusPartial {
		t.Fatalf("expected partial status, got %s", saved.Status)
	}
	if len(saved.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(saved.Sections))
	}
	if saved.Sections[0].Failed || saved.Sections[0].Body == "" {
		t.Fatalf("drafted section lost: %+v", saved.Sections[0])
	}
	if !saved.Sections[1].Failed || !saved.Sections[2].Failed {
		t.Fatalf("undrafted sections should be failed placeholders: %+v", saved.Sections[1:])
	}
}

func TestGenerateReportAllSectionsFail(t *testing.T) {
	client := defaultScriptedClient()
	client.draftErr = fmt.Errorf("model down")
	sup := startSupervisor(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, _, err := sup.GenerateReport(ctx, "edge caching"); err == nil {
		t.Fatal("expected failure when every section fails")
	}
}

func TestGenerateReportEmptyTopic(t *testing.T) {
	sup := startSupervisor(t, defaultScriptedClient())
	if _, _, err := sup.GenerateReport(context.Background(), "  "); err == nil {
		t.Fatal("expected empty topic error")
	}
}

func TestGenerateReportRequiresStart(t *testing.T) {
	sup, err := New(testConfig(t), defaultScriptedClient(), nil)
	if err != nil {
		t.Fatalf("new supervisor failed: %v", err)
	}
	if _, _, err := sup.GenerateReport(context.Background(), "topic"); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestGenerateReportSummarizerFailureKeepsOutlineSummary(t *testing.T) {
	client := defaultScriptedClient()
	client.summaryErr = fmt.Errorf("summarizer down")
	sup := startSupervisor(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, _, err := sup.GenerateReport(ctx, "edge caching")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if rep.Summary != "How CDNs keep content close to users." {
		t.Fatalf("expected outline summary fallback, got %q", rep.Summary)
	}
}

func TestExecuteAsync(t *testing.T) {
	sup := startSupervisor(t, defaultScriptedClient())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run, err := sup.ExecuteAsync(ctx, "edge caching")
	if err != nil {
		t.Fatalf("execute async failed: %v", err)
	}

	if _, ok := sup.GetRun(run.ID); !ok {
		t.Fatal("run not tracked")
	}

	rep, err := sup.WaitForResult(ctx, run.ID)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if rep == nil || rep.Status != report.StatusComplete {
		t.Fatalf("unexpected result: %+v", rep)
	}

	gotRep, gotErr, done := sup.GetResult(run.ID)
	if !done || gotErr != nil || gotRep == nil {
		t.Fatalf("GetResult after completion: rep=%v err=%v done=%v", gotRep, gotErr, done)
	}
}

func TestWaitForResultUnknownRun(t *testing.T) {
	sup := startSupervisor(t, defaultScriptedClient())
	if _, err := sup.WaitForResult(context.Background(), "nope"); err == nil {
		t.Fatal("expected unknown run error")
	}
}

func TestSectionPriority(t *testing.T) {
	if sectionPriority(0) != PriorityHigh || sectionPriority(1) != PriorityHigh {
		t.Fatal("leading sections should be high priority")
	}
	if sectionPriority(2) != PriorityNormal {
		t.Fatal("later sections should be normal priority")
	}
}
