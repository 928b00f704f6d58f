package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func initDebugWorkspace(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	cfg := []byte("logging:\n  debug_mode: true\n  level: debug\n")
	if err := os.MkdirAll(filepath.Join(ws, ".scribe"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, ".scribe", "config.yaml"), cfg, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Initialize(ws); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	t.Cleanup(CloseAll)
	return ws
}

func TestInitializeWithoutConfigIsSilent(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	t.Cleanup(CloseAll)

	if IsDebugMode() {
		t.Fatal("debug mode should default off")
	}

	// No logs directory in production mode.
	Supervisor("this goes nowhere")
	if _, err := os.Stat(filepath.Join(ws, ".scribe", "logs")); !os.IsNotExist(err) {
		t.Fatal("logs directory created in production mode")
	}
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	ws := initDebugWorkspace(t)

	Get(CategorySupervisor).Info("run %s started", "r-1")
	CloseAll()

	pattern := filepath.Join(ws, ".scribe", "logs", "*_supervisor.log")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one supervisor log, got %v (%v)", matches, err)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "run r-1 started") {
		t.Fatalf("log entry missing: %s", data)
	}
	if !strings.Contains(string(data), "[INFO]") {
		t.Fatalf("level tag missing: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	ws := t.TempDir()
	cfg := []byte("logging:\n  debug_mode: true\n  categories:\n    queue: false\n")
	if err := os.MkdirAll(filepath.Join(ws, ".scribe"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, ".scribe", "config.yaml"), cfg, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Initialize(ws); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	t.Cleanup(CloseAll)

	if IsCategoryEnabled(CategoryQueue) {
		t.Fatal("queue category should be disabled")
	}
	if !IsCategoryEnabled(CategoryWorker) {
		t.Fatal("unlisted categories should default to enabled")
	}
}

func TestRunLoggerTagsEntries(t *testing.T) {
	ws := initDebugWorkspace(t)

	rl := WithRunID(CategoryPlanner, "run-42")
	rl.Info("outline %s", "planned")
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(ws, ".scribe", "logs", "*_planner.log"))
	if len(matches) != 1 {
		t.Fatalf("expected planner log, got %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "run-42") {
		t.Fatalf("run id missing from entry: %s", data)
	}
}

func TestTimerStop(t *testing.T) {
	initDebugWorkspace(t)

	timer := StartTimer(CategoryAPI, "test_op")
	time.Sleep(10 * time.Millisecond)
	if d := timer.Stop(); d < 10*time.Millisecond {
		t.Fatalf("timer too short: %v", d)
	}
}
