package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleReport() *Report {
	return &Report{
		ID:        "run-1",
		Topic:     "edge caching",
		Title:     "Edge Caching Strategies",
		Summary:   "Caches near users cut latency.",
		Status:    StatusComplete,
		Model:     "gemini-3-flash-preview",
		CreatedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Sections: []Section{
			{Index: 0, Heading: "Cache Hierarchies", Body: "Tiered caches.", Sources: []string{"notes/cdn.md"}},
			{Index: 1, Heading: "Invalidation", Body: "Purge vs TTL.", Sources: []string{"notes/cdn.md", "notes/ttl.md"}},
		},
	}
}

func TestOutlineValidate(t *testing.T) {
	tests := []struct {
		name    string
		outline Outline
		wantErr bool
	}{
		{"valid", Outline{Title: "T", Sections: []SectionBrief{{Heading: "H"}}}, false},
		{"no title", Outline{Sections: []SectionBrief{{Heading: "H"}}}, true},
		{"no sections", Outline{Title: "T"}, true},
		{"blank heading", Outline{Title: "T", Sections: []SectionBrief{{Heading: "  "}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outline.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutlineClamp(t *testing.T) {
	o := Outline{Title: "T", Sections: []SectionBrief{{Heading: "a"}, {Heading: "b"}, {Heading: "c"}}}
	o.Clamp(2)
	if len(o.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(o.Sections))
	}
	o.Clamp(0) // no-op
	if len(o.Sections) != 2 {
		t.Fatalf("clamp(0) should not truncate, got %d", len(o.Sections))
	}
}

func TestMarkdownComplete(t *testing.T) {
	md := sampleReport().Markdown()

	for _, want := range []string{
		"# Edge Caching Strategies",
		"_Topic: edge caching_",
		"## Executive Summary",
		"Caches near users cut latency.",
		"## Cache Hierarchies",
		"## Invalidation",
		"## Sources",
		"- notes/cdn.md",
		"- notes/ttl.md",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// Complete reports carry no status line.
	if strings.Contains(md, "_Status:") {
		t.Error("complete report should not render a status line")
	}

	// Sources are deduplicated.
	if strings.Count(md, "- notes/cdn.md") != 1 {
		t.Error("duplicate source in markdown")
	}
}

func TestMarkdownPartial(t *testing.T) {
	r := sampleReport()
	r.Status = StatusPartial
	r.Sections[1].Failed = true
	r.Sections[1].Body = ""

	md := r.Markdown()
	if !strings.Contains(md, "_Status: partial (1 of 2 sections failed)_") {
		t.Errorf("missing status line:\n%s", md)
	}
	if !strings.Contains(md, "_This section could not be drafted._") {
		t.Error("missing failure placeholder")
	}
}

func TestFailedSections(t *testing.T) {
	r := sampleReport()
	if r.FailedSections() != 0 {
		t.Fatalf("expected 0 failed, got %d", r.FailedSections())
	}
	r.Sections[0].Failed = true
	if r.FailedSections() != 1 {
		t.Fatalf("expected 1 failed, got %d", r.FailedSections())
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Edge Caching Strategies", "edge-caching-strategies"},
		{"  Hello,   World!  ", "hello-world"},
		{"C++ & Go: a comparison", "c-go-a-comparison"},
		{"", "report"},
		{"!!!", "report"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := Slugify(strings.Repeat("word ", 40))
	if len(long) > 60 {
		t.Errorf("slug not capped: %d chars", len(long))
	}
}

func TestExportWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	path, err := Export(sampleReport(), dir)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("written outside output dir: %s", path)
	}
	if !strings.HasSuffix(path, "edge-caching-strategies.md") {
		t.Fatalf("unexpected filename: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "# Edge Caching Strategies") {
		t.Fatal("exported content missing title")
	}
}

func TestExportNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()

	first, err := Export(r, dir)
	if err != nil {
		t.Fatalf("first export failed: %v", err)
	}
	second, err := Export(r, dir)
	if err != nil {
		t.Fatalf("second export failed: %v", err)
	}
	if first == second {
		t.Fatal("second export overwrote the first")
	}
	if !strings.HasSuffix(second, "_1.md") {
		t.Fatalf("expected counter suffix, got %s", second)
	}
}
