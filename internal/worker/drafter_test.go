package worker

import (
	"context"
	"strings"
	"testing"
)

func TestDrafterBuildPrompt(t *testing.T) {
	d := NewDrafter(&mockClient{})
	task := testTask()
	task.Context = []string{"VXLAN encapsulates L2 in UDP.", "MTU overhead is 50 bytes."}

	prompt := d.buildPrompt(task)
	for _, want := range []string{
		"Container networking",
		"Overlay Networks",
		"VXLAN-based overlays",
		"--- note 1 ---",
		"--- note 2 ---",
		"MTU overhead",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDrafterDraftEmptyBody(t *testing.T) {
	d := NewDrafter(&mockClient{response: "   "})
	if _, _, err := d.Draft(context.Background(), testTask()); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestDrafterDraftCarriesSources(t *testing.T) {
	d := NewDrafter(&mockClient{response: "Body text."})
	task := testTask()
	task.Sources = []string{"notes/overlays.md"}

	result, turns, err := d.Draft(context.Background(), task)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "notes/overlays.md" {
		t.Fatalf("unexpected sources: %v", result.Sources)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
}

func TestCleanDraft(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		heading string
		want    string
	}{
		{
			name:    "plain body",
			raw:     "Just prose.",
			heading: "Intro",
			want:    "Just prose.",
		},
		{
			name:    "wrapping fence",
			raw:     "```markdown\nFenced prose.\n```",
			heading: "Intro",
			want:    "Fenced prose.",
		},
		{
			name:    "repeated heading",
			raw:     "## Intro\nActual body.",
			heading: "Intro",
			want:    "Actual body.",
		},
		{
			name:    "heading case insensitive",
			raw:     "# INTRO\nBody here.",
			heading: "Intro",
			want:    "Body here.",
		},
		{
			name:    "heading only",
			raw:     "## Intro",
			heading: "Intro",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanDraft(tt.raw, tt.heading); got != tt.want {
				t.Errorf("cleanDraft() = %q, want %q", got, tt.want)
			}
		})
	}
}
