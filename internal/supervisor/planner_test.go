package supervisor

import (
	"context"
	"strings"
	"testing"
)

func TestParseOutlinePlain(t *testing.T) {
	outline, err := parseOutline(validOutlineJSON)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if outline.Title != "Edge Caching Strategies" {
		t.Fatalf("unexpected title: %q", outline.Title)
	}
	if len(outline.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(outline.Sections))
	}
}

func TestParseOutlineFencedWithProse(t *testing.T) {
	raw := "Here is the outline you asked for:\n```json\n" + validOutlineJSON + "\n```\nLet me know if it fits."
	outline, err := parseOutline(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if outline.Sections[1].Heading != "Invalidation" {
		t.Fatalf("unexpected section: %+v", outline.Sections[1])
	}
}

func TestParseOutlineBracesInStrings(t *testing.T) {
	raw := `{"title": "Braces { and } inside", "sections": [{"heading": "A", "brief": "b"}]}`
	outline, err := parseOutline(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !strings.Contains(outline.Title, "{ and }") {
		t.Fatalf("unexpected title: %q", outline.Title)
	}
}

func TestParseOutlineNoJSON(t *testing.T) {
	if _, err := parseOutline("I could not produce an outline, sorry."); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseOutlineMissingSections(t *testing.T) {
	if _, err := parseOutline(`{"title": "Empty"}`); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPlannerPlan(t *testing.T) {
	p := NewPlanner(defaultScriptedClient(), 8)
	outline, err := p.Plan(context.Background(), "edge caching")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(outline.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(outline.Sections))
	}
}

func TestPlannerEmptyTopic(t *testing.T) {
	p := NewPlanner(defaultScriptedClient(), 8)
	if _, err := p.Plan(context.Background(), "   "); err == nil {
		t.Fatal("expected empty topic error")
	}
}

func TestPlannerClampsSections(t *testing.T) {
	client := defaultScriptedClient()
	client.planResponse = `{
		"title": "Long Report",
		"sections": [
			{"heading": "One", "brief": "a"},
			{"heading": "Two", "brief": "b"},
			{"heading": "Three", "brief": "c"},
			{"heading": "Four", "brief": "d"}
		]
	}`
	p := NewPlanner(client, 2)
	outline, err := p.Plan(context.Background(), "anything")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(outline.Sections) != 2 {
		t.Fatalf("expected outline clamped to 2 sections, got %d", len(outline.Sections))
	}
}

func TestPlannerRepairsMalformedResponse(t *testing.T) {
	client := defaultScriptedClient()
	// First call returns garbage, the repair round trip returns valid JSON.
	broken := true
	inner := client
	repairing := &repairingClient{inner: inner, broken: &broken}

	p := NewPlanner(repairing, 8)
	outline, err := p.Plan(context.Background(), "edge caching")
	if err != nil {
		t.Fatalf("plan with repair failed: %v", err)
	}
	if outline.Title != "Edge Caching Strategies" {
		t.Fatalf("unexpected title: %q", outline.Title)
	}
	if inner.planCalls != 2 {
		t.Fatalf("expected 2 planner calls (original + repair), got %d", inner.planCalls)
	}
}

func TestPlannerGivesUpAfterRepair(t *testing.T) {
	client := defaultScriptedClient()
	client.planResponse = "still not json"
	p := NewPlanner(client, 8)
	if _, err := p.Plan(context.Background(), "edge caching"); err == nil {
		t.Fatal("expected error after failed repair")
	}
}

// repairingClient garbles the first planner response only.
type repairingClient struct {
	inner  *scriptedClient
	broken *bool
}

func (c *repairingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *repairingClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.inner.CompleteWithSystem(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	if strings.Contains(system, "planning the structure") && *c.broken {
		*c.broken = false
		return "not json at all", nil
	}
	return resp, nil
}
