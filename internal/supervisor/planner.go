package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scribe/internal/llm"
	"scribe/internal/logging"
	"scribe/internal/report"
)

// plannerSystemPrompt frames the outline planning call. The model must
// answer with bare JSON so the planner can parse it without scraping.
const plannerSystemPrompt = `You are a research editor planning the structure of a report.
Respond with JSON only, no prose and no markdown fences. The JSON object has:
  "title":    the report title
  "summary":  one paragraph describing the report's scope
  "sections": an array of {"heading": ..., "brief": ...} objects, in reading order
Each brief tells a research writer exactly what the section must cover.`

// Planner asks the LLM for a report outline and parses the response.
type Planner struct {
	client      llm.Client
	maxSections int
}

// NewPlanner creates a Planner over the given LLM client.
func NewPlanner(client llm.Client, maxSections int) *Planner {
	if maxSections <= 0 {
		maxSections = 8
	}
	return &Planner{client: client, maxSections: maxSections}
}

// Plan produces a validated outline for the topic. A malformed response
// gets one repair round trip before the planner gives up.
func (p *Planner) Plan(ctx context.Context, topic string) (report.Outline, error) {
	if strings.TrimSpace(topic) == "" {
		return report.Outline{}, fmt.Errorf("empty topic")
	}
	if p.client == nil {
		return report.Outline{}, fmt.Errorf("no llm client configured")
	}

	prompt := fmt.Sprintf("Plan a research report on the following topic. Use between 3 and %d sections.\n\nTopic: %s",
		p.maxSections, topic)

	timer := logging.StartTimer(logging.CategoryPlanner, "plan_outline")
	raw, err := p.client.CompleteWithSystem(ctx, plannerSystemPrompt, prompt)
	timer.StopWithInfo()
	if err != nil {
		return report.Outline{}, fmt.Errorf("outline planning failed: %w", err)
	}

	outline, parseErr := parseOutline(raw)
	if parseErr != nil {
		logging.Get(logging.CategoryPlanner).Warn("Outline parse failed, attempting repair: %v", parseErr)
		outline, err = p.repair(ctx, raw, parseErr)
		if err != nil {
			return report.Outline{}, err
		}
	}

	outline.Clamp(p.maxSections)
	if err := outline.Validate(); err != nil {
		return report.Outline{}, fmt.Errorf("planner returned unusable outline: %w", err)
	}

	logging.Planner("Planned outline %q with %d sections", outline.Title, len(outline.Sections))
	return outline, nil
}

// repair sends the malformed response back once and asks for valid JSON.
func (p *Planner) repair(ctx context.Context, raw string, parseErr error) (report.Outline, error) {
	prompt := fmt.Sprintf(`Your previous response could not be parsed (%v).
Here it is:

%s

Re-emit it as a single valid JSON object with "title", "summary", and "sections" fields. JSON only.`,
		parseErr, raw)

	fixed, err := p.client.CompleteWithSystem(ctx, plannerSystemPrompt, prompt)
	if err != nil {
		return report.Outline{}, fmt.Errorf("outline repair failed: %w", err)
	}

	outline, err := parseOutline(fixed)
	if err != nil {
		return report.Outline{}, fmt.Errorf("outline unparseable after repair: %w", err)
	}
	logging.Planner("Outline repaired on second attempt")
	return outline, nil
}

// parseOutline extracts an Outline from a model response, tolerating
// markdown fences and surrounding prose.
func parseOutline(raw string) (report.Outline, error) {
	text := extractJSON(raw)
	if text == "" {
		return report.Outline{}, fmt.Errorf("no JSON object found in response")
	}

	var outline report.Outline
	if err := json.Unmarshal([]byte(text), &outline); err != nil {
		return report.Outline{}, fmt.Errorf("invalid outline JSON: %w", err)
	}
	if err := outline.Validate(); err != nil {
		return report.Outline{}, err
	}
	return outline, nil
}

// extractJSON returns the first balanced top-level JSON object in s.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
