package worker

import (
	"context"
	"fmt"
	"strings"

	"scribe/internal/llm"
	"scribe/internal/logging"
)

// drafterSystemPrompt frames every drafting call.
const drafterSystemPrompt = `You are a research writer drafting one section of a larger report.
Write clear, factual prose in Markdown. Do not repeat the section heading;
the assembler adds it. Do not invent citations. When reference notes are
provided, prefer them over general knowledge and stay consistent with them.`

// Drafter turns a section task into a prompt, calls the LLM, and cleans
// up the response.
type Drafter struct {
	llm llm.Client
}

// NewDrafter creates a Drafter over the given LLM client.
func NewDrafter(client llm.Client) *Drafter {
	return &Drafter{llm: client}
}

// Draft produces the body for one section task. It returns the result
// along with the conversation turns consumed, so the worker can track
// history for memory compression.
func (d *Drafter) Draft(ctx context.Context, task Task) (Result, []Turn, error) {
	if d.llm == nil {
		return Result{}, nil, fmt.Errorf("no llm client configured")
	}

	prompt := d.buildPrompt(task)
	logging.WorkerDebug("Drafting section %d (%s): prompt %d chars, %d context snippets",
		task.Index, task.Heading, len(prompt), len(task.Context))

	raw, err := d.llm.CompleteWithSystem(ctx, drafterSystemPrompt, prompt)
	if err != nil {
		return Result{}, nil, fmt.Errorf("drafting failed for %q: %w", task.Heading, err)
	}

	body := cleanDraft(raw, task.Heading)
	if body == "" {
		return Result{}, nil, fmt.Errorf("drafting produced empty body for %q", task.Heading)
	}

	turns := []Turn{
		{Role: "user", Content: prompt},
		{Role: "assistant", Content: body},
	}

	return Result{Body: body, Sources: task.Sources}, turns, nil
}

// buildPrompt assembles the drafting prompt from the task.
func (d *Drafter) buildPrompt(task Task) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Report topic: %s\n\n", task.Topic)
	fmt.Fprintf(&sb, "Section %d heading: %s\n\n", task.Index+1, task.Heading)
	if strings.TrimSpace(task.Brief) != "" {
		fmt.Fprintf(&sb, "Research brief for this section:\n%s\n\n", task.Brief)
	}

	if len(task.Context) > 0 {
		sb.WriteString("Reference notes (from the operator's corpus):\n")
		for i, snippet := range task.Context {
			fmt.Fprintf(&sb, "--- note %d ---\n%s\n", i+1, strings.TrimSpace(snippet))
		}
		sb.WriteString("--- end notes ---\n\n")
	}

	sb.WriteString("Write the section body now.")
	return sb.String()
}

// cleanDraft strips a redundant leading heading and surrounding fences
// the model sometimes adds despite instructions.
func cleanDraft(raw, heading string) string {
	body := strings.TrimSpace(raw)

	// Strip a wrapping markdown fence
	if strings.HasPrefix(body, "```") {
		if idx := strings.Index(body, "\n"); idx >= 0 {
			body = body[idx+1:]
		}
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}

	// Strip a repeated heading line
	lines := strings.SplitN(body, "\n", 2)
	if len(lines) > 0 {
		first := strings.TrimSpace(strings.TrimLeft(lines[0], "# "))
		if strings.EqualFold(first, strings.TrimSpace(heading)) {
			if len(lines) == 2 {
				body = strings.TrimSpace(lines[1])
			} else {
				body = ""
			}
		}
	}

	return body
}
