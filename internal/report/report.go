// Package report defines report types, Markdown assembly, and export.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Status describes the outcome of a report run.
type Status string

const (
	// StatusComplete means every section was drafted successfully.
	StatusComplete Status = "complete"

	// StatusPartial means at least one section failed and holds a placeholder.
	StatusPartial Status = "partial"

	// StatusFailed means the run produced no usable report.
	StatusFailed Status = "failed"
)

// SectionBrief is one planned section before drafting: a heading plus the
// research instructions handed to a worker.
type SectionBrief struct {
	Heading string `json:"heading"`
	Brief   string `json:"brief"`
}

// Outline is the supervisor's plan for a report.
type Outline struct {
	Title    string         `json:"title"`
	Summary  string         `json:"summary,omitempty"`
	Sections []SectionBrief `json:"sections"`
}

// Validate checks an outline for usability.
func (o *Outline) Validate() error {
	if strings.TrimSpace(o.Title) == "" {
		return fmt.Errorf("outline has no title")
	}
	if len(o.Sections) == 0 {
		return fmt.Errorf("outline has no sections")
	}
	for i, s := range o.Sections {
		if strings.TrimSpace(s.Heading) == "" {
			return fmt.Errorf("section %d has no heading", i)
		}
	}
	return nil
}

// Clamp truncates the outline to at most max sections.
func (o *Outline) Clamp(max int) {
	if max > 0 && len(o.Sections) > max {
		o.Sections = o.Sections[:max]
	}
}

// Section is one drafted report section.
type Section struct {
	Index    int           `json:"index"`
	Heading  string        `json:"heading"`
	Brief    string        `json:"brief"`
	Body     string        `json:"body"`
	WorkerID string        `json:"worker_id,omitempty"`
	Sources  []string      `json:"sources,omitempty"`
	Failed   bool          `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Report is a fully assembled research report.
type Report struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Sections  []Section `json:"sections"`
	Status    Status    `json:"status"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// FailedSections returns the count of placeholder sections.
func (r *Report) FailedSections() int {
	n := 0
	for _, s := range r.Sections {
		if s.Failed {
			n++
		}
	}
	return n
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(r.Title)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "_Topic: %s_  \n", r.Topic)
	fmt.Fprintf(&sb, "_Generated: %s_", r.CreatedAt.Format("2006-01-02 15:04 MST"))
	if r.Model != "" {
		fmt.Fprintf(&sb, "  \n_Model: %s_", r.Model)
	}
	if r.Status != StatusComplete {
		fmt.Fprintf(&sb, "  \n_Status: %s (%d of %d sections failed)_",
			r.Status, r.FailedSections(), len(r.Sections))
	}
	sb.WriteString("\n\n")

	if strings.TrimSpace(r.Summary) != "" {
		sb.WriteString("## Executive Summary\n\n")
		sb.WriteString(strings.TrimSpace(r.Summary))
		sb.WriteString("\n\n")
	}

	for _, s := range r.Sections {
		sb.WriteString("## ")
		sb.WriteString(s.Heading)
		sb.WriteString("\n\n")
		if s.Failed {
			sb.WriteString("_This section could not be drafted._\n\n")
			continue
		}
		sb.WriteString(strings.TrimSpace(s.Body))
		sb.WriteString("\n\n")
	}

	sources := r.collectSources()
	if len(sources) > 0 {
		sb.WriteString("## Sources\n\n")
		for _, src := range sources {
			fmt.Fprintf(&sb, "- %s\n", src)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// collectSources deduplicates section sources preserving first-seen order.
func (r *Report) collectSources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.Sections {
		for _, src := range s.Sources {
			src = strings.TrimSpace(src)
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}
