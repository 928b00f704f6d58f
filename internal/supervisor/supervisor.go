// Package supervisor orchestrates report generation: it plans an
// outline, dispatches section tasks to drafting workers through a
// prioritized queue, and assembles the results into a report.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scribe/internal/config"
	"scribe/internal/llm"
	"scribe/internal/logging"
	"scribe/internal/report"
	"scribe/internal/store"
	"scribe/internal/worker"
)

// summarizerSystemPrompt frames the executive summary call.
const summarizerSystemPrompt = `You are a research editor. Write a concise executive summary
(one or two paragraphs) of the report whose sections follow. Plain prose, no headings.`

// Supervisor coordinates planning, dispatch, and assembly.
type Supervisor struct {
	mu sync.RWMutex

	cfg     *config.Config
	client  llm.Client
	planner *Planner
	pool    *worker.Pool
	queue   *DispatchQueue
	store   *store.LocalStore

	started bool

	// Async run tracking
	runs map[string]*Run
}

// Run tracks one asynchronous report generation.
type Run struct {
	ID        string
	Topic     string
	StartedAt time.Time

	done   chan struct{}
	report *report.Report
	err    error
}

// Done returns a channel closed when the run finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// New creates a Supervisor. The store may be nil; corpus recall and
// persistence are then skipped.
func New(cfg *config.Config, client llm.Client, st *store.LocalStore) (*Supervisor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if client == nil {
		return nil, fmt.Errorf("nil llm client")
	}

	workerTimeout, err := cfg.WorkerTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid worker timeout: %w", err)
	}

	pool := worker.NewPool(client, worker.PoolConfig{
		MaxActiveWorkers: cfg.Supervisor.MaxActiveWorkers,
		WorkerTimeout:    workerTimeout,
	})

	queue := NewDispatchQueue(pool, QueueConfig{
		MaxQueueSize:        cfg.Supervisor.QueueSize,
		MaxQueuePerPriority: cfg.Supervisor.QueuePerPriority,
		DefaultTimeout:      workerTimeout,
		WorkerCount:         cfg.Supervisor.QueueWorkers,
		DrainTimeout:        cfg.DrainTimeout(),
	})

	return &Supervisor{
		cfg:     cfg,
		client:  client,
		planner: NewPlanner(client, cfg.Report.MaxSections),
		pool:    pool,
		queue:   queue,
		store:   st,
		runs:    make(map[string]*Run),
	}, nil
}

// Start brings up the dispatch queue.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.queue.Start(); err != nil {
		return err
	}
	s.started = true
	logging.Supervisor("Supervisor started (workers: %d, concurrency: %d)",
		s.cfg.Supervisor.MaxActiveWorkers, s.cfg.Supervisor.SectionConcurrency)
	return nil
}

// Stop drains the queue and stops all workers.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	err := s.queue.Stop()
	s.pool.StopAll()
	logging.Supervisor("Supervisor stopped")
	return err
}

// Pool exposes the worker pool for status inspection.
func (s *Supervisor) Pool() *worker.Pool { return s.pool }

// Queue exposes the dispatch queue for status inspection.
func (s *Supervisor) Queue() *DispatchQueue { return s.queue }

// GenerateReport runs the full pipeline synchronously: plan, draft,
// summarize, assemble, persist, export. It returns the report and the
// exported file path. A report with failed sections is still returned
// (status partial) alongside a nil error; only a run that produces no
// usable report errors out.
func (s *Supervisor) GenerateReport(ctx context.Context, topic string) (*report.Report, string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, "", fmt.Errorf("empty topic")
	}

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, "", fmt.Errorf("supervisor not started")
	}

	runID := uuid.NewString()
	log := logging.WithRunID(logging.CategorySupervisor, runID)
	log.Info("Generating report for topic: %s", topic)
	startedAt := time.Now()

	outline, err := s.planner.Plan(ctx, topic)
	if err != nil {
		return nil, "", fmt.Errorf("planning failed: %w", err)
	}
	log.Info("Outline: %q (%d sections)", outline.Title, len(outline.Sections))

	sections, derr := s.draftSections(ctx, runID, topic, outline)
	if derr != nil {
		// Interrupted mid-run: keep what was drafted. Undrafted sections
		// become failed placeholders and the partial report is persisted
		// before the error surfaces, so an operator's ctrl-c never throws
		// away finished work.
		for i, brief := range outline.Sections {
			if sections[i].Heading == "" {
				sections[i] = report.Section{
					Index:   i,
					Heading: brief.Heading,
					Brief:   brief.Brief,
					Failed:  true,
				}
			}
		}
		rep := &report.Report{
			ID:        runID,
			Topic:     topic,
			Title:     outline.Title,
			Summary:   outline.Summary,
			Sections:  sections,
			Status:    report.StatusPartial,
			Model:     s.cfg.LLM.Model,
			CreatedAt: startedAt,
			Duration:  time.Since(startedAt),
		}
		if rep.FailedSections() == len(sections) {
			rep.Status = report.StatusFailed
		}
		if s.store != nil {
			if serr := s.store.SaveReport(rep); serr != nil {
				log.Error("Failed to persist interrupted report: %v", serr)
			}
		}
		log.Warn("Run %s interrupted: %d of %d sections drafted", runID,
			len(sections)-rep.FailedSections(), len(sections))
		return rep, "", fmt.Errorf("drafting interrupted: %w", derr)
	}

	rep := &report.Report{
		ID:        runID,
		Topic:     topic,
		Title:     outline.Title,
		Summary:   outline.Summary,
		Sections:  sections,
		Status:    report.StatusComplete,
		Model:     s.cfg.LLM.Model,
		CreatedAt: startedAt,
	}

	failed := rep.FailedSections()
	switch {
	case failed == len(sections):
		rep.Status = report.StatusFailed
	case failed > 0:
		rep.Status = report.StatusPartial
	}

	if rep.Status == report.StatusFailed {
		return nil, "", fmt.Errorf("all %d sections failed to draft", len(sections))
	}

	if summary, err := s.summarize(ctx, rep); err != nil {
		log.Warn("Executive summary failed, keeping outline summary: %v", err)
	} else {
		rep.Summary = summary
	}

	rep.Duration = time.Since(startedAt)

	if s.store != nil {
		if err := s.store.SaveReport(rep); err != nil {
			log.Error("Failed to persist report: %v", err)
		}
	}

	path, err := report.Export(rep, s.cfg.Report.OutputDir)
	if err != nil {
		return rep, "", fmt.Errorf("export failed: %w", err)
	}

	log.Info("Report %s done: status=%s, sections=%d, failed=%d, duration=%v",
		runID, rep.Status, len(rep.Sections), failed, rep.Duration)
	return rep, path, nil
}

// draftSections fans section tasks out through the queue with bounded
// concurrency and collects drafts in outline order. A failed section
// becomes a placeholder rather than failing the run. On cancellation
// the sections drafted so far come back alongside the error.
func (s *Supervisor) draftSections(ctx context.Context, runID, topic string, outline report.Outline) ([]report.Section, error) {
	sections := make([]report.Section, len(outline.Sections))

	g, gctx := errgroup.WithContext(ctx)
	concurrency := s.cfg.Supervisor.SectionConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)

	for i, brief := range outline.Sections {
		i, brief := i, brief
		g.Go(func() error {
			sections[i] = s.draftOne(gctx, runID, topic, i, brief)
			// Placeholder sections do not abort the run; only context
			// cancellation propagates.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return sections, err
	}
	return sections, nil
}

// draftOne drafts a single section, recalling corpus context first.
func (s *Supervisor) draftOne(ctx context.Context, runID, topic string, idx int, brief report.SectionBrief) report.Section {
	section := report.Section{
		Index:   idx,
		Heading: brief.Heading,
		Brief:   brief.Brief,
	}
	taskID := fmt.Sprintf("%s-s%d", runID[:8], idx)
	taskStart := time.Now()

	snippets := s.recall(ctx, brief)
	task := worker.Task{
		ID:      taskID,
		Topic:   topic,
		Index:   idx,
		Heading: brief.Heading,
		Brief:   brief.Brief,
	}
	for _, sn := range snippets {
		task.Context = append(task.Context, sn.Content)
		task.Sources = appendUnique(task.Sources, sn.Source)
	}

	result, err := s.queue.SubmitAndWait(ctx, worker.SpawnRequest{
		Name: "drafter",
		Task: task,
		Type: worker.TypeEphemeral,
	}, sectionPriority(idx))

	section.WorkerID = result.WorkerID
	section.Duration = time.Since(taskStart)

	record := store.TaskRecord{
		ID:         taskID,
		ReportID:   runID,
		SectionIdx: idx,
		WorkerID:   result.WorkerID,
		State:      "completed",
		Queued:     result.Queued,
		StartedAt:  taskStart,
		FinishedAt: time.Now(),
	}

	if err != nil {
		section.Failed = true
		record.State = "failed"
		record.Error = err.Error()
		logging.Get(logging.CategorySupervisor).Error("Section %d (%s) failed: %v", idx, brief.Heading, err)
	} else {
		section.Body = result.Result.Body
		section.Sources = result.Result.Sources
		logging.SupervisorDebug("Section %d (%s) drafted by %s in %v (queued %v)",
			idx, brief.Heading, result.WorkerID, section.Duration, result.Queued)
	}

	if s.store != nil {
		if rerr := s.store.RecordTask(record); rerr != nil {
			logging.Get(logging.CategorySupervisor).Warn("Failed to record task %s: %v", taskID, rerr)
		}
	}

	return section
}

// recall fetches corpus snippets relevant to a section brief.
func (s *Supervisor) recall(ctx context.Context, brief report.SectionBrief) []store.Snippet {
	if s.store == nil {
		return nil
	}
	limit := s.cfg.Report.RecallLimit
	if limit <= 0 {
		return nil
	}

	query := brief.Heading
	if strings.TrimSpace(brief.Brief) != "" {
		query = brief.Heading + ": " + brief.Brief
	}

	snippets, err := s.store.SearchSnippets(ctx, query, limit)
	if err != nil {
		logging.Get(logging.CategorySupervisor).Warn("Corpus recall failed for %q: %v", brief.Heading, err)
		return nil
	}
	return snippets
}

// summarize produces the executive summary from the drafted sections.
func (s *Supervisor) summarize(ctx context.Context, rep *report.Report) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Report title: %s\nTopic: %s\n\n", rep.Title, rep.Topic)
	for _, sec := range rep.Sections {
		if sec.Failed {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", sec.Heading, sec.Body)
	}

	summary, err := s.client.CompleteWithSystem(ctx, summarizerSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", errors.New("empty summary")
	}
	return summary, nil
}

// sectionPriority gives earlier sections a head start so reports fill
// top to bottom when the pool is contended.
func sectionPriority(idx int) Priority {
	if idx < 2 {
		return PriorityHigh
	}
	return PriorityNormal
}

// =============================================================================
// ASYNC RUN API
// =============================================================================

// ExecuteAsync starts report generation in the background and returns
// a Run handle immediately.
func (s *Supervisor) ExecuteAsync(ctx context.Context, topic string) (*Run, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("empty topic")
	}

	run := &Run{
		ID:        uuid.NewString(),
		Topic:     topic,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	go func() {
		rep, _, err := s.GenerateReport(ctx, topic)
		s.mu.Lock()
		run.report = rep
		run.err = err
		s.mu.Unlock()
		close(run.done)
	}()

	logging.Supervisor("Run %s started for topic: %s", run.ID, topic)
	return run, nil
}

// GetRun returns a run handle by ID.
func (s *Supervisor) GetRun(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// GetResult returns the result of a run if it has finished.
func (s *Supervisor) GetResult(id string) (*report.Report, error, bool) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown run: %s", id), false
	}

	select {
	case <-run.done:
	default:
		return nil, nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return run.report, run.err, true
}

// WaitForResult blocks until the run finishes or the context ends.
func (s *Supervisor) WaitForResult(ctx context.Context, id string) (*report.Report, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown run: %s", id)
	}

	select {
	case <-run.done:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return run.report, run.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// appendUnique appends s to list if not already present.
func appendUnique(list []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
