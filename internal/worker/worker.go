// Package worker implements the LLM-backed agents the supervisor
// dispatches section tasks to.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scribe/internal/logging"
)

// State represents the lifecycle state of a worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Type determines the persistence and lifecycle behavior.
type Type string

const (
	// TypeEphemeral dies after task completion.
	TypeEphemeral Type = "ephemeral"

	// TypePersistent survives across tasks with compressed memory.
	TypePersistent Type = "persistent"
)

// Turn is one exchange in a worker's private conversation history.
type Turn struct {
	Role    string
	Content string
}

// Compressor defines the interface for memory compression.
type Compressor interface {
	Compress(ctx context.Context, turns []Turn) (string, error)
}

// Task is one unit of drafting work.
type Task struct {
	ID      string
	Topic   string
	Index   int
	Heading string
	Brief   string

	// Context snippets recalled from the corpus, already formatted.
	Context []string

	// Sources associated with the context snippets.
	Sources []string
}

// Result is the outcome of a drafting task.
type Result struct {
	Body    string
	Sources []string
}

// Config configures a worker's behavior.
type Config struct {
	// ID is the unique identifier for this worker instance.
	ID string

	// Name is the human-readable name (e.g., "drafter", "summarizer").
	Name string

	// Type determines lifecycle behavior.
	Type Type

	// Timeout for the entire task execution.
	Timeout time.Duration

	// MaxTurns limits conversation turns before memory compression kicks in.
	MaxTurns int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		ID:       fmt.Sprintf("%s-%d", name, time.Now().UnixNano()),
		Name:     name,
		Type:     TypeEphemeral,
		Timeout:  10 * time.Minute,
		MaxTurns: 40,
	}
}

// Worker is a context-isolated drafting agent.
//
// Each worker has:
//   - Its own conversation history (context isolation)
//   - A Drafter that turns tasks into prompts and parses responses
//   - Memory compression for long-lived persistent workers
type Worker struct {
	mu sync.RWMutex

	// Configuration
	config Config

	// Execution
	drafter *Drafter

	// Context isolation - own conversation history
	history []Turn

	// Memory compression for long-running workers
	compressor Compressor

	// State tracking
	state     int32 // atomic State
	startTime time.Time
	endTime   time.Time
	turnCount int

	// Results
	result Result
	err    error

	// Cancellation
	cancel context.CancelFunc
}

// New creates a worker with the given configuration and drafter.
func New(cfg Config, drafter *Drafter) *Worker {
	logging.Worker("Creating worker: %s (type: %s)", cfg.Name, cfg.Type)

	return &Worker{
		config:     cfg,
		drafter:    drafter,
		history:    make([]Turn, 0),
		compressor: NewSemanticCompressor(drafter.llm),
		state:      int32(StateIdle),
	}
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string {
	return w.config.ID
}

// Name returns the worker's name.
func (w *Worker) Name() string {
	return w.config.Name
}

// State returns the current state.
func (w *Worker) State() State {
	return State(atomic.LoadInt32(&w.state))
}

// Result returns the final result and error after completion.
func (w *Worker) Result() (Result, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.result, w.err
}

// Run executes the worker's task asynchronously.
// Returns immediately; use Wait() or Result() for results.
func (w *Worker) Run(ctx context.Context, task Task) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.startTime = time.Now()
	w.mu.Unlock()

	if w.config.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, w.config.Timeout)
		defer timeoutCancel()
	}

	atomic.StoreInt32(&w.state, int32(StateRunning))
	logging.Worker("Worker %s starting task %s: %s", w.config.Name, task.ID, truncateForLog(task.Heading))

	result, err := w.execute(ctx, task)

	w.mu.Lock()
	w.result = result
	w.err = err
	w.endTime = time.Now()
	w.mu.Unlock()

	if err != nil {
		atomic.StoreInt32(&w.state, int32(StateFailed))
		logging.Get(logging.CategoryWorker).Error("Worker %s failed: %v", w.config.Name, err)
	} else {
		atomic.StoreInt32(&w.state, int32(StateCompleted))
		logging.Worker("Worker %s completed task %s", w.config.Name, task.ID)
	}
}

// execute runs the drafting loop for this worker.
func (w *Worker) execute(ctx context.Context, task Task) (Result, error) {
	result, turns, err := w.drafter.Draft(ctx, task)
	if err != nil {
		return Result{}, err
	}

	w.mu.Lock()
	w.turnCount += len(turns)
	w.history = append(w.history, turns...)
	w.mu.Unlock()

	if w.config.Type == TypePersistent && w.config.MaxTurns > 0 {
		if err := w.CompressMemory(ctx, w.config.MaxTurns); err != nil {
			logging.Get(logging.CategoryWorker).Warn("Worker %s memory compression failed: %v", w.config.Name, err)
		}
	}

	return result, nil
}

// Stop cancels the worker's execution.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		logging.Worker("Worker %s stop requested", w.config.Name)
	}

	return nil
}

// Wait blocks until the worker completes or the context ends.
func (w *Worker) Wait(ctx context.Context) (Result, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		state := w.State()
		if state == StateCompleted || state == StateFailed {
			return w.Result()
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Metrics holds execution metrics.
type Metrics struct {
	ID        string
	Name      string
	Type      Type
	State     State
	TurnCount int
	Duration  time.Duration
}

// Metrics returns execution metrics for this worker.
func (w *Worker) Metrics() Metrics {
	w.mu.RLock()
	defer w.mu.RUnlock()

	duration := time.Duration(0)
	if !w.startTime.IsZero() {
		if !w.endTime.IsZero() {
			duration = w.endTime.Sub(w.startTime)
		} else {
			duration = time.Since(w.startTime)
		}
	}

	return Metrics{
		ID:        w.config.ID,
		Name:      w.config.Name,
		Type:      w.config.Type,
		State:     w.State(),
		TurnCount: w.turnCount,
		Duration:  duration,
	}
}

// CompressMemory compresses the conversation history if it exceeds threshold.
func (w *Worker) CompressMemory(ctx context.Context, threshold int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.history) <= threshold {
		return nil
	}

	if w.compressor == nil {
		return nil
	}

	logging.WorkerDebug("Worker %s compressing memory: %d turns (threshold: %d)",
		w.config.Name, len(w.history), threshold)

	// Keep the most recent (threshold/2) turns intact, compress the rest
	// into a single summary turn.
	keepCount := threshold / 2
	if keepCount < 1 {
		keepCount = 1
	}

	splitIndex := len(w.history) - keepCount
	if splitIndex <= 0 {
		return nil
	}

	toCompress := w.history[:splitIndex]
	recentTurns := w.history[splitIndex:]

	summary, err := w.compressor.Compress(ctx, toCompress)
	if err != nil {
		// Fallback: simple trim to threshold
		w.history = w.history[len(w.history)-threshold:]
		return err
	}

	summaryTurn := Turn{
		Role:    "assistant",
		Content: fmt.Sprintf("[MEMORY SUMMARY] Previous context: %s", summary),
	}

	newHistory := make([]Turn, 0, len(recentTurns)+1)
	newHistory = append(newHistory, summaryTurn)
	newHistory = append(newHistory, recentTurns...)

	w.history = newHistory
	logging.Worker("Worker %s memory compressed: %d -> %d turns",
		w.config.Name, len(toCompress)+len(recentTurns), len(newHistory))

	return nil
}

// SetCompressor sets the memory compressor for long-running workers.
func (w *Worker) SetCompressor(c Compressor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.compressor = c
}

// HistoryLen returns the current conversation history length.
func (w *Worker) HistoryLen() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.history)
}

// truncateForLog returns a shortened version of a string for logging.
func truncateForLog(s string) string {
	const maxLen = 100
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
