package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/internal/llm"
	"scribe/internal/logging"
)

// Pool manages worker creation and lifecycle.
type Pool struct {
	mu sync.RWMutex

	// Shared by all spawned workers
	llmClient llm.Client
	drafter   *Drafter

	// Active workers
	workers map[string]*Worker

	// Configuration
	maxActiveWorkers int
	workerTimeout    time.Duration
}

// PoolConfig holds configuration for the pool.
type PoolConfig struct {
	MaxActiveWorkers int
	WorkerTimeout    time.Duration
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxActiveWorkers: 8,
		WorkerTimeout:    10 * time.Minute,
	}
}

// NewPool creates a new worker pool.
func NewPool(llmClient llm.Client, cfg PoolConfig) *Pool {
	if cfg.MaxActiveWorkers <= 0 {
		cfg.MaxActiveWorkers = 8
	}
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = 10 * time.Minute
	}

	logging.Worker("Creating worker pool (max active: %d)", cfg.MaxActiveWorkers)

	return &Pool{
		llmClient:        llmClient,
		drafter:          NewDrafter(llmClient),
		workers:          make(map[string]*Worker),
		maxActiveWorkers: cfg.MaxActiveWorkers,
		workerTimeout:    cfg.WorkerTimeout,
	}
}

// SpawnRequest describes the parameters for spawning a worker.
type SpawnRequest struct {
	// Name is the worker name (e.g., "drafter")
	Name string

	// Task is the drafting task for the worker
	Task Task

	// Type determines lifecycle behavior (ephemeral, persistent)
	Type Type

	// Timeout overrides the pool default when positive
	Timeout time.Duration
}

// ErrPoolFull is returned when the active worker limit is reached.
var ErrPoolFull = fmt.Errorf("max active workers reached")

// Spawn creates and starts a new worker for the request.
func (p *Pool) Spawn(ctx context.Context, req SpawnRequest) (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	activeCount := p.countActive()
	if activeCount >= p.maxActiveWorkers {
		return nil, fmt.Errorf("%w: %d", ErrPoolFull, p.maxActiveWorkers)
	}

	name := req.Name
	if name == "" {
		name = "drafter"
	}

	logging.Worker("Spawning worker: %s (type: %s, task: %s)", name, req.Type, req.Task.ID)

	cfg := Config{
		ID:       fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]),
		Name:     name,
		Type:     req.Type,
		Timeout:  req.Timeout,
		MaxTurns: 40,
	}
	if cfg.Type == "" {
		cfg.Type = TypeEphemeral
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = p.workerTimeout
	}

	w := New(cfg, p.drafter)
	p.workers[w.ID()] = w

	go w.Run(ctx, req.Task)

	logging.Worker("Spawned worker: %s (id: %s)", name, w.ID())
	return w, nil
}

// Get returns a worker by ID.
func (p *Pool) Get(id string) (*Worker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.workers[id]
	return w, ok
}

// GetByName returns the first running worker with the given name.
func (p *Pool) GetByName(name string) (*Worker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, w := range p.workers {
		if w.Name() == name && w.State() == StateRunning {
			return w, true
		}
	}
	return nil, false
}

// Stop stops a worker by ID.
func (p *Pool) Stop(id string) error {
	p.mu.Lock()
	w, ok := p.workers[id]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("worker not found: %s", id)
	}
	return w.Stop()
}

// StopAll stops all running workers.
func (p *Pool) StopAll() {
	p.mu.Lock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		if w.State() == StateRunning {
			_ = w.Stop()
		}
	}
}

// Cleanup removes completed workers from tracking.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, w := range p.workers {
		state := w.State()
		if state == StateCompleted || state == StateFailed {
			delete(p.workers, id)
			removed++
		}
	}

	if removed > 0 {
		logging.WorkerDebug("Cleaned up %d completed workers", removed)
	}
	return removed
}

// ListActive returns all currently running workers.
func (p *Pool) ListActive() []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := make([]*Worker, 0)
	for _, w := range p.workers {
		if w.State() == StateRunning {
			active = append(active, w)
		}
	}
	return active
}

// AllMetrics returns metrics for all tracked workers.
func (p *Pool) AllMetrics() []Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metrics := make([]Metrics, 0, len(p.workers))
	for _, w := range p.workers {
		metrics = append(metrics, w.Metrics())
	}
	return metrics
}

// MaxActive returns the configured active worker limit.
func (p *Pool) MaxActive() int {
	return p.maxActiveWorkers
}

// countActive returns the number of running workers (caller must hold lock).
func (p *Pool) countActive() int {
	count := 0
	for _, w := range p.workers {
		if w.State() == StateRunning {
			count++
		}
	}
	return count
}
