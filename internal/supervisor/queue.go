package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scribe/internal/logging"
	"scribe/internal/worker"
)

// =============================================================================
// DISPATCH QUEUE WITH BACKPRESSURE
// =============================================================================
//
// DispatchQueue provides prioritized, backpressure-aware task dispatch.
// Instead of failing immediately when the worker pool is saturated,
// requests queue and wait for available slots, enabling graceful
// degradation under load.

var (
	// ErrQueueFull is returned when queue cannot accept more requests.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrQueueTimeout is returned when a request times out waiting in queue.
	ErrQueueTimeout = errors.New("dispatch request timed out in queue")

	// ErrQueueStopped is returned when the queue is stopped.
	ErrQueueStopped = errors.New("dispatch queue is stopped")
)

// Priority orders queued dispatch requests.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// QueueConfig configures the dispatch queue behavior.
type QueueConfig struct {
	MaxQueueSize        int           // Max total requests across all priorities
	MaxQueuePerPriority int           // Max requests per priority level
	DefaultTimeout      time.Duration // Default timeout for queued requests
	HighWaterMark       float64       // Queue utilization to start signaling backpressure (0.7)
	WorkerCount         int           // Number of concurrent dispatch workers
	DrainTimeout        time.Duration // Timeout when stopping queue
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxQueueSize:        100,
		MaxQueuePerPriority: 30,
		DefaultTimeout:      5 * time.Minute,
		HighWaterMark:       0.7,
		WorkerCount:         2,
		DrainTimeout:        30 * time.Second,
	}
}

// dispatchRequest is a queued request.
type dispatchRequest struct {
	ID          string
	Spawn       worker.SpawnRequest
	Priority    Priority
	SubmittedAt time.Time
	Deadline    time.Time
	ResultCh    chan DispatchResult
	Ctx         context.Context
	Detached    bool
}

// DispatchResult contains the outcome of a dispatch request.
type DispatchResult struct {
	WorkerID string        // ID of the spawned worker (empty if error)
	Result   worker.Result // Drafting result
	Error    error         // Error if dispatch or execution failed
	Queued   time.Duration // How long the request waited in queue
}

// BackpressureStatus represents the current queue state for callers.
type BackpressureStatus struct {
	QueueDepth       int     // Total items in all queues
	QueueUtilization float64 // 0.0-1.0, how full the queue is
	AvailableSlots   int     // Estimated available worker slots
	Accepting        bool    // Whether queue is accepting new requests
	Reason           string  // If not accepting, why
}

// DispatchQueue manages prioritized, backpressured task dispatch.
type DispatchQueue struct {
	mu sync.RWMutex

	// Priority queues (4 levels: Low, Normal, High, Critical)
	queues [4]chan *dispatchRequest

	// Configuration
	config QueueConfig

	// Dependencies
	pool *worker.Pool

	// State
	isRunning bool
	stopCh    chan struct{}
	workerWg  sync.WaitGroup

	// Metrics (atomic for lock-free reads)
	totalQueued     int64
	totalDispatched int64
	totalTimedOut   int64
	totalRejected   int64

	// Request ID counter
	requestCounter int64
}

// NewDispatchQueue creates a new dispatch queue over the worker pool.
func NewDispatchQueue(pool *worker.Pool, cfg QueueConfig) *DispatchQueue {
	// Apply defaults for zero values
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxQueuePerPriority <= 0 {
		cfg.MaxQueuePerPriority = 30
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	if cfg.HighWaterMark <= 0 || cfg.HighWaterMark > 1 {
		cfg.HighWaterMark = 0.7
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}

	dq := &DispatchQueue{
		config: cfg,
		pool:   pool,
		stopCh: make(chan struct{}),
	}

	for i := 0; i < 4; i++ {
		dq.queues[i] = make(chan *dispatchRequest, cfg.MaxQueuePerPriority)
	}

	return dq
}

// Start begins processing the queue.
func (dq *DispatchQueue) Start() error {
	dq.mu.Lock()
	defer dq.mu.Unlock()

	if dq.isRunning {
		return nil
	}

	dq.isRunning = true
	dq.stopCh = make(chan struct{})

	for i := 0; i < dq.config.WorkerCount; i++ {
		dq.workerWg.Add(1)
		go dq.worker(i)
	}

	logging.Queue("DispatchQueue: started with %d workers, max_queue=%d, high_water=%.0f%%",
		dq.config.WorkerCount, dq.config.MaxQueueSize, dq.config.HighWaterMark*100)

	return nil
}

// Stop gracefully shuts down the queue.
func (dq *DispatchQueue) Stop() error {
	dq.mu.Lock()
	if !dq.isRunning {
		dq.mu.Unlock()
		return nil
	}
	dq.isRunning = false
	close(dq.stopCh)
	dq.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		dq.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Queue("DispatchQueue: stopped gracefully")
	case <-time.After(dq.config.DrainTimeout):
		logging.Get(logging.CategoryQueue).Warn("DispatchQueue: drain timeout exceeded, some requests may be lost")
	}

	// Drain remaining requests with errors
	for i := 0; i < 4; i++ {
		for {
			select {
			case req := <-dq.queues[i]:
				dq.sendResult(req, DispatchResult{
					Error:  ErrQueueStopped,
					Queued: time.Since(req.SubmittedAt),
				})
			default:
				goto nextQueue
			}
		}
	nextQueue:
	}

	return nil
}

// Submit submits a dispatch request to the queue.
// Returns immediately with a channel that will receive the result.
func (dq *DispatchQueue) Submit(ctx context.Context, spawn worker.SpawnRequest, priority Priority, deadline time.Time, detached bool) (<-chan DispatchResult, error) {
	dq.mu.RLock()
	if !dq.isRunning {
		dq.mu.RUnlock()
		return nil, ErrQueueStopped
	}
	dq.mu.RUnlock()

	can, reason := dq.CanAccept(priority)
	if !can {
		atomic.AddInt64(&dq.totalRejected, 1)
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, reason)
	}

	req := dispatchRequest{
		ID:          fmt.Sprintf("dispatch-%d", atomic.AddInt64(&dq.requestCounter, 1)),
		Spawn:       spawn,
		Priority:    priority,
		SubmittedAt: time.Now(),
		ResultCh:    make(chan DispatchResult, 1),
		Ctx:         ctx,
		Detached:    detached,
		Deadline:    deadline,
	}

	// Apply default timeout if not set
	if req.Deadline.IsZero() {
		if d, ok := ctx.Deadline(); ok {
			req.Deadline = d
		} else {
			req.Deadline = time.Now().Add(dq.config.DefaultTimeout)
		}
	}

	select {
	case dq.queues[req.Priority] <- &req:
		atomic.AddInt64(&dq.totalQueued, 1)
		logging.QueueDebug("DispatchQueue: queued request %s (task=%s, priority=%s)",
			req.ID, spawn.Task.ID, req.Priority)
		return req.ResultCh, nil
	default:
		// Priority queue is full
		atomic.AddInt64(&dq.totalRejected, 1)
		return nil, fmt.Errorf("%w: priority %s queue full", ErrQueueFull, req.Priority)
	}
}

// SubmitAndWait submits and blocks until result or timeout.
func (dq *DispatchQueue) SubmitAndWait(ctx context.Context, spawn worker.SpawnRequest, priority Priority) (DispatchResult, error) {
	resultCh, err := dq.Submit(ctx, spawn, priority, time.Time{}, false)
	if err != nil {
		return DispatchResult{}, err
	}

	select {
	case result := <-resultCh:
		return result, result.Error
	case <-ctx.Done():
		return DispatchResult{Error: ctx.Err()}, ctx.Err()
	}
}

// worker logic
func (dq *DispatchQueue) worker(id int) {
	defer dq.workerWg.Done()
	logging.QueueDebug("DispatchQueue: worker %d started", id)

	for {
		select {
		case <-dq.stopCh:
			logging.QueueDebug("DispatchQueue: worker %d stopping", id)
			return
		default:
			req := dq.selectNextRequest()
			if req == nil {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			dq.processRequest(id, req)
		}
	}
}

func (dq *DispatchQueue) selectNextRequest() *dispatchRequest {
	// Check from highest to lowest priority
	for pri := PriorityCritical; pri >= PriorityLow; pri-- {
		select {
		case req := <-dq.queues[pri]:
			return req
		default:
			continue
		}
	}
	return nil
}

func (dq *DispatchQueue) processRequest(workerID int, req *dispatchRequest) {
	queuedDuration := time.Since(req.SubmittedAt)

	logging.QueueDebug("DispatchQueue: worker %d processing request %s (task=%s, priority=%s, queued=%v)",
		workerID, req.ID, req.Spawn.Task.ID, req.Priority, queuedDuration)

	if err := req.Ctx.Err(); err != nil {
		atomic.AddInt64(&dq.totalTimedOut, 1)
		dq.sendResult(req, DispatchResult{
			Error:  fmt.Errorf("request cancelled while queued: %w", err),
			Queued: queuedDuration,
		})
		return
	}

	if !req.Deadline.IsZero() && time.Now().After(req.Deadline) {
		atomic.AddInt64(&dq.totalTimedOut, 1)
		dq.sendResult(req, DispatchResult{
			Error:  ErrQueueTimeout,
			Queued: queuedDuration,
		})
		logging.Get(logging.CategoryQueue).Warn("DispatchQueue: request %s timed out after %v in queue",
			req.ID, queuedDuration)
		return
	}

	// Wait for a pool slot, then spawn
	w, err := dq.spawnWithBackoff(req)
	if err != nil {
		dq.sendResult(req, DispatchResult{
			Error:  fmt.Errorf("spawn failed: %w", err),
			Queued: time.Since(req.SubmittedAt),
		})
		return
	}

	if req.Detached {
		atomic.AddInt64(&dq.totalDispatched, 1)
		dq.sendResult(req, DispatchResult{
			WorkerID: w.ID(),
			Queued:   time.Since(req.SubmittedAt),
		})
		return
	}

	// Wait for completion
	result, err := w.Wait(req.Ctx)
	atomic.AddInt64(&dq.totalDispatched, 1)
	dq.sendResult(req, DispatchResult{
		WorkerID: w.ID(),
		Result:   result,
		Error:    err,
		Queued:   time.Since(req.SubmittedAt),
	})
	logging.QueueDebug("DispatchQueue: request %s completed (worker=%s)", req.ID, w.ID())
}

// spawnWithBackoff waits for a pool slot with exponential backoff.
func (dq *DispatchQueue) spawnWithBackoff(req *dispatchRequest) (*worker.Worker, error) {
	backoff := 100 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		w, err := dq.pool.Spawn(req.Ctx, req.Spawn)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, worker.ErrPoolFull) {
			return nil, err
		}

		// Completed workers free slots only after cleanup
		dq.pool.Cleanup()

		if !req.Deadline.IsZero() && time.Now().After(req.Deadline) {
			atomic.AddInt64(&dq.totalTimedOut, 1)
			return nil, ErrQueueTimeout
		}

		waitTime := backoff
		if !req.Deadline.IsZero() {
			remaining := time.Until(req.Deadline)
			if remaining < waitTime {
				waitTime = remaining
			}
		}

		select {
		case <-req.Ctx.Done():
			return nil, req.Ctx.Err()
		case <-time.After(waitTime):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (dq *DispatchQueue) sendResult(req *dispatchRequest, result DispatchResult) {
	select {
	case req.ResultCh <- result:
	default:
		logging.Get(logging.CategoryQueue).Warn("DispatchQueue: could not send result for request %s", req.ID)
	}
}

// GetBackpressureStatus reports the current queue state.
func (dq *DispatchQueue) GetBackpressureStatus() BackpressureStatus {
	depth := dq.GetQueueDepth()
	utilization := float64(depth) / float64(dq.config.MaxQueueSize)
	slots := dq.pool.MaxActive() - len(dq.pool.ListActive())
	if slots < 0 {
		slots = 0
	}
	accepting := true
	reason := ""
	if utilization >= 1.0 {
		accepting = false
		reason = "queue full"
	} else if slots == 0 && utilization > dq.config.HighWaterMark {
		accepting = false
		reason = "no slots available and queue at high water mark"
	}
	return BackpressureStatus{
		QueueDepth:       depth,
		QueueUtilization: utilization,
		AvailableSlots:   slots,
		Accepting:        accepting,
		Reason:           reason,
	}
}

// CanAccept reports whether a request at the given priority would be queued.
func (dq *DispatchQueue) CanAccept(priority Priority) (bool, string) {
	depth := dq.GetQueueDepth()
	utilization := float64(depth) / float64(dq.config.MaxQueueSize)

	if depth >= dq.config.MaxQueueSize {
		return false, "total queue capacity reached"
	}
	if len(dq.queues[priority]) >= dq.config.MaxQueuePerPriority {
		return false, fmt.Sprintf("%s priority queue full", priority)
	}

	switch {
	case utilization > 0.9:
		if priority < PriorityCritical {
			return false, "queue >90% full, only critical requests accepted"
		}
	case utilization > dq.config.HighWaterMark:
		if priority == PriorityLow {
			return false, fmt.Sprintf("queue >%.0f%% full, low priority rejected", dq.config.HighWaterMark*100)
		}
	}
	return true, ""
}

// GetQueueDepth returns the total number of queued requests.
func (dq *DispatchQueue) GetQueueDepth() int {
	total := 0
	for i := 0; i < 4; i++ {
		total += len(dq.queues[i])
	}
	return total
}

// IsRunning reports whether the queue is processing requests.
func (dq *DispatchQueue) IsRunning() bool {
	dq.mu.RLock()
	defer dq.mu.RUnlock()
	return dq.isRunning
}

// QueueMetrics provides observability into queue state.
type QueueMetrics struct {
	QueueDepthByPriority [4]int
	TotalQueued          int64
	TotalDispatched      int64
	TotalTimedOut        int64
	TotalRejected        int64
	CurrentUtilization   float64
	IsRunning            bool
}

// GetMetrics returns a snapshot of queue metrics.
func (dq *DispatchQueue) GetMetrics() QueueMetrics {
	dq.mu.RLock()
	running := dq.isRunning
	dq.mu.RUnlock()

	metrics := QueueMetrics{
		TotalQueued:     atomic.LoadInt64(&dq.totalQueued),
		TotalDispatched: atomic.LoadInt64(&dq.totalDispatched),
		TotalTimedOut:   atomic.LoadInt64(&dq.totalTimedOut),
		TotalRejected:   atomic.LoadInt64(&dq.totalRejected),
		IsRunning:       running,
	}
	for i := 0; i < 4; i++ {
		metrics.QueueDepthByPriority[i] = len(dq.queues[i])
	}
	metrics.CurrentUtilization = float64(dq.GetQueueDepth()) / float64(dq.config.MaxQueueSize)
	return metrics
}
