// Package jobs provides the bounded-concurrency task queue that decouples
// request admission from answer generation, plus the background workers
// built on it.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/askbook-ai/askbook/internal/domain"
	"github.com/google/uuid"
)

// Handler executes one task kind. The returned value becomes the task
// result; a returned error marks the task Failed.
type Handler func(ctx context.Context, task *domain.Task) (any, error)

// QueueConfig tunes the task queue.
type QueueConfig struct {
	// Capacity bounds the number of admitted-but-unclaimed tasks.
	Capacity int
	// PollTimeout bounds how long an idle worker blocks on the queue
	// before checking for shutdown.
	PollTimeout time.Duration
}

// DefaultQueueConfig provides sane queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:    1024,
		PollTimeout: time.Second,
	}
}

// Queue admits long-running tasks and runs a fixed pool of workers pulling
// from one shared FIFO channel. Tasks are dequeued in submission order;
// completion order is not guaranteed.
type Queue struct {
	cfg      QueueConfig
	handlers map[domain.TaskKind]Handler

	pending chan string

	mu      sync.Mutex
	active  map[string]*domain.Task
	results map[string]*domain.Task
	running bool
	workers int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewQueue creates a Queue with no workers running. Handlers must be
// registered before Start.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return &Queue{
		cfg:      cfg,
		handlers: make(map[domain.TaskKind]Handler),
		pending:  make(chan string, cfg.Capacity),
		active:   make(map[string]*domain.Task),
		results:  make(map[string]*domain.Task),
	}
}

// Register installs the handler for a task kind. New kinds plug in here
// without touching queue internals.
func (q *Queue) Register(kind domain.TaskKind, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

// Submit creates a Pending task, registers it in the active table, and
// enqueues its id. It returns immediately and never blocks on processing.
func (q *Queue) Submit(kind domain.TaskKind, payload any) (string, error) {
	task := domain.NewTask(uuid.NewString(), kind, payload)
	if err := domain.ValidateTask(task); err != nil {
		return "", err
	}

	q.mu.Lock()
	q.active[task.ID] = task
	q.mu.Unlock()

	select {
	case q.pending <- task.ID:
	default:
		q.mu.Lock()
		delete(q.active, task.ID)
		q.mu.Unlock()
		return "", domain.ErrQueueFull
	}

	log.Printf("submitted task %s of kind %s", task.ID, kind)
	return task.ID, nil
}

// Status returns a snapshot of the task, or nil if the id was never issued
// or has been purged. Repeated calls after completion return the same
// terminal result.
func (q *Queue) Status(taskID string) *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.active[taskID]; ok {
		return snapshot(task)
	}
	if task, ok := q.results[taskID]; ok {
		return snapshot(task)
	}
	return nil
}

// snapshot copies a task so callers never observe a state mid-transition.
// Callers must hold q.mu.
func snapshot(task *domain.Task) *domain.Task {
	copied := *task
	return &copied
}

// Start launches exactly n long-lived workers. Starting an already-running
// queue is a no-op.
func (q *Queue) Start(n int) {
	if n <= 0 {
		n = 1
	}

	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.workers = n
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.worker(q.stopCh)
	}
	log.Printf("started %d queue workers", n)
}

// Stop retires all workers. A worker blocked on the queue is interrupted;
// a worker mid-execution finishes its current task first. After Stop
// returns, no task is left Processing.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.workers = 0
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	log.Println("queue workers stopped")
}

// worker blocks with a timeout on the shared queue; a timeout with no work
// is not an error, the worker just loops again.
func (q *Queue) worker(stop <-chan struct{}) {
	defer q.wg.Done()

	timer := time.NewTimer(q.cfg.PollTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.cfg.PollTimeout)

		select {
		case <-stop:
			return
		case taskID := <-q.pending:
			q.execute(taskID)
		case <-timer.C:
		}
	}
}

// execute runs one task to a terminal state and moves it from the active
// table to results. Handler panics are captured as task failures so a
// worker never dies serving a task.
func (q *Queue) execute(taskID string) {
	q.mu.Lock()
	task, ok := q.active[taskID]
	if !ok {
		// Task was purged between submission and claim.
		q.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	task.Status = domain.TaskStatusProcessing
	task.StartedAt = &now
	handler := q.handlers[task.Kind]
	q.mu.Unlock()

	result, err := q.runHandler(handler, task)

	q.mu.Lock()
	done := time.Now().UTC()
	task.CompletedAt = &done
	if err != nil {
		task.Status = domain.TaskStatusFailed
		task.Error = err.Error()
	} else {
		task.Status = domain.TaskStatusCompleted
		task.Result = result
	}
	delete(q.active, taskID)
	q.results[taskID] = task
	q.mu.Unlock()

	if err != nil {
		log.Printf("task %s failed: %v", taskID, err)
	}
}

func (q *Queue) runHandler(handler Handler, task *domain.Task) (result any, err error) {
	if handler == nil {
		return nil, domain.ErrUnknownTaskKind
	}

	defer func() {
		if r := recover(); r != nil {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeInternalError,
				"task handler panicked", nil)
			log.Printf("task %s handler panicked: %v", task.ID, r)
		}
	}()

	return handler(context.Background(), task)
}

// QueueSize returns the count of not-yet-claimed tasks.
func (q *Queue) QueueSize() int {
	return len(q.pending)
}

// ActiveCount returns the number of tasks that are Pending or Processing.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// ResultCount returns the number of retained terminal tasks.
func (q *Queue) ResultCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}

// WorkerCount returns the configured number of running workers.
func (q *Queue) WorkerCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workers
}

// Cleanup purges terminal tasks older than maxAge from results storage and
// returns the number removed.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, task := range q.results {
		if task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(q.results, id)
			removed++
		}
	}

	if removed > 0 {
		log.Printf("cleaned up %d old task results", removed)
	}
	return removed
}

// ErrWaitTimeout reports that a task did not reach a terminal state within
// the caller's deadline. It is a signal to keep polling or give up, not a
// task failure.
var ErrWaitTimeout = domain.NewDomainError(domain.ErrCodeInvalidOperation, "timed out waiting for task")

// Wait blocks until the task reaches a terminal state or the context
// expires, polling the task table on a short interval.
func (q *Queue) Wait(ctx context.Context, taskID string) (*domain.Task, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		task := q.Status(taskID)
		if task == nil {
			return nil, domain.ErrTaskNotFound
		}
		if task.Status.IsTerminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return task, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}
