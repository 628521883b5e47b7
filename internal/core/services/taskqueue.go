package services

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Task queue errors.
var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrQueueClosed = errors.New("task queue is closed")
)

// Task queue defaults.
const (
	DefaultQueueWorkers = 2
	DefaultQueueSize    = 64
)

// IngestTask produces one ingestion record.
type IngestTask func(ctx context.Context) (*domain.IngestionRecord, error)

// TaskResultFunc receives the outcome of every task.
type TaskResultFunc func(name string, record *domain.IngestionRecord, err error)

type queuedTask struct {
	name string
	run  IngestTask
}

// TaskQueue runs ingestion tasks on a fixed pool of workers. Tasks for
// the same unit are safe to queue twice: ingestion serialises on the
// unit ID and is idempotent.
type TaskQueue struct {
	workers  int
	tasks    chan queuedTask
	onResult TaskResultFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewTaskQueue creates a queue. onResult may be nil.
func NewTaskQueue(workers, size int, onResult TaskResultFunc) *TaskQueue {
	if workers <= 0 {
		workers = DefaultQueueWorkers
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &TaskQueue{
		workers:  workers,
		tasks:    make(chan queuedTask, size),
		onResult: onResult,
	}
}

// Start launches the workers. They stop when ctx is cancelled or the
// queue is closed and drained.
func (q *TaskQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	logger.Debug("task queue started with %d workers", q.workers)
}

func (q *TaskQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(ctx, task)
		}
	}
}

func (q *TaskQueue) run(ctx context.Context, task queuedTask) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task %s panicked: %v", task.name, r)
		}
	}()

	rec, err := task.run(ctx)
	if err != nil {
		logger.Warn("task %s: %v", task.name, err)
	}
	if q.onResult != nil {
		q.onResult(task.name, rec, err)
	}
}

// Submit queues a task without blocking.
func (q *TaskQueue) Submit(name string, task IngestTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- queuedTask{name: name, run: task}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (q *TaskQueue) Pending() int {
	return len(q.tasks)
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}
