// Package queue implements C6: a durable task queue backed by Valkey
// LPUSH/BRPOP, plus a bounded worker pool that dispatches popped tasks to
// kind-specific handlers and reports progress through ingest.TaskStore.
// BRPOP removes a task from the list before its handler runs, so a task
// whose worker stops mid-run is not redelivered.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// ValkeyQueue persists tasks in Valkey for workers to pop.
type ValkeyQueue struct {
	client   valkey.Client
	queueKey string
}

// NewValkeyQueue constructs a Valkey-backed task queue.
func NewValkeyQueue(client valkey.Client, queueKey string) *ValkeyQueue {
	if queueKey == "" {
		queueKey = "meridian:tasks"
	}
	return &ValkeyQueue{client: client, queueKey: queueKey}
}

// Enqueue pushes a task onto the durable queue.
func (q *ValkeyQueue) Enqueue(ctx context.Context, task ingest.Task) error {
	encoded, err := json.Marshal(task)
	if err != nil {
		return err
	}
	cmd := q.client.B().Lpush().Key(q.queueKey).Element(string(encoded)).Build()
	return q.client.Do(ctx, cmd).Error()
}

// pop blocks up to timeout for the next task, returning (task, false, nil)
// on a timeout with no task available.
func (q *ValkeyQueue) pop(ctx context.Context, timeout time.Duration) (ingest.Task, bool, error) {
	resp := q.client.Do(ctx, q.client.B().Brpop().Key(q.queueKey).Timeout(timeout.Seconds()).Build())
	values, err := resp.ToArray()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return ingest.Task{}, false, nil
		}
		return ingest.Task{}, false, err
	}
	if len(values) < 2 {
		return ingest.Task{}, false, nil
	}
	raw, err := values[1].ToString()
	if err != nil {
		return ingest.Task{}, false, err
	}
	var task ingest.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return ingest.Task{}, false, err
	}
	return task, true, nil
}

var _ ingest.TaskQueue = (*ValkeyQueue)(nil)

// Handler runs a single task to completion, reporting progress via the
// ProgressReporter it is handed. It returns a result payload on success.
type Handler func(ctx context.Context, task ingest.Task, report func(step string, progress int)) (map[string]any, error)

// WorkerPool pops tasks from a ValkeyQueue and dispatches them by kind.
type WorkerPool struct {
	queue       *ValkeyQueue
	store       ingest.TaskStore
	logger      *slog.Logger
	handlers    map[ingest.TaskKind]Handler
	concurrency int
	hardTimeout time.Duration
	pollTimeout time.Duration
}

// NewWorkerPool constructs a pool ready to have handlers registered via
// RegisterHandler before Run is called.
func NewWorkerPool(q *ValkeyQueue, store ingest.TaskStore, logger *slog.Logger, concurrency int, hardTimeout time.Duration) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 4
	}
	if hardTimeout <= 0 {
		hardTimeout = 30 * time.Minute
	}
	return &WorkerPool{
		queue:       q,
		store:       store,
		logger:      logger.With("component", "queue.workerpool"),
		handlers:    make(map[ingest.TaskKind]Handler),
		concurrency: concurrency,
		hardTimeout: hardTimeout,
		pollTimeout: 5 * time.Second,
	}
}

// RegisterHandler binds a task kind to the function that executes it.
func (p *WorkerPool) RegisterHandler(kind ingest.TaskKind, handler Handler) {
	p.handlers[kind] = handler
}

// Run starts the worker goroutines; it returns once ctx is cancelled and
// every worker has exited. In-flight tasks run under a context derived from
// ctx, so cancelling ctx cancels them too.
func (p *WorkerPool) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < p.concurrency; i++ {
		go p.workerLoop(ctx, done)
	}
	<-ctx.Done()
	for i := 0; i < p.concurrency; i++ {
		<-done
	}
}

func (p *WorkerPool) workerLoop(ctx context.Context, done chan struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task, ok, err := p.queue.pop(ctx, p.pollTimeout)
		if err != nil {
			p.logger.Warn("task pop failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		p.execute(ctx, task)
	}
}

func (p *WorkerPool) execute(ctx context.Context, task ingest.Task) {
	handler, ok := p.handlers[task.Kind]
	if !ok {
		p.logger.Error("no handler registered for task kind", "kind", task.Kind, "task_id", task.ID)
		_ = p.store.Fail(ctx, task.ID, "no handler registered for task kind "+string(task.Kind))
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.hardTimeout)
	defer cancel()

	if err := p.store.UpdateProgress(taskCtx, task.ID, ingest.TaskStateStarted, 0, ""); err != nil {
		p.logger.Warn("task state transition failed", "task_id", task.ID, "error", err)
	}

	report := func(step string, progress int) {
		if err := p.store.UpdateProgress(taskCtx, task.ID, ingest.TaskStateProgress, progress, step); err != nil {
			p.logger.Warn("task progress update failed", "task_id", task.ID, "error", err)
		}
	}

	result, err := handler(taskCtx, task, report)
	if err != nil {
		p.logger.Error("task failed", "task_id", task.ID, "kind", task.Kind, "error", err)
		_ = p.store.Fail(ctx, task.ID, err.Error())
		return
	}
	if err := p.store.Complete(ctx, task.ID, result); err != nil {
		p.logger.Error("task completion write failed", "task_id", task.ID, "error", err)
	}
}
