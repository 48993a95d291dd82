package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"venuebook/internal/metrics"
)

// WorkerConfig holds configuration for the outbox worker.
type WorkerConfig struct {
	// PollInterval is how often the worker checks for due tasks.
	PollInterval time.Duration
	// BatchSize is the maximum number of tasks processed per poll.
	BatchSize int
	// MaxRetries is the number of attempts before a task is marked failed.
	MaxRetries int
	// RetryDelays are the backoff delays per attempt; the last entry repeats.
	RetryDelays []time.Duration
	// TaskTimeout bounds the execution of a single task.
	TaskTimeout time.Duration
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    20,
		MaxRetries:   5,
		RetryDelays: []time.Duration{
			5 * time.Second,
			30 * time.Second,
			2 * time.Minute,
			10 * time.Minute,
		},
		TaskTimeout: 15 * time.Second,
	}
}

// Worker polls the store and dispatches due tasks to registered handlers.
type Worker struct {
	store    Store
	config   WorkerConfig
	handlers map[string]Handler
	logger   *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewWorker creates a worker over the given store.
func NewWorker(store Store, config WorkerConfig, logger *zerolog.Logger) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig().BatchSize
	}
	return &Worker{
		store:    store,
		config:   config,
		handlers: make(map[string]Handler),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Register installs the handler for a task type. Tasks without a handler are
// marked failed on first pickup.
func (w *Worker) Register(taskType string, handler Handler) {
	w.handlers[taskType] = handler
}

// Start runs the poll loop until the context is canceled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("outbox worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("outbox worker stopped by context")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("outbox worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the worker loop.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.running {
		w.running = false
		close(w.stopCh)
	}
	w.mu.Unlock()
}

// RunOnce processes one batch of due tasks. Exposed for tests and for
// flushing on shutdown.
func (w *Worker) RunOnce(ctx context.Context) {
	tasks, err := w.store.DueTasks(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to fetch due outbox tasks")
		return
	}

	for i := range tasks {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.process(ctx, tasks[i])
	}

	if pending, err := w.store.CountPendingTasks(ctx); err == nil {
		metrics.SetOutboxPending(pending)
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	handler, ok := w.handlers[task.Type]
	if !ok {
		w.logger.Error().Str("task_type", task.Type).Int64("task_id", task.ID).Msg("no handler for outbox task")
		_ = w.store.MarkTaskFailed(ctx, task.ID, fmt.Sprintf("no handler for %q", task.Type))
		metrics.IncOutboxTask(task.Type, "failed")
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	err := handler(taskCtx, task)
	cancel()

	if err == nil {
		if err := w.store.MarkTaskDone(ctx, task.ID); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark outbox task done")
		}
		metrics.IncOutboxTask(task.Type, "done")
		return
	}

	if task.RetryCount+1 >= w.config.MaxRetries {
		w.logger.Error().Err(err).
			Int64("task_id", task.ID).
			Str("task_type", task.Type).
			Int("retries", task.RetryCount).
			Msg("outbox task failed terminally")
		_ = w.store.MarkTaskFailed(ctx, task.ID, err.Error())
		metrics.IncOutboxTask(task.Type, "failed")
		return
	}

	delay := w.retryDelay(task.RetryCount)
	w.logger.Warn().Err(err).
		Int64("task_id", task.ID).
		Str("task_type", task.Type).
		Dur("retry_in", delay).
		Msg("outbox task failed, will retry")
	if err := w.store.MarkTaskRetry(ctx, task.ID, err.Error(), time.Now().Add(delay)); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to schedule outbox retry")
	}
	metrics.IncOutboxTask(task.Type, "retried")
}

func (w *Worker) retryDelay(attempt int) time.Duration {
	delays := w.config.RetryDelays
	if len(delays) == 0 {
		return time.Minute
	}
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}
