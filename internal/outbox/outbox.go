// Package outbox decouples committed state changes from external side
// effects. Lifecycle operations enqueue tasks in the same database that holds
// the authoritative rows; a worker executes them afterwards with retries, so
// a calendar or mail failure never rolls back a commit.
package outbox

import (
	"context"
	"time"
)

// Task types understood by the worker.
const (
	TaskCalendarSync  = "calendar_sync"
	TaskCalendarDrop  = "calendar_drop"
	TaskNotifyCreated = "notify_created"
)

// TaskStatus is the processing state of an outbox task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// Task is one deferred external effect.
type Task struct {
	ID          int64
	Type        string
	SubjectID   int64
	DedupKey    string
	Payload     string
	Status      TaskStatus
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	NextRetryAt *time.Time
}

// Store persists outbox tasks alongside the domain rows.
type Store interface {
	// EnqueueTask inserts a pending task. Tasks with a dedup key that is
	// already queued are silently dropped.
	EnqueueTask(ctx context.Context, task *Task) error

	// DueTasks returns pending tasks whose retry time has passed, oldest first.
	DueTasks(ctx context.Context, limit int) ([]Task, error)

	// MarkTaskDone records successful processing.
	MarkTaskDone(ctx context.Context, id int64) error

	// MarkTaskRetry records a failed attempt and schedules the next one.
	MarkTaskRetry(ctx context.Context, id int64, lastError string, nextRetryAt time.Time) error

	// MarkTaskFailed marks a task terminally failed.
	MarkTaskFailed(ctx context.Context, id int64, lastError string) error

	// CountPendingTasks returns the number of pending tasks.
	CountPendingTasks(ctx context.Context) (int64, error)
}

// Handler executes one task type.
type Handler func(ctx context.Context, task Task) error
