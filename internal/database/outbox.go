package database

import (
	"context"
	"database/sql"
	"time"

	"venuebook/internal/outbox"
)

// EnqueueTask inserts a pending outbox task. A duplicate dedup key is a
// silent no-op so re-enqueueing the same effect is safe.
func (db *DB) EnqueueTask(ctx context.Context, task *outbox.Task) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO outbox_tasks (task_type, subject_id, dedup_key, payload, status, retry_count, created_at, next_retry_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, ?)`,
		task.Type, task.SubjectID, nullIfEmpty(task.DedupKey), task.Payload, now, now,
	)
	if err != nil {
		return err
	}
	// An ignored duplicate still reports the connection's previous insert id,
	// so only trust LastInsertId when a row actually went in.
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if id, err := res.LastInsertId(); err == nil {
			task.ID = id
		}
		task.Status = outbox.TaskStatusPending
		task.CreatedAt = now
	}
	return nil
}

// DueTasks returns pending tasks whose next retry time has passed.
func (db *DB) DueTasks(ctx context.Context, limit int) ([]outbox.Task, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, task_type, subject_id, dedup_key, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
		FROM outbox_tasks
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?`,
		time.Now(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []outbox.Task
	for rows.Next() {
		var t outbox.Task
		var status string
		var dedup, lastErr sql.NullString
		var processedAt, nextRetryAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Type, &t.SubjectID, &dedup, &t.Payload, &status,
			&t.RetryCount, &lastErr, &t.CreatedAt, &processedAt, &nextRetryAt); err != nil {
			return nil, err
		}
		t.Status = outbox.TaskStatus(status)
		if dedup.Valid {
			t.DedupKey = dedup.String
		}
		if lastErr.Valid {
			t.LastError = lastErr.String
		}
		if processedAt.Valid {
			t.ProcessedAt = &processedAt.Time
		}
		if nextRetryAt.Valid {
			t.NextRetryAt = &nextRetryAt.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskDone records successful processing.
func (db *DB) MarkTaskDone(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE outbox_tasks SET status = 'done', processed_at = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkTaskRetry records a failed attempt and schedules the next one.
func (db *DB) MarkTaskRetry(ctx context.Context, id int64, lastError string, nextRetryAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE outbox_tasks
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		lastError, nextRetryAt, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkTaskFailed marks a task terminally failed.
func (db *DB) MarkTaskFailed(ctx context.Context, id int64, lastError string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE outbox_tasks SET status = 'failed', last_error = ?, processed_at = ? WHERE id = ?`,
		lastError, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CountPendingTasks returns the number of pending outbox tasks.
func (db *DB) CountPendingTasks(ctx context.Context) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_tasks WHERE status = 'pending'`).Scan(&n)
	return n, err
}
