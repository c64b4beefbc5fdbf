// Package jobs provides a PostgreSQL-backed delayed job queue and a bounded
// worker pool consuming it.
//
// The queue is ordered by ready-at time and survives restarts:
// - Enqueue is idempotent per job key (at most one live entry per key)
// - Dequeue atomically claims ready entries with FOR UPDATE SKIP LOCKED
// - Failed entries retry with exponential backoff up to a per-entry limit,
//   then move to a dead state and are retained
// - Completed entries are removed
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// QueueConfig contains configuration for the delay queue
type QueueConfig struct {
	// BackoffBase is the base delay for transport-failure retries
	// (attempt n waits base * 2^(n-1))
	BackoffBase time.Duration
	// DefaultRetryLimit is used when Enqueue is called with retryLimit <= 0
	DefaultRetryLimit int
}

// DefaultQueueConfig returns a QueueConfig with the standard defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		BackoffBase:       time.Second,
		DefaultRetryLimit: 3,
	}
}

// Queue is the durable delayed job queue
type Queue struct {
	db     bun.IDB
	config QueueConfig
	log    *slog.Logger
}

// NewQueue creates a new delay queue
func NewQueue(db bun.IDB, config QueueConfig, log *slog.Logger) *Queue {
	if config.BackoffBase == 0 {
		config.BackoffBase = time.Second
	}
	if config.DefaultRetryLimit == 0 {
		config.DefaultRetryLimit = 3
	}

	return &Queue{
		db:     db,
		config: config,
		log:    log,
	}
}

// Enqueue inserts a pending entry that becomes ready after delay. Negative
// delays are clamped to zero. Enqueueing a key with a live entry is a no-op
// and returns that entry; a retained dead entry does not block a fresh one.
func (q *Queue) Enqueue(ctx context.Context, jobKey string, payload Payload, delay time.Duration, retryLimit int) (*Entry, error) {
	if delay < 0 {
		delay = 0
	}
	if retryLimit <= 0 {
		retryLimit = q.config.DefaultRetryLimit
	}
	if payload == nil {
		payload = Payload{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	entry := &Entry{}

	// now() keeps ready-at computation on the database clock, consistent
	// with the dequeue query
	err = q.db.NewRaw(`INSERT INTO outbox.queue_entries (job_key, payload, status, ready_at, retry_limit)
		VALUES (?, ?, 'pending', now() + (? || ' milliseconds')::interval, ?)
		ON CONFLICT (job_key) WHERE status IN ('pending', 'processing') DO NOTHING
		RETURNING *`,
		jobKey, string(payloadJSON), fmt.Sprintf("%d", delay.Milliseconds()), retryLimit,
	).Scan(ctx, entry)

	if errors.Is(err, sql.ErrNoRows) {
		// Key already live; return the existing entry
		return q.getLiveByKey(ctx, jobKey)
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue entry: %w", err)
	}

	q.log.Debug("enqueued entry",
		slog.String("job_key", jobKey),
		slog.Duration("delay", delay),
	)

	return entry, nil
}

// Dequeue atomically claims up to limit ready entries for processing.
//
// Uses FOR UPDATE SKIP LOCKED so concurrent pools never claim the same
// entry twice.
func (q *Queue) Dequeue(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []*Entry
	err := q.db.NewRaw(`WITH cte AS (
		SELECT id FROM outbox.queue_entries
		WHERE status='pending' AND ready_at <= now()
		ORDER BY ready_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT ?
	)
	UPDATE outbox.queue_entries qe
	SET status='processing', started_at=now(), updated_at=now()
	FROM cte WHERE qe.id = cte.id
	RETURNING qe.*`, limit).Scan(ctx, &entries)
	if err != nil {
		return nil, fmt.Errorf("dequeue entries: %w", err)
	}

	return entries, nil
}

// Exists reports whether a live (pending or processing) entry exists for the
// job key. Used by recovery to avoid double-queueing.
func (q *Queue) Exists(ctx context.Context, jobKey string) (bool, error) {
	count, err := q.db.NewSelect().
		Model((*Entry)(nil)).
		Where("job_key = ?", jobKey).
		Where("status IN (?)", bun.In([]EntryStatus{EntryPending, EntryProcessing})).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("check entry exists: %w", err)
	}

	return count > 0, nil
}

// ExistsForJob reports whether a live entry exists for the job id, counting
// rate-deferral entries (keyed <id>-retry-<ns>) as well as the original key.
func (q *Queue) ExistsForJob(ctx context.Context, jobID string) (bool, error) {
	count, err := q.db.NewSelect().
		Model((*Entry)(nil)).
		Where("job_key = ? OR job_key LIKE ?", jobID, jobID+"-retry-%").
		Where("status IN (?)", bun.In([]EntryStatus{EntryPending, EntryProcessing})).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("check job entries exist: %w", err)
	}

	return count > 0, nil
}

// MarkCompleted removes a finished entry from the queue
func (q *Queue) MarkCompleted(ctx context.Context, entry *Entry) error {
	_, err := q.db.NewDelete().
		Model((*Entry)(nil)).
		Where("id = ?", entry.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	return nil
}

// MarkFailed records a transport failure. The entry is retried with
// exponential backoff until its retry limit, then moved to the dead state
// and retained.
func (q *Queue) MarkFailed(ctx context.Context, entry *Entry, entryErr error) error {
	attempt := entry.AttemptCount + 1
	errMsg := truncateError(entryErr.Error())

	if attempt >= entry.RetryLimit {
		_, err := q.db.NewUpdate().
			Model((*Entry)(nil)).
			Set("status = ?", EntryDead).
			Set("attempt_count = ?", attempt).
			Set("last_error = ?", errMsg).
			Set("updated_at = now()").
			Where("id = ?", entry.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark dead: %w", err)
		}

		q.log.Error("entry dead after max attempts",
			slog.String("job_key", entry.JobKey),
			slog.Int("attempts", attempt),
			slog.String("error", errMsg),
		)
		return nil
	}

	delay := BackoffDelay(q.config.BackoffBase, attempt)

	_, err := q.db.NewRaw(`UPDATE outbox.queue_entries
		SET status='pending',
			attempt_count=?,
			last_error=?,
			ready_at=now() + (? || ' milliseconds')::interval,
			updated_at=now()
		WHERE id=?`,
		attempt, errMsg, fmt.Sprintf("%d", delay.Milliseconds()), entry.ID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark failed (retry): %w", err)
	}

	q.log.Warn("entry scheduled for retry",
		slog.String("job_key", entry.JobKey),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", errMsg),
	)

	return nil
}

// RecoverStale resets entries stuck in processing, e.g. after a crash
// mid-dispatch. Returns the number of entries recovered.
func (q *Queue) RecoverStale(ctx context.Context, staleThreshold time.Duration) (int, error) {
	if staleThreshold <= 0 {
		staleThreshold = 10 * time.Minute
	}

	result, err := q.db.NewRaw(`UPDATE outbox.queue_entries
		SET status='pending',
			started_at=NULL,
			ready_at=now(),
			updated_at=now()
		WHERE status='processing'
			AND started_at < now() - (? || ' milliseconds')::interval`,
		fmt.Sprintf("%d", staleThreshold.Milliseconds()),
	).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale entries: %w", err)
	}

	count, _ := result.RowsAffected()

	if count > 0 {
		q.log.Warn("recovered stale entries",
			slog.Int64("count", count),
			slog.Duration("threshold", staleThreshold),
		)
	}

	return int(count), nil
}

// Stats represents queue statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := q.db.NewRaw(`SELECT
		COUNT(*) FILTER (WHERE status = 'pending') as pending,
		COUNT(*) FILTER (WHERE status = 'processing') as processing,
		COUNT(*) FILTER (WHERE status = 'dead') as dead
	FROM outbox.queue_entries`).Scan(ctx, &stats.Pending, &stats.Processing, &stats.Dead)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}

	return stats, nil
}

// getLiveByKey returns the pending or processing entry for the key. Dead
// entries sharing the key are skipped.
func (q *Queue) getLiveByKey(ctx context.Context, jobKey string) (*Entry, error) {
	entry := &Entry{}
	err := q.db.NewSelect().
		Model(entry).
		Where("job_key = ?", jobKey).
		Where("status IN (?)", bun.In([]EntryStatus{EntryPending, EntryProcessing})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get live entry by key: %w", err)
	}
	return entry, nil
}

// BackoffDelay returns the retry delay for the given attempt (1-based):
// base, base*2, base*4, ...
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// truncateError truncates an error message to 500 characters
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
