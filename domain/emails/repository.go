package emails

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/outbox-sh/outbox/pkg/apperror"
	"github.com/outbox-sh/outbox/pkg/logger"
)

// Repository handles database operations for email jobs
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new email jobs repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("emails.repo")),
	}
}

// Create inserts a new job in the scheduled state
func (r *Repository) Create(ctx context.Context, job *EmailJob) (*EmailJob, error) {
	job.Status = JobScheduled

	_, err := r.db.NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create email job", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return job, nil
}

// GetByID returns the job with the given id, or nil if not found
func (r *Repository) GetByID(ctx context.Context, id string) (*EmailJob, error) {
	job := &EmailJob{}
	err := r.db.NewSelect().
		Model(job).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get email job", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return job, nil
}

// SetProcessing marks a job as claimed by a worker slot
func (r *Repository) SetProcessing(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobProcessing).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetSent marks a job as sent with the transport message id
func (r *Repository) SetSent(ctx context.Context, id, messageID string) error {
	_, err := r.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobSent).
		Set("sent_at = now()").
		Set("message_id = ?", messageID).
		Set("last_error = NULL").
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetFailed records a transport failure on the job. The job stays eligible
// for the queue's retry machinery until the budget runs out; the final
// attempt leaves it in the failed state.
func (r *Repository) SetFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobFailed).
		Set("failed_at = now()").
		Set("last_error = ?", errMsg).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetScheduled resets a job to the scheduled state, clearing the failure
// marker. Used by recovery and by the retry path.
func (r *Repository) SetScheduled(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobScheduled).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ResetProcessing moves every processing job back to scheduled. Called at
// startup; any job that was mid-dispatch when the process died gets another
// run.
func (r *Repository) ResetProcessing(ctx context.Context) (int, error) {
	result, err := r.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobScheduled).
		Set("updated_at = now()").
		Where("status = ?", JobProcessing).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	count, _ := result.RowsAffected()
	return int(count), nil
}

// ListByStatus returns jobs with the given status, ordered by scheduled_at
func (r *Repository) ListByStatus(ctx context.Context, status JobStatus, orderDesc bool) ([]EmailJob, error) {
	order := "scheduled_at ASC"
	if orderDesc {
		order = "scheduled_at DESC"
	}
	if status == JobSent {
		order = "sent_at DESC"
	}

	var jobs []EmailJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("status = ?", status).
		OrderExpr(order).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list email jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if jobs == nil {
		jobs = []EmailJob{}
	}
	return jobs, nil
}

// ListFinished returns sent and failed jobs, most recently sent first
func (r *Repository) ListFinished(ctx context.Context) ([]EmailJob, error) {
	var jobs []EmailJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("status IN (?)", bun.In([]JobStatus{JobSent, JobFailed})).
		OrderExpr("sent_at DESC NULLS LAST").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list finished email jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if jobs == nil {
		jobs = []EmailJob{}
	}
	return jobs, nil
}

// ListAll returns every job, newest first
func (r *Repository) ListAll(ctx context.Context) ([]EmailJob, error) {
	var jobs []EmailJob
	err := r.db.NewSelect().
		Model(&jobs).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list email jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if jobs == nil {
		jobs = []EmailJob{}
	}
	return jobs, nil
}

// ListScheduled returns every scheduled job, ordered by send time
func (r *Repository) ListScheduled(ctx context.Context) ([]EmailJob, error) {
	return r.ListByStatus(ctx, JobScheduled, false)
}
