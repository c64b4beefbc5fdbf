package emails

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/outbox-sh/outbox/internal/config"
	"github.com/outbox-sh/outbox/internal/jobs"
	"github.com/outbox-sh/outbox/pkg/apperror"
	"github.com/outbox-sh/outbox/pkg/clock"
	"github.com/outbox-sh/outbox/pkg/logger"

	"github.com/outbox-sh/outbox/domain/users"
)

// payloadKeyJobID is the queue-entry payload key carrying the job id
const payloadKeyJobID = "email_job_id"

// maxBulkRecipients bounds a single bulk request
const maxBulkRecipients = 1000

// enqueuer is the slice of the delay queue the service needs
type enqueuer interface {
	Enqueue(ctx context.Context, jobKey string, payload jobs.Payload, delay time.Duration, retryLimit int) (*jobs.Entry, error)
}

// senderDirectory resolves sender addresses to accounts
type senderDirectory interface {
	UpsertByEmail(ctx context.Context, email, name string) (*users.User, error)
}

// jobStore is the slice of the repository the service needs
type jobStore interface {
	Create(ctx context.Context, job *EmailJob) (*EmailJob, error)
	ListByStatus(ctx context.Context, status JobStatus, orderDesc bool) ([]EmailJob, error)
	ListFinished(ctx context.Context) ([]EmailJob, error)
	ListAll(ctx context.Context) ([]EmailJob, error)
}

// Service handles business logic for scheduling emails
type Service struct {
	repo    jobStore
	senders senderDirectory
	queue   enqueuer
	cfg     *config.Config
	clock   clock.Clock
	log     *slog.Logger
}

// NewService creates a new emails service
func NewService(repo *Repository, senders *users.Repository, queue *jobs.Queue, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Service {
	return newService(repo, senders, queue, cfg, clk, log)
}

func newService(repo jobStore, senders senderDirectory, queue enqueuer, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		senders: senders,
		queue:   queue,
		cfg:     cfg,
		clock:   clk,
		log:     log.With(logger.Scope("emails.svc")),
	}
}

// ScheduleOne validates and persists a single email job and enqueues it for
// its send time. When both delay and scheduledAt are given, delay wins.
func (s *Service) ScheduleOne(ctx context.Context, req *ScheduleRequest) (*ScheduleResponse, error) {
	if err := validateEmailFields(req.Recipient, req.Subject, req.Body); err != nil {
		return nil, err
	}

	senderEmail := req.Sender
	if senderEmail == "" {
		senderEmail = s.cfg.Email.FromEmail
	} else if !isValidEmail(senderEmail) {
		return nil, apperror.ErrValidation.WithMessage("sender must be a valid email address")
	}

	sender, err := s.senders.UpsertByEmail(ctx, senderEmail, "")
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sendTime := sendTimeFor(now, req.ScheduledAt, req.Delay)

	job, err := s.scheduleJob(ctx, sender.ID, req.Recipient, req.Subject, req.Body, now, sendTime)
	if err != nil {
		return nil, err
	}

	return &ScheduleResponse{
		Success:     true,
		JobID:       job.ID,
		ScheduledAt: job.ScheduledAt,
		Message:     "email scheduled",
	}, nil
}

// ScheduleBulk schedules one job per recipient with a fixed stagger:
// recipient i goes out at startTime + i * delayBetweenEmails.
func (s *Service) ScheduleBulk(ctx context.Context, req *BulkScheduleRequest) (*BulkScheduleResponse, error) {
	if len(req.Recipients) == 0 {
		return nil, apperror.ErrValidation.WithMessage("recipients must not be empty")
	}
	if len(req.Recipients) > maxBulkRecipients {
		return nil, apperror.ErrValidation.WithMessage("too many recipients in one request")
	}
	for _, recipient := range req.Recipients {
		if err := validateEmailFields(recipient, req.Subject, req.Body); err != nil {
			return nil, err
		}
	}

	senderEmail := req.Sender
	if senderEmail == "" {
		senderEmail = s.cfg.Email.FromEmail
	} else if !isValidEmail(senderEmail) {
		return nil, apperror.ErrValidation.WithMessage("sender must be a valid email address")
	}

	sender, err := s.senders.UpsertByEmail(ctx, senderEmail, "")
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	// A past start time is kept on the records; the queue dispatches the
	// overdue sends immediately
	start := now
	if req.StartTime != nil {
		start = *req.StartTime
	}

	stagger := time.Duration(s.cfg.Dispatch.DefaultBulkDelayMs) * time.Millisecond
	if req.DelayBetweenEmails != nil && *req.DelayBetweenEmails >= 0 {
		stagger = time.Duration(*req.DelayBetweenEmails) * time.Millisecond
	}

	jobIDs := make([]string, 0, len(req.Recipients))
	for i, recipient := range req.Recipients {
		sendTime := start.Add(time.Duration(i) * stagger)

		job, err := s.scheduleJob(ctx, sender.ID, recipient, req.Subject, req.Body, now, sendTime)
		if err != nil {
			// Persisted jobs stay scheduled; recovery re-queues anything
			// that is missing an entry
			s.log.Error("bulk schedule aborted",
				slog.Int("scheduled", len(jobIDs)),
				slog.Int("total", len(req.Recipients)),
				logger.Error(err))
			return nil, err
		}
		jobIDs = append(jobIDs, job.ID)
	}

	return &BulkScheduleResponse{
		Success:        true,
		TotalScheduled: len(jobIDs),
		JobIDs:         jobIDs,
		FirstSendAt:    start,
		LastSendAt:     start.Add(time.Duration(len(jobIDs)-1) * stagger),
		Message:        "emails scheduled",
	}, nil
}

// scheduleJob persists the job and enqueues it. If the queue insert fails the
// job record is kept; the recovery pass re-queues it.
func (s *Service) scheduleJob(ctx context.Context, senderID, recipient, subject, body string, now, sendTime time.Time) (*EmailJob, error) {
	job, err := s.repo.Create(ctx, &EmailJob{
		UserID:      senderID,
		Recipient:   recipient,
		Subject:     subject,
		Body:        body,
		ScheduledAt: sendTime,
	})
	if err != nil {
		return nil, err
	}

	delay := sendTime.Sub(now)
	if _, err := s.queue.Enqueue(ctx, job.ID, jobs.Payload{payloadKeyJobID: job.ID}, delay, 0); err != nil {
		s.log.Error("failed to enqueue email job",
			slog.String("job_id", job.ID),
			logger.Error(err))
		return nil, apperror.ErrQueueUnavailable.WithInternal(err)
	}

	s.log.Info("email scheduled",
		slog.String("job_id", job.ID),
		slog.String("recipient", recipient),
		slog.Time("send_at", sendTime))

	return job, nil
}

// ListScheduled returns pending jobs ordered by send time
func (s *Service) ListScheduled(ctx context.Context) (*ListResponse, error) {
	list, err := s.repo.ListByStatus(ctx, JobScheduled, false)
	if err != nil {
		return nil, err
	}
	return &ListResponse{Emails: list, Count: len(list)}, nil
}

// ListSent returns sent and failed jobs, most recently sent first
func (s *Service) ListSent(ctx context.Context) (*ListResponse, error) {
	list, err := s.repo.ListFinished(ctx)
	if err != nil {
		return nil, err
	}
	return &ListResponse{Emails: list, Count: len(list)}, nil
}

// ListAll returns every job, newest first
func (s *Service) ListAll(ctx context.Context) (*ListResponse, error) {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return &ListResponse{Emails: list, Count: len(list)}, nil
}

// sendTimeFor resolves the effective send time: delay beats scheduledAt. A
// given scheduledAt is preserved even when it lies in the past; the record
// keeps the requested time and the queue clamps the dispatch delay to zero.
func sendTimeFor(now time.Time, scheduledAt *time.Time, delayMs *int64) time.Time {
	switch {
	case delayMs != nil:
		d := *delayMs
		if d < 0 {
			d = 0
		}
		return now.Add(time.Duration(d) * time.Millisecond)
	case scheduledAt != nil:
		return *scheduledAt
	default:
		return now
	}
}

func validateEmailFields(recipient, subject, body string) error {
	if !isValidEmail(recipient) {
		return apperror.ErrValidation.WithMessage("recipient must be a valid email address")
	}
	if strings.TrimSpace(subject) == "" {
		return apperror.ErrValidation.WithMessage("subject must not be empty")
	}
	if strings.TrimSpace(body) == "" {
		return apperror.ErrValidation.WithMessage("body must not be empty")
	}
	return nil
}

func isValidEmail(address string) bool {
	if address == "" {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	return err == nil && parsed.Address == address
}
