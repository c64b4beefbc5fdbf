package emails

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/outbox-sh/outbox/domain/ratelimit"
	"github.com/outbox-sh/outbox/internal/config"
	"github.com/outbox-sh/outbox/internal/jobs"
	"github.com/outbox-sh/outbox/pkg/clock"
	"github.com/outbox-sh/outbox/pkg/logger"
)

// dispatchStore is the slice of the repository the dispatcher needs
type dispatchStore interface {
	GetByID(ctx context.Context, id string) (*EmailJob, error)
	SetProcessing(ctx context.Context, id string) error
	SetSent(ctx context.Context, id, messageID string) error
	SetFailed(ctx context.Context, id, errMsg string) error
}

// rateChecker is the slice of the rate limiter the dispatcher needs
type rateChecker interface {
	Check(ctx context.Context, senderID string) (*ratelimit.Decision, error)
	Increment(ctx context.Context, senderID string) error
}

// Dispatcher sends one email job per queue entry. It runs inside a worker
// slot; returning nil acknowledges the entry, returning an error hands it to
// the queue's backoff machinery.
type Dispatcher struct {
	store    dispatchStore
	limiter  rateChecker
	queue    enqueuer
	sender   Sender
	cfg      *config.Config
	clock    clock.Clock
	log      *slog.Logger
	minDelay time.Duration
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(repo *Repository, limiter *ratelimit.Limiter, queue *jobs.Queue, sender Sender, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Dispatcher {
	return newDispatcher(repo, limiter, queue, sender, cfg, clk, log)
}

func newDispatcher(store dispatchStore, limiter rateChecker, queue enqueuer, sender Sender, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		limiter:  limiter,
		queue:    queue,
		sender:   sender,
		cfg:      cfg,
		clock:    clk,
		log:      log.With(logger.Scope("emails.dispatch")),
		minDelay: cfg.Dispatch.MinDelayBetweenEmails(),
	}
}

// Process runs the dispatch pipeline for one claimed entry:
//
//  1. load the job; a missing or already-sent job acknowledges the entry
//  2. check the sender's rate budget; on exhaustion, re-queue under a fresh
//     key for the next window and acknowledge the current entry
//  3. mark the job processing, hold the slot for the inter-send gap, send
//  4. record SENT and consume quota, or record FAILED and return the error
//     so the queue retries with backoff
func (d *Dispatcher) Process(ctx context.Context, entry *jobs.Entry) error {
	jobID, ok := entry.Payload[payloadKeyJobID].(string)
	if !ok || jobID == "" {
		// Malformed payload; nothing to retry
		d.log.Error("entry payload missing job id", slog.String("job_key", entry.JobKey))
		return nil
	}

	log := d.log.With(slog.String("job_id", jobID))

	job, err := d.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		log.Warn("email job not found, dropping entry")
		return nil
	}
	if job.Status == JobSent {
		// A crash between send and ack can leave a duplicate entry behind;
		// the status gate keeps the send exactly-once
		log.Debug("email job already sent, dropping entry")
		return nil
	}
	if job.Status == JobFailed {
		log.Info("retrying previously failed email",
			slog.Int("attempt", entry.AttemptCount+1))
	}

	decision, err := d.limiter.Check(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("rate check: %w", err)
	}
	if !decision.Allowed {
		return d.deferJob(ctx, log, job, decision)
	}

	if err := d.store.SetProcessing(ctx, jobID); err != nil {
		return err
	}

	// The inter-send gap is served inside the slot, so a pool of N workers
	// caps throughput at N sends per gap
	if err := d.clock.Sleep(ctx, d.minDelay); err != nil {
		return err
	}

	result, err := d.sender.Send(ctx, SendOptions{
		To:       job.Recipient,
		From:     d.cfg.Email.FromEmail,
		FromName: d.cfg.Email.FromName,
		Subject:  job.Subject,
		Body:     job.Body,
	})
	if err != nil {
		if markErr := d.store.SetFailed(ctx, jobID, err.Error()); markErr != nil {
			log.Error("failed to record send failure", logger.Error(markErr))
		}
		return fmt.Errorf("send email: %w", err)
	}

	if err := d.store.SetSent(ctx, jobID, result.MessageID); err != nil {
		// The email went out; surfacing an error here would resend it.
		// The sent status is reconciled by the idempotency gate next run.
		log.Error("failed to record sent status", logger.Error(err))
	}

	if err := d.limiter.Increment(ctx, job.UserID); err != nil {
		log.Warn("failed to record rate usage", logger.Error(err))
	}

	log.Info("email dispatched",
		slog.String("recipient", job.Recipient),
		slog.String("message_id", result.MessageID))

	return nil
}

// deferJob re-queues a rate-limited job for the next window under a fresh key
// and acknowledges the current entry. The fresh key keeps the enqueue from
// colliding with the entry being processed.
func (d *Dispatcher) deferJob(ctx context.Context, log *slog.Logger, job *EmailJob, decision *ratelimit.Decision) error {
	retryKey := fmt.Sprintf("%s-retry-%d", job.ID, d.clock.Now().UnixNano())

	_, err := d.queue.Enqueue(ctx, retryKey, jobs.Payload{payloadKeyJobID: job.ID}, decision.RetryAfter, 0)
	if err != nil {
		// Keep the current entry alive; the queue retries it with backoff
		return fmt.Errorf("defer rate-limited job: %w", err)
	}

	log.Info("email deferred by rate limit",
		slog.String("scope", string(decision.Scope)),
		slog.Duration("retry_after", decision.RetryAfter))

	return nil
}
