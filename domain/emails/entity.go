package emails

import (
	"time"

	"github.com/uptrace/bun"
)

// JobStatus represents the lifecycle state of an email job
type JobStatus string

const (
	// JobScheduled means the job is waiting for its send time
	JobScheduled JobStatus = "SCHEDULED"
	// JobProcessing means a worker slot has claimed the job
	JobProcessing JobStatus = "PROCESSING"
	// JobSent means the transport accepted the email
	JobSent JobStatus = "SENT"
	// JobFailed means the transport-retry budget is exhausted
	JobFailed JobStatus = "FAILED"
)

// EmailJob is the persistent record of a scheduled email. The job record is
// the source of truth for status; queue entries only carry the job id.
type EmailJob struct {
	bun.BaseModel `bun:"table:outbox.email_jobs,alias:ej"`

	ID          string     `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID      string     `bun:"user_id,type:uuid,notnull" json:"senderId"`
	Recipient   string     `bun:"recipient,notnull" json:"recipient"`
	Subject     string     `bun:"subject,notnull" json:"subject"`
	Body        string     `bun:"body,notnull" json:"body"`
	Status      JobStatus  `bun:"status,notnull,default:'SCHEDULED'" json:"status"`
	ScheduledAt time.Time  `bun:"scheduled_at,notnull" json:"scheduledAt"`
	SentAt      *time.Time `bun:"sent_at" json:"sentAt,omitempty"`
	FailedAt    *time.Time `bun:"failed_at" json:"failedAt,omitempty"`
	MessageID   *string    `bun:"message_id" json:"messageId,omitempty"`
	LastError   *string    `bun:"last_error" json:"lastError,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:now()" json:"-"`
}
