package jobs

import (
	"time"

	"github.com/uptrace/bun"
)

// EntryStatus represents the state of a queue entry
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryProcessing EntryStatus = "processing"
	// EntryDead marks an entry whose transport-retry budget is exhausted.
	// Dead entries are retained for inspection.
	EntryDead EntryStatus = "dead"
)

// Payload is the opaque JSON payload carried by a queue entry
type Payload map[string]any

// Entry is a delayed queue entry. The job key equals the job record id for
// the initial enqueue and id-retry-<ns> for rate-limit deferrals, so at most
// one live entry exists per key.
type Entry struct {
	bun.BaseModel `bun:"table:outbox.queue_entries,alias:qe"`

	ID           string      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	JobKey       string      `bun:"job_key,notnull"`
	Payload      Payload     `bun:"payload,type:jsonb,notnull,default:'{}'"`
	Status       EntryStatus `bun:"status,notnull,default:'pending'"`
	ReadyAt      time.Time   `bun:"ready_at,notnull,default:now()"`
	AttemptCount int         `bun:"attempt_count,notnull,default:0"`
	RetryLimit   int         `bun:"retry_limit,notnull,default:3"`
	LastError    *string     `bun:"last_error"`
	StartedAt    *time.Time  `bun:"started_at"`
	CreatedAt    time.Time   `bun:"created_at,notnull,default:now()"`
	UpdatedAt    time.Time   `bun:"updated_at,notnull,default:now()"`
}
