package emails

import "time"

// ScheduleRequest is the request DTO for scheduling a single email
type ScheduleRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	// ScheduledAt is an RFC3339 send time; defaults to now
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	// Delay is an offset in milliseconds from now. When both Delay and
	// ScheduledAt are present, Delay wins.
	Delay *int64 `json:"delay,omitempty"`
	// Sender is the sender address the job is attributed to; defaults to
	// the configured from address
	Sender string `json:"sender,omitempty"`
}

// ScheduleResponse is the response DTO for a scheduled email
type ScheduleResponse struct {
	Success     bool      `json:"success"`
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Message     string    `json:"message"`
}

// BulkScheduleRequest is the request DTO for scheduling a staggered batch
type BulkScheduleRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	// StartTime is when the first email goes out; defaults to now
	StartTime *time.Time `json:"startTime,omitempty"`
	// DelayBetweenEmails is the stagger in milliseconds between consecutive
	// recipients
	DelayBetweenEmails *int64 `json:"delayBetweenEmails,omitempty"`
	// HourlyLimit is accepted for API compatibility; the hourly caps are
	// enforced from configuration at dispatch time
	HourlyLimit *int   `json:"hourlyLimit,omitempty"`
	Sender      string `json:"sender,omitempty"`
}

// BulkScheduleResponse is the response DTO for a scheduled batch
type BulkScheduleResponse struct {
	Success        bool      `json:"success"`
	TotalScheduled int       `json:"totalScheduled"`
	JobIDs         []string  `json:"jobIds"`
	FirstSendAt    time.Time `json:"firstSendAt"`
	LastSendAt     time.Time `json:"lastSendAt"`
	Message        string    `json:"message"`
}

// ListResponse is the response DTO for job listings
type ListResponse struct {
	Emails []EmailJob `json:"emails"`
	Count  int        `json:"count"`
}
