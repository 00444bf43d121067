// Package types defines the shared domain model for the daiyet dispatch
// worker: scheduled jobs, the durable email queue, dead-letter records, and
// the read-only booking entities the job handlers consume. It also carries
// the application error taxonomy and context helpers used across layers.
package types

import (
	"encoding/json"
	"time"
)

// ScheduledJob is a unit of deferred work created by the booking workflow
// (meeting reminders, post-session feedback requests) and executed by the
// dispatcher. The engine never deletes jobs; terminal outcomes are recorded
// in place for audit.
type ScheduledJob struct {
	ID           string          `json:"id"`
	Type         JobType         `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       WorkStatus      `json:"status"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	// LastAttemptAt is zero until the first claim.
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	// Error holds the most recent execution error, empty on success.
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailQueueItem is a pending outbound notification. Unlike the best-effort
// sends performed inside job handlers, queue items carry a delivery guarantee:
// they are retried with backoff and dead-lettered on exhaustion.
type EmailQueueItem struct {
	ID           string         `json:"id"`
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject"`
	Template     string         `json:"template"`
	TemplateData map[string]any `json:"template_data,omitempty"`
	Status       WorkStatus     `json:"status"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
}

// DeadLetterEntry is the immutable record of a permanently failed email queue
// item. Entries are append-only: never mutated, never re-enqueued. The
// original queue item is kept alongside (status "failed") for audit.
type DeadLetterEntry struct {
	ID           string         `json:"id"`
	OriginalID   string         `json:"original_id"`
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject"`
	Template     string         `json:"template"`
	TemplateData map[string]any `json:"template_data,omitempty"`
	Error        string         `json:"error"`
	Attempts     int            `json:"attempts"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Booking is a consultation session between a client and a dietitian, owned
// by the booking workflow. The repository hydrates both parties' contact
// fields via a join so handlers need a single lookup.
type Booking struct {
	ID              string        `json:"id"`
	ClientID        string        `json:"client_id"`
	DietitianID     string        `json:"dietitian_id"`
	StartsAt        time.Time     `json:"starts_at"`
	DurationMinutes int           `json:"duration_minutes"`
	MeetingURL      string        `json:"meeting_url,omitempty"`
	Status          BookingStatus `json:"status"`

	// Hydrated from the users table.
	ClientEmail    string `json:"client_email,omitempty"`
	ClientName     string `json:"client_name,omitempty"`
	DietitianEmail string `json:"dietitian_email,omitempty"`
	DietitianName  string `json:"dietitian_name,omitempty"`
}

// User is a platform account referenced by bookings.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// JobOutcome is the per-job detail included in a CycleReport.
type JobOutcome struct {
	ID       string  `json:"id"`
	Type     JobType `json:"type"`
	Attempts int     `json:"attempts"`
	// Result is "completed", "retry_scheduled", or "failed".
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// CycleDetails groups per-job outcomes by success.
type CycleDetails struct {
	Successful []JobOutcome `json:"successful"`
	Failed     []JobOutcome `json:"failed"`
}

// CycleReport is the aggregate result of one dispatcher invocation, returned
// as the POST /run response body. Processed/Successful/Failed count jobs;
// EmailsProcessed counts attempted email queue items.
type CycleReport struct {
	Success         bool         `json:"success"`
	Processed       int          `json:"processed"`
	Successful      int          `json:"successful"`
	Failed          int          `json:"failed"`
	EmailsProcessed int          `json:"emailsProcessed"`
	Details         CycleDetails `json:"details"`
	Timestamp       time.Time    `json:"timestamp"`
}

// SenderIdentity is the From address attached to outbound email.
type SenderIdentity struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// SendInput is the provider-agnostic email send request handed to an
// EmailProvider implementation.
type SendInput struct {
	To       string
	From     SenderIdentity
	Subject  string
	BodyText string
	// ReferenceID correlates the provider send with the originating queue
	// item or job for bounce/audit tracing.
	ReferenceID string
}
