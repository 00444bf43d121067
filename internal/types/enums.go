package types

// JobType is the tag identifying which handler executes a scheduled job.
type JobType string

const (
	JobMeetingReminder     JobType = "meeting_reminder"
	JobPostSessionFeedback JobType = "post_session_feedback"
	JobTest                JobType = "test"
)

// WorkStatus is the lifecycle state shared by scheduled jobs and email queue
// items. Only the dispatcher transitions an item out of "pending"; "completed"
// and "failed" are terminal.
type WorkStatus string

const (
	StatusPending    WorkStatus = "pending"
	StatusProcessing WorkStatus = "processing"
	StatusCompleted  WorkStatus = "completed"
	StatusFailed     WorkStatus = "failed"
)

// UserRole identifies the two parties of a consultation.
type UserRole string

const (
	RoleClient    UserRole = "client"
	RoleDietitian UserRole = "dietitian"
)

// BookingStatus represents the lifecycle state of a consultation booking,
// owned by the booking workflow. The engine only reads it.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)
