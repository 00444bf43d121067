package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// Typed job payloads. Each job type's payload is decoded and validated at
// the dispatch boundary, before its handler runs, so malformed records fail
// fast as non-retryable errors instead of surfacing deep inside a handler.

// MeetingReminderPayload is the payload for meeting_reminder jobs.
type MeetingReminderPayload struct {
	BookingID string `json:"booking_id" validate:"required"`
	// ReminderMinutes is how far ahead of the session start this reminder
	// was scheduled; used only for template copy.
	ReminderMinutes int `json:"reminder_minutes" validate:"omitempty,min=0"`
}

// PostSessionFeedbackPayload is the payload for post_session_feedback jobs.
type PostSessionFeedbackPayload struct {
	BookingID string `json:"booking_id" validate:"required"`
}

// TestPayload is the payload for test jobs, which exercise the dispatch and
// retry machinery without side effects.
type TestPayload struct {
	DelayMs int `json:"delay_ms" validate:"omitempty,min=0,max=60000"`
	// Fail forces the handler to return a retryable error, driving the job
	// through the full backoff-and-exhaust path.
	Fail bool `json:"fail"`
}

// payloadValidator validates decoded payload structs.
var payloadValidator = validator.New()

// decodePayload unmarshals raw JSON into dst and runs struct validation.
// Any failure is wrapped as a non-retryable validation error.
func decodePayload(jobType types.JobType, raw json.RawMessage, dst any) error {
	// A missing payload decodes as an empty object; required-field
	// validation below decides whether that is acceptable for the type.
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return types.NewAppError(types.ErrCodeValidationPayload,
			fmt.Sprintf("%s payload is not valid JSON", jobType), err)
	}

	if err := payloadValidator.Struct(dst); err != nil {
		return types.NewAppError(types.ErrCodeValidationPayload,
			fmt.Sprintf("%s payload failed validation", jobType), err)
	}

	return nil
}
