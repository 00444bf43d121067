package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/notifications"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// HandlerResult is the structured outcome of a successful job execution.
type HandlerResult struct {
	Message string
	// NotificationsSent counts the best-effort sends that succeeded.
	NotificationsSent int
}

// HandlerError wraps a job execution failure with a retryability class.
// The dispatcher retries retryable errors under the backoff policy and
// fails the job immediately on non-retryable ones.
type HandlerError struct {
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// retryable wraps err as a HandlerError the dispatcher may retry.
func retryable(err error) *HandlerError {
	return &HandlerError{Retryable: true, Err: err}
}

// permanent wraps err as a HandlerError that fails the job immediately.
func permanent(err error) *HandlerError {
	return &HandlerError{Retryable: false, Err: err}
}

// isRetryable reports whether err allows another execution attempt. Errors
// that are not HandlerError default to retryable; only an explicit permanent
// classification short-circuits the backoff policy.
func isRetryable(err error) bool {
	var hErr *HandlerError
	if errors.As(err, &hErr) {
		return hErr.Retryable
	}
	return true
}

// JobHandler executes one job type. Handlers read collaborator records
// through the booking repository and write only through the notification
// gateway.
type JobHandler interface {
	// Type returns the job type tag this handler serves.
	Type() types.JobType
	// Execute performs the job's side effects and returns a structured
	// result, or a *HandlerError classifying the failure.
	Execute(ctx context.Context, job *types.ScheduledJob) (*HandlerResult, error)
}

// BookingReader abstracts the booking lookups handlers need. Satisfied by
// *db.BookingRepository.
type BookingReader interface {
	GetByID(ctx context.Context, id string) (*types.Booking, error)
}

// NotificationSender abstracts the notification gateway for handler tests.
type NotificationSender interface {
	Send(ctx context.Context, recipient, subject, templateName string, data map[string]any, referenceID string) notifications.SendResult
}

// Registry maps job type tags to their handlers. Adding a job type means
// implementing JobHandler and listing it in the registry; the dispatcher
// never changes.
type Registry struct {
	handlers map[types.JobType]JobHandler
}

// NewRegistry builds a Registry from the given handlers. Duplicate types
// panic: that is a wiring bug, not a runtime condition.
func NewRegistry(handlers ...JobHandler) *Registry {
	m := make(map[types.JobType]JobHandler, len(handlers))
	for _, h := range handlers {
		if _, dup := m[h.Type()]; dup {
			panic(fmt.Sprintf("scheduler: duplicate handler for job type %q", h.Type()))
		}
		m[h.Type()] = h
	}
	return &Registry{handlers: m}
}

// Execute dispatches the job to its handler. An unknown job type is a
// non-retryable failure.
func (r *Registry) Execute(ctx context.Context, job *types.ScheduledJob) (*HandlerResult, error) {
	h, ok := r.handlers[job.Type]
	if !ok {
		return nil, permanent(types.NewAppError(types.ErrCodeUnknownJobType,
			fmt.Sprintf("no handler registered for job type %q", job.Type), nil))
	}
	return h.Execute(ctx, job)
}

// classifyLookupError maps a booking lookup failure to a HandlerError.
//
// Both "booking not found" and datastore errors are classified retryable:
// bookings are soft-deleted by the collaborator app and a lagging read
// replica can briefly miss a row that exists, so absence at handler time is
// not proof the booking is gone. A genuinely deleted booking converges to
// 'failed' through attempt exhaustion. Centralized here so the
// classification can change without touching handlers.
func classifyLookupError(err error) *HandlerError {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundBooking {
		return retryable(fmt.Errorf("booking lookup: %w", err))
	}
	return retryable(fmt.Errorf("booking lookup failed: %w", err))
}

// ---------------------------------------------------------------------------
// meeting_reminder
// ---------------------------------------------------------------------------

// MeetingReminderHandler notifies both parties of an upcoming consultation.
// Sends are best-effort: a failure to reach one party is logged and does not
// fail the other send or the job. The job succeeds once the booking lookup
// succeeds.
type MeetingReminderHandler struct {
	bookings BookingReader
	gateway  NotificationSender
	logger   *slog.Logger
}

// NewMeetingReminderHandler creates a MeetingReminderHandler.
func NewMeetingReminderHandler(bookings BookingReader, gateway NotificationSender, logger *slog.Logger) *MeetingReminderHandler {
	return &MeetingReminderHandler{bookings: bookings, gateway: gateway, logger: logger}
}

// Type implements JobHandler.
func (h *MeetingReminderHandler) Type() types.JobType {
	return types.JobMeetingReminder
}

// Execute implements JobHandler.
func (h *MeetingReminderHandler) Execute(ctx context.Context, job *types.ScheduledJob) (*HandlerResult, error) {
	var payload MeetingReminderPayload
	if err := decodePayload(job.Type, job.Payload, &payload); err != nil {
		return nil, permanent(err)
	}

	booking, err := h.bookings.GetByID(ctx, payload.BookingID)
	if err != nil {
		return nil, classifyLookupError(err)
	}

	minutesUntil := payload.ReminderMinutes
	if minutesUntil == 0 {
		minutesUntil = int(time.Until(booking.StartsAt).Round(time.Minute) / time.Minute)
		if minutesUntil < 0 {
			minutesUntil = 0
		}
	}

	startsAt := booking.StartsAt.UTC().Format("Mon, 2 Jan 2006 15:04 MST")
	base := map[string]any{
		"client_name":    booking.ClientName,
		"dietitian_name": booking.DietitianName,
		"starts_at":      startsAt,
		"minutes_until":  strconv.Itoa(minutesUntil),
		"meeting_url":    booking.MeetingURL,
	}

	subject := fmt.Sprintf("Reminder: your consultation starts in %d minutes", minutesUntil)
	refID := "job:" + job.ID

	sent := 0
	clientRes := h.gateway.Send(ctx, booking.ClientEmail, subject,
		notifications.TemplateMeetingReminderClient, base, refID)
	if clientRes.Success {
		sent++
	} else {
		h.logger.WarnContext(ctx, "meeting reminder send to client failed",
			"job_id", job.ID,
			"booking_id", booking.ID,
			"error", clientRes.Error,
		)
	}

	dietitianRes := h.gateway.Send(ctx, booking.DietitianEmail, subject,
		notifications.TemplateMeetingReminderDietitian, base, refID)
	if dietitianRes.Success {
		sent++
	} else {
		h.logger.WarnContext(ctx, "meeting reminder send to dietitian failed",
			"job_id", job.ID,
			"booking_id", booking.ID,
			"error", dietitianRes.Error,
		)
	}

	return &HandlerResult{
		Message:           fmt.Sprintf("reminder processed for booking %s", booking.ID),
		NotificationsSent: sent,
	}, nil
}

// ---------------------------------------------------------------------------
// post_session_feedback
// ---------------------------------------------------------------------------

// PostSessionFeedbackHandler asks the client for feedback after a completed
// session. One best-effort send.
type PostSessionFeedbackHandler struct {
	bookings    BookingReader
	gateway     NotificationSender
	siteBaseURL string
	logger      *slog.Logger
}

// NewPostSessionFeedbackHandler creates a PostSessionFeedbackHandler.
// siteBaseURL is the public site origin used to build the feedback link.
func NewPostSessionFeedbackHandler(bookings BookingReader, gateway NotificationSender, siteBaseURL string, logger *slog.Logger) *PostSessionFeedbackHandler {
	return &PostSessionFeedbackHandler{
		bookings:    bookings,
		gateway:     gateway,
		siteBaseURL: siteBaseURL,
		logger:      logger,
	}
}

// Type implements JobHandler.
func (h *PostSessionFeedbackHandler) Type() types.JobType {
	return types.JobPostSessionFeedback
}

// Execute implements JobHandler.
func (h *PostSessionFeedbackHandler) Execute(ctx context.Context, job *types.ScheduledJob) (*HandlerResult, error) {
	var payload PostSessionFeedbackPayload
	if err := decodePayload(job.Type, job.Payload, &payload); err != nil {
		return nil, permanent(err)
	}

	booking, err := h.bookings.GetByID(ctx, payload.BookingID)
	if err != nil {
		return nil, classifyLookupError(err)
	}

	data := map[string]any{
		"client_name":    booking.ClientName,
		"dietitian_name": booking.DietitianName,
		"feedback_url":   fmt.Sprintf("%s/feedback/%s", h.siteBaseURL, booking.ID),
	}

	sent := 0
	res := h.gateway.Send(ctx, booking.ClientEmail,
		"How was your session with "+booking.DietitianName+"?",
		notifications.TemplatePostSessionFeedback, data, "job:"+job.ID)
	if res.Success {
		sent++
	} else {
		h.logger.WarnContext(ctx, "feedback request send failed",
			"job_id", job.ID,
			"booking_id", booking.ID,
			"error", res.Error,
		)
	}

	return &HandlerResult{
		Message:           fmt.Sprintf("feedback request processed for booking %s", booking.ID),
		NotificationsSent: sent,
	}, nil
}

// ---------------------------------------------------------------------------
// test
// ---------------------------------------------------------------------------

// TestHandler validates the dispatch and retry machinery. It performs no
// side effects beyond an optional artificial delay and can force a retryable
// failure.
type TestHandler struct{}

// NewTestHandler creates a TestHandler.
func NewTestHandler() *TestHandler {
	return &TestHandler{}
}

// Type implements JobHandler.
func (h *TestHandler) Type() types.JobType {
	return types.JobTest
}

// Execute implements JobHandler.
func (h *TestHandler) Execute(ctx context.Context, job *types.ScheduledJob) (*HandlerResult, error) {
	var payload TestPayload
	if err := decodePayload(job.Type, job.Payload, &payload); err != nil {
		return nil, permanent(err)
	}

	if payload.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(payload.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, retryable(ctx.Err())
		}
	}

	if payload.Fail {
		return nil, retryable(errors.New("test job forced failure"))
	}

	return &HandlerResult{Message: "test job completed"}, nil
}
