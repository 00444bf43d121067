package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/notifications"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// JobStore is the scheduled job persistence surface the dispatcher needs.
// *db.JobRepository satisfies it.
type JobStore interface {
	SelectDue(ctx context.Context, limit int) ([]*types.ScheduledJob, error)
	Claim(ctx context.Context, id string) (*types.ScheduledJob, bool, error)
	MarkCompleted(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, at time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// EmailStore is the email queue persistence surface the dispatcher needs.
// *db.EmailQueueRepository satisfies it.
type EmailStore interface {
	SelectDue(ctx context.Context, limit int) ([]*types.EmailQueueItem, error)
	Claim(ctx context.Context, id string) (*types.EmailQueueItem, bool, error)
	MarkCompleted(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, at time.Time, errMsg string) error
	MarkFailedWithDeadLetter(ctx context.Context, item *types.EmailQueueItem, errMsg string) error
}

// EmailSender delivers a rendered notification. *notifications.Gateway
// satisfies it.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, templateName string, data map[string]any, referenceID string) notifications.SendResult
}

// DispatcherConfig carries the tunables for one dispatcher instance.
type DispatcherConfig struct {
	Jobs     JobStore
	Emails   EmailStore
	Registry *Registry
	Sender   EmailSender
	Logger   *slog.Logger

	// EmailBatchSize and JobBatchSize bound how many due items a single
	// cycle picks up from each queue.
	EmailBatchSize int
	JobBatchSize   int
	// Concurrency bounds how many items are worked at once across both
	// queues within a cycle.
	Concurrency int

	JobPolicy   RetryPolicy
	EmailPolicy RetryPolicy

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// Dispatcher drains due email queue items and scheduled jobs for one cycle.
// It holds no loop of its own; callers invoke RunCycle per trigger (HTTP
// request or scheduled event).
type Dispatcher struct {
	jobs        JobStore
	emails      EmailStore
	registry    *Registry
	sender      EmailSender
	logger      *slog.Logger
	emailBatch  int
	jobBatch    int
	concurrency int
	jobPolicy   RetryPolicy
	emailPolicy RetryPolicy
	now         func() time.Time
}

// NewDispatcher builds a Dispatcher, filling unset tunables with defaults.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.EmailBatchSize <= 0 {
		cfg.EmailBatchSize = 20
	}
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.JobPolicy == (RetryPolicy{}) {
		cfg.JobPolicy = JobRetryPolicy
	}
	if cfg.EmailPolicy == (RetryPolicy{}) {
		cfg.EmailPolicy = EmailRetryPolicy
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		jobs:        cfg.Jobs,
		emails:      cfg.Emails,
		registry:    cfg.Registry,
		sender:      cfg.Sender,
		logger:      cfg.Logger,
		emailBatch:  cfg.EmailBatchSize,
		jobBatch:    cfg.JobBatchSize,
		concurrency: cfg.Concurrency,
		jobPolicy:   cfg.JobPolicy,
		emailPolicy: cfg.EmailPolicy,
		now:         cfg.Now,
	}
}

// cycleState accumulates per-item outcomes behind a mutex; worker goroutines
// report into it as they finish.
type cycleState struct {
	mu     sync.Mutex
	report types.CycleReport
}

func (s *cycleState) recordEmail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.EmailsProcessed++
}

func (s *cycleState) recordJob(outcome types.JobOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Processed++
	if outcome.Result == jobResultCompleted {
		s.report.Successful++
		s.report.Details.Successful = append(s.report.Details.Successful, outcome)
	} else {
		s.report.Failed++
		s.report.Details.Failed = append(s.report.Details.Failed, outcome)
	}
}

const (
	jobResultCompleted      = "completed"
	jobResultRetryScheduled = "retry_scheduled"
	jobResultFailed         = "failed"
)

// RunCycle performs one dispatch pass: select due email queue items and
// scheduled jobs, claim each, and process claimed items in parallel. A
// non-nil error means the cycle could not start (the due-item queries
// failed); per-item failures are absorbed into the report instead.
func (d *Dispatcher) RunCycle(ctx context.Context) (*types.CycleReport, error) {
	dueEmails, err := d.emails.SelectDue(ctx, d.emailBatch)
	if err != nil {
		return nil, fmt.Errorf("select due emails: %w", err)
	}
	dueJobs, err := d.jobs.SelectDue(ctx, d.jobBatch)
	if err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}

	state := &cycleState{}
	state.report.Success = true
	state.report.Details.Successful = []types.JobOutcome{}
	state.report.Details.Failed = []types.JobOutcome{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, item := range dueEmails {
		item := item
		g.Go(func() error {
			d.processEmail(gctx, item, state)
			return nil
		})
	}
	for _, job := range dueJobs {
		job := job
		g.Go(func() error {
			d.processJob(gctx, job, state)
			return nil
		})
	}
	// Workers never return errors; Wait only serves as the join point.
	_ = g.Wait()

	state.report.Timestamp = d.now().UTC()
	d.logger.InfoContext(ctx, "dispatch cycle finished",
		slog.Int("jobs_processed", state.report.Processed),
		slog.Int("jobs_successful", state.report.Successful),
		slog.Int("jobs_failed", state.report.Failed),
		slog.Int("emails_processed", state.report.EmailsProcessed))
	return &state.report, nil
}

// processEmail claims one due email queue item and attempts delivery. The
// claim re-checks pending status so concurrent cycles never double-send.
func (d *Dispatcher) processEmail(ctx context.Context, due *types.EmailQueueItem, state *cycleState) {
	item, ok, err := d.emails.Claim(ctx, due.ID)
	if err != nil {
		d.logger.ErrorContext(ctx, "email claim failed",
			slog.String("email_id", due.ID), slog.Any("error", err))
		return
	}
	if !ok {
		// Another worker got there first.
		return
	}
	state.recordEmail()

	result := d.sender.Send(ctx, item.Recipient, item.Subject, item.Template,
		item.TemplateData, "email:"+item.ID)
	if result.Success {
		if err := d.emails.MarkCompleted(ctx, item.ID); err != nil {
			d.logger.ErrorContext(ctx, "email completion update failed",
				slog.String("email_id", item.ID), slog.Any("error", err))
		}
		return
	}

	decision := Decide(d.emailPolicy, item.Attempts, item.MaxAttempts)
	if decision.Action == ActionRetry {
		at := d.now().Add(decision.Delay)
		if err := d.emails.Reschedule(ctx, item.ID, at, result.Error); err != nil {
			d.logger.ErrorContext(ctx, "email reschedule failed",
				slog.String("email_id", item.ID), slog.Any("error", err))
		}
		d.logger.WarnContext(ctx, "email send failed, retry scheduled",
			slog.String("email_id", item.ID),
			slog.Int("attempts", item.Attempts),
			slog.Time("next_attempt_at", at),
			slog.String("send_error", result.Error))
		return
	}

	if err := d.emails.MarkFailedWithDeadLetter(ctx, item, result.Error); err != nil {
		d.logger.ErrorContext(ctx, "email dead-letter update failed",
			slog.String("email_id", item.ID), slog.Any("error", err))
		return
	}
	d.logger.ErrorContext(ctx, "email retries exhausted, dead-lettered",
		slog.String("email_id", item.ID),
		slog.Int("attempts", item.Attempts),
		slog.String("send_error", result.Error))
}

// processJob claims one due scheduled job and runs its handler. Permanent
// handler errors fail the job immediately; retryable ones go through the
// backoff policy until attempts are exhausted.
func (d *Dispatcher) processJob(ctx context.Context, due *types.ScheduledJob, state *cycleState) {
	job, ok, err := d.jobs.Claim(ctx, due.ID)
	if err != nil {
		d.logger.ErrorContext(ctx, "job claim failed",
			slog.String("job_id", due.ID), slog.Any("error", err))
		return
	}
	if !ok {
		return
	}

	outcome := types.JobOutcome{ID: job.ID, Type: job.Type, Attempts: job.Attempts}

	res, execErr := d.registry.Execute(ctx, job)
	if execErr == nil {
		if err := d.jobs.MarkCompleted(ctx, job.ID); err != nil {
			d.logger.ErrorContext(ctx, "job completion update failed",
				slog.String("job_id", job.ID), slog.Any("error", err))
		}
		outcome.Result = jobResultCompleted
		msg := ""
		if res != nil {
			msg = res.Message
		}
		d.logger.InfoContext(ctx, "job completed",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Int("attempts", job.Attempts),
			slog.String("result", msg))
		state.recordJob(outcome)
		return
	}

	outcome.Error = execErr.Error()
	if isRetryable(execErr) {
		decision := Decide(d.jobPolicy, job.Attempts, job.MaxAttempts)
		if decision.Action == ActionRetry {
			at := d.now().Add(decision.Delay)
			if err := d.jobs.Reschedule(ctx, job.ID, at, execErr.Error()); err != nil {
				d.logger.ErrorContext(ctx, "job reschedule failed",
					slog.String("job_id", job.ID), slog.Any("error", err))
			}
			outcome.Result = jobResultRetryScheduled
			d.logger.WarnContext(ctx, "job failed, retry scheduled",
				slog.String("job_id", job.ID),
				slog.String("job_type", string(job.Type)),
				slog.Int("attempts", job.Attempts),
				slog.Time("next_attempt_at", at),
				slog.Any("error", execErr))
			state.recordJob(outcome)
			return
		}
	}

	if err := d.jobs.MarkFailed(ctx, job.ID, execErr.Error()); err != nil {
		d.logger.ErrorContext(ctx, "job failure update failed",
			slog.String("job_id", job.ID), slog.Any("error", err))
	}
	outcome.Result = jobResultFailed
	d.logger.ErrorContext(ctx, "job failed permanently",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", execErr))
	state.recordJob(outcome)
}
