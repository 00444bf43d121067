package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// JobRepository provides data access for the scheduled_jobs table.
//
// The lifecycle is a strict state machine driven by conditional single-row
// updates: pending -> processing (Claim), processing -> completed
// (MarkCompleted), processing -> pending (Reschedule, with a later
// scheduled_for), processing -> failed (MarkFailed, terminal). Every
// transition guards on the current status so overlapping worker invocations
// cannot double-process a row.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, type, payload, status, scheduled_for, attempts,
	max_attempts, last_attempt_at, error, created_at, updated_at`

// SelectDue returns up to limit jobs that are eligible for execution:
// status 'pending' and scheduled_for at or before now. Oldest-due first so
// retried jobs do not starve behind a burst of new ones.
//
// This is a plain read; callers must Claim each job before processing it.
func (r *JobRepository) SelectDue(ctx context.Context, limit int) ([]*types.ScheduledJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM scheduled_jobs
		 WHERE status = 'pending' AND scheduled_for <= NOW()
		 ORDER BY scheduled_for ASC, created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to select due jobs", err)
	}
	defer rows.Close()

	var jobs []*types.ScheduledJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job row", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job rows", err)
	}

	return jobs, nil
}

// Claim atomically transitions a job from 'pending' to 'processing' and
// increments its attempt counter. Returns (job, true) when the claim
// succeeded and (nil, false) when the row was no longer pending, meaning a
// concurrent invocation claimed it first and the caller must skip it.
//
// Incrementing attempts here, rather than at the terminal update, guarantees
// the counter reflects every execution attempt exactly once even if the
// worker dies mid-handler.
func (r *JobRepository) Claim(ctx context.Context, id string) (*types.ScheduledJob, bool, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE scheduled_jobs SET
			status = 'processing',
			attempts = attempts + 1,
			last_attempt_at = NOW(),
			updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+jobColumns,
		id,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim job", err)
	}

	return job, true, nil
}

// MarkCompleted transitions a claimed job to the terminal 'completed' state
// and clears any error from a previous attempt.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_jobs SET
			status = 'completed',
			error = NULL,
			updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job completed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not in processing state", nil)
	}
	return nil
}

// Reschedule returns a claimed job to 'pending' with a new eligibility time
// and records the error that caused the retry. The new scheduled_for is
// always in the future relative to the attempt, so a job's scheduled_for is
// monotonically non-decreasing across its retry history.
func (r *JobRepository) Reschedule(ctx context.Context, id string, at time.Time, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_jobs SET
			status = 'pending',
			scheduled_for = $2,
			error = $3,
			updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id,
		at,
		nilIfEmpty(errMsg),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reschedule job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not in processing state", nil)
	}
	return nil
}

// MarkFailed transitions a claimed job to the terminal 'failed' state with
// its final error. Failed jobs are never re-selected and never deleted.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_jobs SET
			status = 'failed',
			error = $2,
			updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id,
		nilIfEmpty(errMsg),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not in processing state", nil)
	}
	return nil
}

// scanJob scans a scheduled_jobs row from a pgx.Row or pgx.Rows. Handles
// nullable columns using pointer types.
func scanJob(row pgx.Row) (*types.ScheduledJob, error) {
	var (
		j             types.ScheduledJob
		jobType       string
		status        string
		payload       []byte
		lastAttemptAt *time.Time
		errMsg        *string
	)

	err := row.Scan(
		&j.ID,
		&jobType,
		&payload,
		&status,
		&j.ScheduledFor,
		&j.Attempts,
		&j.MaxAttempts,
		&lastAttemptAt,
		&errMsg,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = types.JobType(jobType)
	j.Status = types.WorkStatus(status)
	j.Payload = payload
	if lastAttemptAt != nil {
		j.LastAttemptAt = *lastAttemptAt
	}
	if errMsg != nil {
		j.Error = *errMsg
	}

	return &j, nil
}
