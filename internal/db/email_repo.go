package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// EmailQueueRepository provides data access for the email_queue and
// email_dead_letters tables. Queue items follow the same conditional-update
// state machine as scheduled jobs, with one difference at the terminal edge:
// exhausting max_attempts marks the item 'failed' in place AND appends a
// DeadLetterEntry referencing it. The original row is kept for audit.
type EmailQueueRepository struct {
	db DBTX
}

// NewEmailQueueRepository creates a new EmailQueueRepository backed by the
// given database connection (pool or transaction).
func NewEmailQueueRepository(db DBTX) *EmailQueueRepository {
	return &EmailQueueRepository{db: db}
}

const emailColumns = `id, recipient, subject, template, template_data, status,
	attempts, max_attempts, scheduled_for, last_error, created_at, completed_at`

// SelectDue returns up to limit queue items eligible for delivery: status
// 'pending' and scheduled_for at or before now, oldest-due first.
func (r *EmailQueueRepository) SelectDue(ctx context.Context, limit int) ([]*types.EmailQueueItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+emailColumns+`
		 FROM email_queue
		 WHERE status = 'pending' AND scheduled_for <= NOW()
		 ORDER BY scheduled_for ASC, created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to select due email items", err)
	}
	defer rows.Close()

	var items []*types.EmailQueueItem
	for rows.Next() {
		item, scanErr := scanEmailItem(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email row", scanErr)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating email rows", err)
	}

	return items, nil
}

// Claim atomically transitions a queue item from 'pending' to 'processing'
// and increments its attempt counter. Returns (nil, false, nil) when the row
// was already claimed by a concurrent invocation.
func (r *EmailQueueRepository) Claim(ctx context.Context, id string) (*types.EmailQueueItem, bool, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE email_queue SET
			status = 'processing',
			attempts = attempts + 1
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+emailColumns,
		id,
	)

	item, err := scanEmailItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim email item", err)
	}

	return item, true, nil
}

// MarkCompleted transitions a claimed item to 'completed' and stamps
// completed_at.
func (r *EmailQueueRepository) MarkCompleted(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE email_queue SET
			status = 'completed',
			last_error = NULL,
			completed_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark email completed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "email item not in processing state", nil)
	}
	return nil
}

// Reschedule returns a claimed item to 'pending' with a later eligibility
// time and the error that caused the retry.
func (r *EmailQueueRepository) Reschedule(ctx context.Context, id string, at time.Time, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE email_queue SET
			status = 'pending',
			scheduled_for = $2,
			last_error = $3
		 WHERE id = $1 AND status = 'processing'`,
		id,
		at,
		nilIfEmpty(errMsg),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reschedule email item", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "email item not in processing state", nil)
	}
	return nil
}

// MarkFailedWithDeadLetter performs the terminal transition for an exhausted
// queue item: the item is marked 'failed' in place, and exactly one
// DeadLetterEntry is appended carrying the original id, payload, final error,
// and attempt count.
//
// The dead-letter insert is gated on the conditional update having affected
// a row. Since only one invocation can hold the 'processing' state for an
// item, overlapping workers cannot produce duplicate dead letters.
func (r *EmailQueueRepository) MarkFailedWithDeadLetter(ctx context.Context, item *types.EmailQueueItem, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE email_queue SET
			status = 'failed',
			last_error = $2
		 WHERE id = $1 AND status = 'processing'`,
		item.ID,
		nilIfEmpty(errMsg),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark email failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "email item not in processing state", nil)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO email_dead_letters
		 (original_id, recipient, subject, template, template_data, error, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		item.ID,
		item.Recipient,
		item.Subject,
		item.Template,
		templateDataJSON(item.TemplateData),
		errMsg,
		item.Attempts,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert dead letter entry", err)
	}

	return nil
}

// ListDeadLetters returns dead-letter entries newest first. Operator/test
// surface only; entries are never re-enqueued by the engine.
func (r *EmailQueueRepository) ListDeadLetters(ctx context.Context, limit int) ([]*types.DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, original_id, recipient, subject, template, template_data,
		        error, attempts, created_at
		 FROM email_dead_letters
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list dead letters", err)
	}
	defer rows.Close()

	var entries []*types.DeadLetterEntry
	for rows.Next() {
		var (
			e    types.DeadLetterEntry
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.OriginalID, &e.Recipient, &e.Subject,
			&e.Template, &data, &e.Error, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dead letter row", err)
		}
		if data != nil {
			_ = json.Unmarshal(data, &e.TemplateData)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating dead letter rows", err)
	}

	return entries, nil
}

// scanEmailItem scans an email_queue row from a pgx.Row or pgx.Rows.
func scanEmailItem(row pgx.Row) (*types.EmailQueueItem, error) {
	var (
		item        types.EmailQueueItem
		status      string
		data        []byte
		lastError   *string
		completedAt *time.Time
	)

	err := row.Scan(
		&item.ID,
		&item.Recipient,
		&item.Subject,
		&item.Template,
		&data,
		&status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.ScheduledFor,
		&lastError,
		&item.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = types.WorkStatus(status)
	if data != nil {
		_ = json.Unmarshal(data, &item.TemplateData)
	}
	if lastError != nil {
		item.LastError = *lastError
	}
	if completedAt != nil {
		item.CompletedAt = *completedAt
	}

	return &item, nil
}

// templateDataJSON returns the template_data JSONB value for a queue item.
// Returns an empty JSON object if no data is set.
func templateDataJSON(data map[string]any) []byte {
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			return b
		}
	}
	return []byte("{}")
}
