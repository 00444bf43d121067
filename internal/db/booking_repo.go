package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// BookingRepository provides read-only access to the booking workflow's
// tables. The dispatch worker never writes to bookings or users; it only
// hydrates the records job handlers need to address their notifications.
type BookingRepository struct {
	db DBTX
}

// NewBookingRepository creates a new BookingRepository backed by the given
// database connection (pool or transaction).
func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetByID returns a booking with both parties' contact fields hydrated via
// a join on the users table. Returns an AppError with code not_found_booking
// when no row matches; callers decide whether that is retryable.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*types.Booking, error) {
	row := r.db.QueryRow(ctx,
		`SELECT b.id, b.client_id, b.dietitian_id, b.starts_at,
		        b.duration_minutes, b.meeting_url, b.status,
		        c.email, c.full_name, d.email, d.full_name
		 FROM bookings b
		 JOIN users c ON c.id = b.client_id
		 JOIN users d ON d.id = b.dietitian_id
		 WHERE b.id = $1`,
		id,
	)

	var (
		b          types.Booking
		status     string
		meetingURL *string
	)
	err := row.Scan(
		&b.ID,
		&b.ClientID,
		&b.DietitianID,
		&b.StartsAt,
		&b.DurationMinutes,
		&meetingURL,
		&status,
		&b.ClientEmail,
		&b.ClientName,
		&b.DietitianEmail,
		&b.DietitianName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundBooking, "booking not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get booking", err)
	}

	b.Status = types.BookingStatus(status)
	if meetingURL != nil {
		b.MeetingURL = *meetingURL
	}

	return &b, nil
}

// GetUserByID returns a single user record.
func (r *BookingRepository) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, email, full_name, role FROM users WHERE id = $1`,
		id,
	)

	var (
		u    types.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}

	u.Role = types.UserRole(role)
	return &u, nil
}
