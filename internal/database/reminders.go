package database

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/models"
)

const reminderColumns = `id, booking_id, user_id, fire_at, message, status, attempts, last_error, next_try_at, created_at`

func (db *DB) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if r.Status == "" {
		r.Status = models.ReminderScheduled
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO reminders (booking_id, user_id, fire_at, message, status, attempts, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.BookingID, r.UserID, r.FireAt.UTC(), r.Message, r.Status, r.Attempts, now)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

// GetDueReminders returns scheduled reminders whose fire time (and retry time, if any) has passed.
func (db *DB) GetDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	now = now.UTC()
	query := `SELECT ` + reminderColumns + ` FROM reminders
              WHERE status = ? AND fire_at <= ? AND (next_try_at IS NULL OR next_try_at <= ?)
              ORDER BY fire_at ASC LIMIT ?`
	return db.queryReminders(ctx, query, models.ReminderScheduled, now, now, limit)
}

func (db *DB) GetRemindersByBooking(ctx context.Context, bookingID int64) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE booking_id = ? ORDER BY id ASC`
	return db.queryReminders(ctx, query, bookingID)
}

func (db *DB) queryReminders(ctx context.Context, query string, args ...interface{}) ([]*models.Reminder, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reminders: %w", err)
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		var r models.Reminder
		err := rows.Scan(&r.ID, &r.BookingID, &r.UserID, &r.FireAt, &r.Message, &r.Status,
			&r.Attempts, &r.LastError, &r.NextTryAt, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, attempts = attempts + 1, last_error = NULL, next_try_at = NULL WHERE id = ?`,
		models.ReminderSent, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// MarkReminderAttemptFailed records a failed delivery. A nil nextTry gives up on the reminder.
func (db *DB) MarkReminderAttemptFailed(ctx context.Context, id int64, errMsg string, nextTry *time.Time) error {
	status := models.ReminderScheduled
	var next interface{}
	if nextTry == nil {
		status = models.ReminderFailed
	} else {
		next = nextTry.UTC()
	}
	_, err := db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, attempts = attempts + 1, last_error = ?, next_try_at = ? WHERE id = ?`,
		status, errMsg, next, id)
	if err != nil {
		return fmt.Errorf("failed to record reminder failure: %w", err)
	}
	return nil
}

// CancelReminders cancels the still scheduled reminders of a booking.
func (db *DB) CancelReminders(ctx context.Context, bookingID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE reminders SET status = ? WHERE booking_id = ? AND status = ?`,
		models.ReminderCancelled, bookingID, models.ReminderScheduled)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
