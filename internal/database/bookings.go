package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"agenda/internal/models"
)

const bookingColumns = `id, user_id, date, time, status, attended, cancelled_by,
	cancellation_reason, service_type, visit_reason, created_at, cancelled_at, version`

const insertBookingQuery = `INSERT INTO bookings (
				user_id, date, time, status, attended, cancelled_by, cancellation_reason,
				service_type, visit_reason, created_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func dateKey(t time.Time) string {
	return models.DateOf(t).Format(models.DateLayout)
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var dateStr string
	err := row.Scan(
		&b.ID, &b.UserID, &dateStr, &b.Time, &b.Status, &b.Attended, &b.CancelledBy,
		&b.CancellationReason, &b.ServiceType, &b.VisitReason, &b.CreatedAt, &b.CancelledAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, what, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return bookings, nil
}

func insertBooking(ctx context.Context, ex execer, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	if booking.ServiceType == "" {
		booking.ServiceType = models.ServiceTypeInPerson
	}
	if booking.VisitReason == "" {
		booking.VisitReason = models.VisitReasonDefault
	}
	result, err := ex.ExecContext(ctx, insertBookingQuery,
		booking.UserID,
		dateKey(booking.Date),
		booking.Time,
		booking.Status,
		booking.Attended,
		booking.CancelledBy,
		booking.CancellationReason,
		booking.ServiceType,
		booking.VisitReason,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.Date = models.DateOf(booking.Date)
	booking.CreatedAt = now
	booking.Version = 1
	return nil
}

// CreateBooking inserts the booking without checking the slot.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, db, booking)
}

// CreateBookingGuarded inserts the booking only if no other non-cancelled booking
// or block holds the slot. The check and the insert share one transaction.
func (db *DB) CreateBookingGuarded(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	date := dateKey(booking.Date)

	var taken int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE date = ? AND time = ? AND status != ?`,
		date, booking.Time, models.StatusCancelled).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check slot in tx: %w", err)
	}

	var blocked int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocks WHERE date = ? AND (type = ? OR (type = ? AND time = ?))`,
		date, models.BlockFullDay, models.BlockSingleSlot, booking.Time).Scan(&blocked)
	if err != nil {
		return fmt.Errorf("failed to check blocks in tx: %w", err)
	}

	if taken > 0 || blocked > 0 {
		return ErrSlotTaken
	}

	if err := insertBooking(ctx, tx, booking); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetBookingsByDate returns every booking of the date, cancelled included, ordered by time.
func (db *DB) GetBookingsByDate(ctx context.Context, date time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? ORDER BY time ASC, id ASC`
	return db.queryBookings(ctx, "bookings by date", query, dateKey(date))
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE date >= ? AND date <= ? ORDER BY date ASC, time ASC, id ASC`
	return db.queryBookings(ctx, "bookings by date range", query, dateKey(start), dateKey(end))
}

func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY date ASC, time ASC`
	return db.queryBookings(ctx, "user bookings", query, userID)
}

// UpdateBookingWithVersion writes the lifecycle fields of booking if its stored
// version is still fromVersion. On success booking.Version is advanced.
func (db *DB) UpdateBookingWithVersion(ctx context.Context, booking *models.Booking, fromVersion int64) error {
	var cancelledAt interface{}
	if booking.CancelledAt != nil {
		cancelledAt = booking.CancelledAt.UTC()
	}
	query := `UPDATE bookings SET status = ?, attended = ?, cancelled_by = ?, cancellation_reason = ?,
                  cancelled_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		booking.Status,
		booking.Attended,
		booking.CancelledBy,
		booking.CancellationReason,
		cancelledAt,
		booking.ID,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	booking.Version = fromVersion + 1
	return nil
}

// GetPurgeableBookingIDs collects the client's bookings dated before today, cancelled
// or attended. Each predicate has its own indexed query; ids are de-duplicated.
func (db *DB) GetPurgeableBookingIDs(ctx context.Context, userID int64, today time.Time) ([]int64, error) {
	queries := []struct {
		what  string
		query string
		arg   interface{}
	}{
		{"past bookings", `SELECT id FROM bookings WHERE user_id = ? AND date < ?`, dateKey(today)},
		{"cancelled bookings", `SELECT id FROM bookings WHERE user_id = ? AND status = ?`, models.StatusCancelled},
		{"attended bookings", `SELECT id FROM bookings WHERE user_id = ? AND attended = ?`, true},
	}

	seen := make(map[int64]struct{})
	for _, q := range queries {
		if err := db.collectIDs(ctx, seen, q.query, userID, q.arg); err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", q.what, err)
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (db *DB) collectIDs(ctx context.Context, into map[int64]struct{}, query string, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		into[id] = struct{}{}
	}
	return rows.Err()
}

// DeleteBookings removes the given bookings of the user in one transaction.
// Nothing is deleted if any statement fails.
func (db *DB) DeleteBookings(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM bookings WHERE id = ? AND user_id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	var deleted int64
	for _, id := range ids {
		result, err := stmt.ExecContext(ctx, id, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to delete booking %d: %w", id, err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return deleted, nil
}
