package notify

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/config"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

// ReminderStore is the persistence used by the scheduler and the dispatcher.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64) error
	MarkReminderAttemptFailed(ctx context.Context, id int64, errMsg string, nextTry *time.Time) error
	CancelReminders(ctx context.Context, bookingID int64) (int64, error)
}

// Scheduler records one reminder per booking, fired days before the visit.
type Scheduler struct {
	store  ReminderStore
	cfg    config.ReminderConfig
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger
}

func NewScheduler(store ReminderStore, cfg config.ReminderConfig, loc *time.Location, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if cfg.DaysBefore <= 0 {
		cfg.DaysBefore = 1
	}
	if cfg.MessageFormat == "" {
		cfg.MessageFormat = "Reminder: you have an appointment on %s at %s"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{store: store, cfg: cfg, loc: loc, now: time.Now, logger: logger}
}

// FireAt returns the reminder instant for the booking date.
func (s *Scheduler) FireAt(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d-s.cfg.DaysBefore, s.cfg.Hour, 0, 0, 0, s.loc)
}

// ScheduleReminder persists the reminder; a fire time already in the past is skipped.
func (s *Scheduler) ScheduleReminder(ctx context.Context, booking *models.Booking) error {
	if booking == nil || booking.ID == 0 {
		return fmt.Errorf("booking id is required")
	}

	fireAt := s.FireAt(booking.Date)
	if !fireAt.After(s.now()) {
		s.logger.Info().
			Int64("booking_id", booking.ID).
			Time("fire_at", fireAt).
			Msg("reminder time already passed, skipping")
		return nil
	}

	r := &models.Reminder{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		FireAt:    fireAt,
		Message:   fmt.Sprintf(s.cfg.MessageFormat, booking.Date.Format(models.DateLayout), booking.Time),
		Status:    models.ReminderScheduled,
	}
	if err := s.store.CreateReminder(ctx, r); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}

	s.logger.Debug().Int64("booking_id", booking.ID).Int64("reminder_id", r.ID).Time("fire_at", fireAt).Msg("reminder scheduled")
	return nil
}

// CancelReminders drops the pending reminders of a booking.
func (s *Scheduler) CancelReminders(ctx context.Context, bookingID int64) error {
	n, err := s.store.CancelReminders(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("cancel reminders: %w", err)
	}
	if n > 0 {
		s.logger.Debug().Int64("booking_id", bookingID).Int64("cancelled", n).Msg("reminders cancelled")
	}
	return nil
}
