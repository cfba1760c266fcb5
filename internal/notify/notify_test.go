package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"agenda/internal/config"
	"agenda/internal/database"
	"agenda/internal/models"
	"agenda/internal/worker"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func booking(id int64, date string, slot string) *models.Booking {
	d, _ := time.Parse(models.DateLayout, date)
	b := models.NewBooking(7, d, slot)
	b.ID = id
	return b
}

func reminderConfig() config.ReminderConfig {
	return config.ReminderConfig{
		Enabled:       true,
		Hour:          9,
		DaysBefore:    1,
		MaxAttempts:   2,
		BatchSize:     10,
		MessageFormat: "appointment %s %s",
	}
}

func TestScheduler_FireAt(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	s := NewScheduler(nil, reminderConfig(), loc, nil)

	date, _ := time.Parse(models.DateLayout, "2025-03-01")
	fire := s.FireAt(date)

	assert.Equal(t, time.Date(2025, 2, 28, 9, 0, 0, 0, loc), fire)
	assert.Equal(t, 12, fire.UTC().Hour())
}

func TestScheduler_ScheduleReminder(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	s := NewScheduler(db, reminderConfig(), time.UTC, nil)
	s.now = func() time.Time { return time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC) }

	t.Run("Persisted", func(t *testing.T) {
		require.NoError(t, s.ScheduleReminder(ctx, booking(1, "2025-10-20", "14:00")))

		got, err := db.GetRemindersByBooking(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "appointment 2025-10-20 14:00", got[0].Message)
		assert.Equal(t, models.ReminderScheduled, got[0].Status)
		assert.True(t, got[0].FireAt.Equal(time.Date(2025, 10, 19, 9, 0, 0, 0, time.UTC)))
	})

	t.Run("PastFireTimeSkipped", func(t *testing.T) {
		// Завтрашняя запись: 09:00 сегодня уже прошло.
		require.NoError(t, s.ScheduleReminder(ctx, booking(2, "2025-10-02", "10:00")))

		got, err := db.GetRemindersByBooking(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("MissingID", func(t *testing.T) {
		assert.Error(t, s.ScheduleReminder(ctx, booking(0, "2025-10-20", "14:00")))
		assert.Error(t, s.ScheduleReminder(ctx, nil))
	})

	t.Run("Cancel", func(t *testing.T) {
		require.NoError(t, s.CancelReminders(ctx, 1))

		got, err := db.GetRemindersByBooking(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, models.ReminderCancelled, got[0].Status)

		// nothing left to cancel
		assert.NoError(t, s.CancelReminders(ctx, 1))
	})
}

type flakyNotifier struct {
	err   error
	calls []int64
}

func (n *flakyNotifier) Notify(_ context.Context, r *models.Reminder) error {
	n.calls = append(n.calls, r.ID)
	return n.err
}

func dueReminder(t *testing.T, db *database.DB, bookingID int64, fireAt time.Time) *models.Reminder {
	t.Helper()
	r := &models.Reminder{BookingID: bookingID, UserID: 7, FireAt: fireAt, Message: "hi"}
	require.NoError(t, db.CreateReminder(context.Background(), r))
	return r
}

func TestDispatcher_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Delivers", func(t *testing.T) {
		db := setupDB(t)
		r := dueReminder(t, db, 1, now.Add(-time.Minute))
		dueReminder(t, db, 2, now.Add(time.Hour))

		notifier := &flakyNotifier{}
		d := NewDispatcher(db, notifier, reminderConfig(), worker.RetryPolicy{}, nil)

		sent, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Equal(t, []int64{r.ID}, notifier.calls)

		got, err := db.GetRemindersByBooking(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.ReminderSent, got[0].Status)
	})

	t.Run("RetriesThenFails", func(t *testing.T) {
		db := setupDB(t)
		dueReminder(t, db, 1, now.Add(-time.Minute))

		notifier := &flakyNotifier{err: errors.New("gateway down")}
		d := NewDispatcher(db, notifier, reminderConfig(), worker.RetryPolicy{InitialDelay: time.Minute}, nil)

		sent, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)

		got, err := db.GetRemindersByBooking(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.ReminderScheduled, got[0].Status)
		assert.Equal(t, 1, got[0].Attempts)
		require.NotNil(t, got[0].NextTryAt)

		// second attempt exhausts MaxAttempts=2
		d.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, err = d.RunOnce(ctx)
		require.NoError(t, err)

		got, err = db.GetRemindersByBooking(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.ReminderFailed, got[0].Status)
		assert.Equal(t, 2, got[0].Attempts)
		assert.Len(t, notifier.calls, 2)
	})
}

func TestDispatcher_Start(t *testing.T) {
	db := setupDB(t)

	t.Run("InvalidSchedule", func(t *testing.T) {
		cfg := reminderConfig()
		cfg.Schedule = "not a schedule"
		d := NewDispatcher(db, NewLogNotifier(nil), cfg, worker.RetryPolicy{}, nil)
		assert.Error(t, d.Start(context.Background()))
	})

	t.Run("StopsWithContext", func(t *testing.T) {
		d := NewDispatcher(db, NewLogNotifier(nil), reminderConfig(), worker.RetryPolicy{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- d.Start(ctx) }()

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("dispatcher did not stop")
		}
	})
}

func TestCalendarEvent(t *testing.T) {
	b := booking(42, "2025-10-20", "14:00")
	b.CreatedAt = time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	cfg := config.CalendarConfig{DurationMinutes: 60, Summary: "Consulta", Location: "Clinic", ProductID: "-//test//EN"}

	data, err := CalendarEvent(b, cfg, time.UTC)
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, EventUID(42), ev.Id())
	assert.Equal(t, "Consulta", ev.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Clinic", ev.GetProperty(ical.ComponentPropertyLocation).Value)

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	end, err := ev.GetEndAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 10, 20, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Hour, end.Sub(start))

	t.Run("InvalidSlot", func(t *testing.T) {
		_, err := CalendarEvent(booking(1, "2025-10-20", "lunch"), cfg, time.UTC)
		assert.Error(t, err)
	})

	t.Run("StableUID", func(t *testing.T) {
		assert.Equal(t, EventUID(7), EventUID(7))
		assert.NotEqual(t, EventUID(7), EventUID(8))
	})
}
