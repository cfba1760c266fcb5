package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"agenda/internal/connectivity"
	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var template = []string{"09:00", "10:00", "11:00"}

// fixedNow is the day before testDate.
var fixedNow = time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)

var testDate = time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, b *models.Booking) error {
	return m.Called(ctx, tt, b).Error(0)
}

type mockReminders struct {
	mock.Mock
}

func (m *mockReminders) ScheduleReminder(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockReminders) CancelReminders(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// failingRepo injects storage failures over a real database.
type failingRepo struct {
	*database.DB
	createErr error
	updateErr error
	deleteErr error
}

func (r *failingRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.DB.CreateBooking(ctx, b)
}

func (r *failingRepo) CreateBookingGuarded(ctx context.Context, b *models.Booking) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.DB.CreateBookingGuarded(ctx, b)
}

func (r *failingRepo) UpdateBookingWithVersion(ctx context.Context, b *models.Booking, from int64) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.DB.UpdateBookingWithVersion(ctx, b, from)
}

func (r *failingRepo) DeleteBlock(ctx context.Context, id int64) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.DB.DeleteBlock(ctx, id)
}

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestBookingService(repo domain.Repository, conn domain.Connectivity, collab Collaborators) *BookingService {
	logger := zerolog.New(io.Discard)
	svc := NewBookingService(repo, NewDayViews(repo), conn, collab, ScheduleOptions{Template: template}, &logger)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func offline() *connectivity.Monitor {
	m := connectivity.NewMonitor(time.Second, nil)
	m.Set(false)
	return m
}

func TestBookingService_Availability(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	svc := newTestBookingService(db, nil, Collaborators{})

	require.NoError(t, db.CreateBooking(ctx, models.NewBooking(1, testDate, "10:00")))

	slots, err := svc.Availability(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00"}, slots)

	t.Run("TodayDropsPastSlots", func(t *testing.T) {
		svc.now = func() time.Time { return testDate.Add(10*time.Hour + 30*time.Minute) }
		defer func() { svc.now = func() time.Time { return fixedNow } }()

		slots, err := svc.Availability(ctx, testDate)
		require.NoError(t, err)
		assert.Equal(t, []string{"11:00"}, slots)
	})

	t.Run("OfflineIsEmpty", func(t *testing.T) {
		s := newTestBookingService(db, offline(), Collaborators{})
		slots, err := s.Availability(ctx, testDate)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db := setupDB(t)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		reminders := new(mockReminders)
		svc := newTestBookingService(db, nil, Collaborators{Events: bus, Sync: worker, Reminders: reminders})

		reminders.On("ScheduleReminder", mock.Anything, mock.AnythingOfType("*models.Booking")).Return(nil).Once()
		worker.On("EnqueueTask", mock.Anything, models.TaskUpsert, mock.AnythingOfType("*models.Booking")).Return(nil).Once()
		bus.On("PublishJSON", events.EventBookingCreated, mock.AnythingOfType("events.BookingEventPayload")).Return(nil).Once()

		b, err := svc.CreateBooking(ctx, 7, testDate, "09:00")
		require.NoError(t, err)
		assert.NotZero(t, b.ID)
		assert.Equal(t, models.StatusPending, b.Status)
		assert.False(t, b.Attended)

		view := svc.views.Cell(testDate).Get()
		require.Len(t, view.Bookings, 1)
		assert.Equal(t, b.ID, view.Bookings[0].ID)

		slots, err := svc.Availability(ctx, testDate)
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00", "11:00"}, slots)

		bus.AssertExpectations(t)
		worker.AssertExpectations(t)
		reminders.AssertExpectations(t)
	})

	t.Run("ReminderFailureIgnored", func(t *testing.T) {
		db := setupDB(t)
		reminders := new(mockReminders)
		svc := newTestBookingService(db, nil, Collaborators{Reminders: reminders})
		reminders.On("ScheduleReminder", mock.Anything, mock.Anything).Return(errors.New("scheduler down")).Once()

		_, err := svc.CreateBooking(ctx, 7, testDate, "09:00")
		assert.NoError(t, err)
	})

	t.Run("SlotTaken", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		// same client: no self-double-booking either
		require.NoError(t, db.CreateBooking(ctx, models.NewBooking(7, testDate, "09:00")))

		_, err := svc.CreateBooking(ctx, 7, testDate, "09:00")
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("FullDayBlock", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		require.NoError(t, db.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockFullDay}))

		_, err := svc.CreateBooking(ctx, 7, testDate, "11:00")
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("PastDate", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		past := fixedNow.AddDate(0, 0, -18)

		_, err := svc.CreateBooking(ctx, 7, past, "09:00")
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))

		stored, err := db.GetBookingsByDate(ctx, past)
		require.NoError(t, err)
		assert.Empty(t, stored)

		// сегодня ещё можно
		_, err = svc.CreateBooking(ctx, 7, models.DateOf(fixedNow), "11:00")
		assert.NoError(t, err)
	})

	t.Run("NotInTemplate", func(t *testing.T) {
		svc := newTestBookingService(setupDB(t), nil, Collaborators{})
		_, err := svc.CreateBooking(ctx, 7, testDate, "13:00")
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Offline", func(t *testing.T) {
		worker := new(mockWorker)
		svc := newTestBookingService(setupDB(t), offline(), Collaborators{Sync: worker})
		_, err := svc.CreateBooking(ctx, 7, testDate, "09:00")
		assert.True(t, domain.IsOffline(err))
		worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RemoteFailureReverts", func(t *testing.T) {
		repo := &failingRepo{DB: setupDB(t), createErr: errors.New("disk I/O error")}
		reminders := new(mockReminders)
		svc := newTestBookingService(repo, nil, Collaborators{Reminders: reminders})

		_, err := svc.CreateBooking(ctx, 7, testDate, "09:00")
		assert.True(t, domain.IsRemote(err))
		assert.NotContains(t, err.Error(), "disk")
		assert.Empty(t, svc.views.Cell(testDate).Get().Bookings)
		reminders.AssertNotCalled(t, "ScheduleReminder", mock.Anything, mock.Anything)
	})

	t.Run("GuardedRace", func(t *testing.T) {
		repo := &failingRepo{DB: setupDB(t), createErr: database.ErrSlotTaken}
		logger := zerolog.New(io.Discard)
		svc := NewBookingService(repo, NewDayViews(repo), nil, Collaborators{},
			ScheduleOptions{Template: template, GuardDoubleBooking: true}, &logger)
		svc.now = func() time.Time { return fixedNow }

		_, err := svc.CreateBooking(ctx, 7, testDate, "09:00")
		assert.True(t, domain.IsValidation(err))
	})
}

func TestBookingService_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelByClient", func(t *testing.T) {
		db := setupDB(t)
		reminders := new(mockReminders)
		svc := newTestBookingService(db, nil, Collaborators{Reminders: reminders})
		b, err := seedBooking(ctx, db, 7)
		require.NoError(t, err)

		reminders.On("CancelReminders", mock.Anything, b.ID).Return(nil).Once()
		got, err := svc.CancelByClient(ctx, 7, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
		assert.Equal(t, models.CancelledByClient, got.CancelledBy)
		assert.NotNil(t, got.CancelledAt)
		reminders.AssertExpectations(t)

		stored, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Version)

		// second cancellation is rejected
		_, err = svc.CancelByClient(ctx, 7, b.ID)
		var te *models.TransitionError
		assert.True(t, errors.As(err, &te))
	})

	t.Run("CancelByClientNotOwner", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		b, err := seedBooking(ctx, db, 7)
		require.NoError(t, err)

		_, err = svc.CancelByClient(ctx, 8, b.ID)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("CancelByClientPastDate", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		past := models.NewBooking(7, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), "09:00")
		require.NoError(t, db.CreateBooking(ctx, past))

		_, err := svc.CancelByClient(ctx, 7, past.ID)
		assert.True(t, domain.IsValidation(err))

		stored, err := db.GetBooking(ctx, past.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status)

		// the provider is not restricted by the date
		got, err := svc.CancelByProvider(ctx, past.ID, "clinic closed")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
	})

	t.Run("CancelByProvider", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		b, err := seedBooking(ctx, db, 7)
		require.NoError(t, err)

		_, err = svc.CancelByProvider(ctx, b.ID, "   ")
		assert.True(t, domain.IsValidation(err))

		got, err := svc.CancelByProvider(ctx, b.ID, " provider is sick ")
		require.NoError(t, err)
		assert.Equal(t, models.CancelledByProvider, got.CancelledBy)
		assert.Equal(t, "provider is sick", got.CancellationReason)
		assert.False(t, got.Attended)
	})

	t.Run("AttendedIsTerminal", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBookingService(db, nil, Collaborators{})
		b, err := seedBooking(ctx, db, 7)
		require.NoError(t, err)

		got, err := svc.MarkAttended(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, got.Attended)

		var te *models.TransitionError
		_, err = svc.CancelByClient(ctx, 7, b.ID)
		assert.True(t, errors.As(err, &te))
		_, err = svc.CancelByProvider(ctx, b.ID, "late")
		assert.True(t, errors.As(err, &te))
		_, err = svc.MarkAttended(ctx, b.ID)
		assert.True(t, errors.As(err, &te))
	})

	t.Run("VersionConflictReverts", func(t *testing.T) {
		repo := &failingRepo{DB: setupDB(t)}
		svc := newTestBookingService(repo, nil, Collaborators{})
		b, err := seedBooking(ctx, repo.DB, 7)
		require.NoError(t, err)
		_, err = svc.views.Load(ctx, testDate)
		require.NoError(t, err)

		repo.updateErr = database.ErrConcurrentModification
		_, err = svc.MarkAttended(ctx, b.ID)
		assert.True(t, domain.IsRemote(err))
		assert.ErrorIs(t, err, database.ErrConcurrentModification)

		view := svc.views.Cell(testDate).Get()
		require.Len(t, view.Bookings, 1)
		assert.False(t, view.Bookings[0].Attended)
	})

	t.Run("Missing", func(t *testing.T) {
		svc := newTestBookingService(setupDB(t), nil, Collaborators{})
		_, err := svc.MarkAttended(ctx, 404)
		assert.True(t, domain.IsNotFound(err))
		_, err = svc.GetBooking(ctx, 404)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Offline", func(t *testing.T) {
		svc := newTestBookingService(setupDB(t), offline(), Collaborators{})
		_, err := svc.CancelByClient(ctx, 7, 1)
		assert.True(t, domain.IsOffline(err))
		_, err = svc.CancelByProvider(ctx, 1, "reason")
		assert.True(t, domain.IsOffline(err))
		_, err = svc.MarkAttended(ctx, 1)
		assert.True(t, domain.IsOffline(err))
	})
}

func TestBookingService_DayAgenda(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	svc := newTestBookingService(db, nil, Collaborators{})

	ana := &models.User{Name: "Ana", Email: "ana@example.com", Phone: "555", PasswordHash: "x"}
	require.NoError(t, db.CreateUser(ctx, ana))
	require.NoError(t, db.CreateBooking(ctx, models.NewBooking(ana.ID, testDate, "11:00")))
	require.NoError(t, db.CreateBooking(ctx, models.NewBooking(999, testDate, "09:00")))

	entries, err := svc.DayAgenda(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "09:00", entries[0].Booking.Time)
	assert.Equal(t, "Unknown client", entries[0].ClientName)
	assert.Equal(t, "?", entries[0].ClientEmail)
	assert.Equal(t, "?", entries[0].ClientPhone)

	assert.Equal(t, "Ana", entries[1].ClientName)
	assert.Equal(t, "ana@example.com", entries[1].ClientEmail)
	assert.Equal(t, "555", entries[1].ClientPhone)

	t.Run("KnownClientWithoutPhone", func(t *testing.T) {
		bo := &models.User{Name: "Bo", Email: "bo@example.com", PasswordHash: "x"}
		require.NoError(t, db.CreateUser(ctx, bo))
		day := testDate.AddDate(0, 0, 2)
		require.NoError(t, db.CreateBooking(ctx, models.NewBooking(bo.ID, day, "10:00")))

		entries, err := svc.DayAgenda(ctx, day)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Bo", entries[0].ClientName)
		assert.Equal(t, "Not provided", entries[0].ClientPhone)
	})

	ranged, err := svc.AgendaRange(ctx, testDate, testDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	t.Run("Offline", func(t *testing.T) {
		s := newTestBookingService(db, offline(), Collaborators{})
		entries, err := s.DayAgenda(ctx, testDate)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

// seedBooking stores an open booking on testDate at 09:00.
func seedBooking(ctx context.Context, db *database.DB, clientID int64) (*models.Booking, error) {
	b := models.NewBooking(clientID, testDate, "09:00")
	if err := db.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
