package service

import (
	"context"
	"io"
	"testing"
	"time"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return testDate.AddDate(0, 0, offset)
}

func TestPartition(t *testing.T) {
	today := testDate

	future := models.NewBooking(1, day(2), "09:00")
	todayLate := models.NewBooking(1, day(0), "11:00")
	todayEarly := models.NewBooking(1, day(0), "09:00")
	past := models.NewBooking(1, day(-3), "10:00")
	cancelled := models.NewBooking(1, day(5), "10:00")
	cancelled.Status = models.StatusCancelled
	attended := models.NewBooking(1, day(-1), "09:00")
	attended.Attended = true

	sections := Partition([]*models.Booking{future, past, cancelled, todayLate, attended, todayEarly}, today)

	assert.Equal(t, []*models.Booking{todayEarly, todayLate, future}, sections.Upcoming)
	assert.Equal(t, []*models.Booking{cancelled, attended, past}, sections.History)

	t.Run("Empty", func(t *testing.T) {
		s := Partition(nil, today)
		assert.True(t, s.Empty())
		assert.Nil(t, s.Upcoming)
		assert.Nil(t, s.History)
	})
}

func newTestHistoryService(repo domain.Repository, conn domain.Connectivity, collab Collaborators) *HistoryService {
	logger := zerolog.New(io.Discard)
	svc := NewHistoryService(repo, NewDayViews(repo), conn, collab, time.UTC, &logger)
	svc.now = func() time.Time { return testDate.Add(8 * time.Hour) }
	return svc
}

func TestHistoryService_History(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	svc := newTestHistoryService(db, nil, Collaborators{})

	require.NoError(t, db.CreateBooking(ctx, models.NewBooking(7, day(1), "09:00")))
	require.NoError(t, db.CreateBooking(ctx, models.NewBooking(7, day(-1), "09:00")))
	require.NoError(t, db.CreateBooking(ctx, models.NewBooking(8, day(1), "10:00")))

	sections, err := svc.History(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, sections.Upcoming, 1)
	assert.Len(t, sections.History, 1)

	t.Run("Offline", func(t *testing.T) {
		s := newTestHistoryService(db, offline(), Collaborators{})
		sections, err := s.History(ctx, 7)
		require.NoError(t, err)
		assert.True(t, sections.Empty())
	})
}

func TestHistoryService_PurgeHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("RemovesMatching", func(t *testing.T) {
		db := setupDB(t)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		reminders := new(mockReminders)
		svc := newTestHistoryService(db, nil, Collaborators{Events: bus, Sync: worker, Reminders: reminders})

		keep := models.NewBooking(7, day(1), "09:00")
		past := models.NewBooking(7, day(-1), "09:00")
		cancelled := models.NewBooking(7, day(2), "10:00")
		cancelled.Status = models.StatusCancelled
		attended := models.NewBooking(7, day(0), "09:00")
		attended.Attended = true
		other := models.NewBooking(8, day(-1), "10:00")
		for _, b := range []*models.Booking{keep, past, cancelled, attended, other} {
			require.NoError(t, db.CreateBooking(ctx, b))
		}

		reminders.On("CancelReminders", mock.Anything, mock.AnythingOfType("int64")).Return(nil).Times(3)
		worker.On("EnqueueTask", mock.Anything, models.TaskDelete, mock.AnythingOfType("*models.Booking")).Return(nil).Times(3)
		bus.On("PublishJSON", events.EventHistoryPurged, events.HistoryEventPayload{UserID: 7, Deleted: 3}).Return(nil).Once()

		res, err := svc.PurgeHistory(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Deleted)

		left, err := db.GetUserBookings(ctx, 7)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, keep.ID, left[0].ID)

		others, err := db.GetUserBookings(ctx, 8)
		require.NoError(t, err)
		assert.Len(t, others, 1)

		bus.AssertExpectations(t)
		worker.AssertExpectations(t)
		reminders.AssertExpectations(t)
	})

	t.Run("NothingToPurge", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestHistoryService(db, nil, Collaborators{})
		require.NoError(t, db.CreateBooking(ctx, models.NewBooking(7, day(1), "09:00")))

		res, err := svc.PurgeHistory(ctx, 7)
		require.NoError(t, err)
		assert.Zero(t, res.Deleted)
		assert.NotEmpty(t, res.Message)
	})

	t.Run("Offline", func(t *testing.T) {
		svc := newTestHistoryService(setupDB(t), offline(), Collaborators{})
		_, err := svc.PurgeHistory(ctx, 7)
		assert.True(t, domain.IsOffline(err))
	})
}
