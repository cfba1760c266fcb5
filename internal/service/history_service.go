package service

import (
	"context"
	"sort"
	"time"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/logging"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

const nothingToPurge = "history is already empty"

// Partition splits a client's bookings into upcoming and history.
// Upcoming ascends by (date, time), history descends.
func Partition(bookings []*models.Booking, today time.Time) *models.HistorySections {
	today = models.DateOf(today)
	sections := &models.HistorySections{}
	for _, b := range bookings {
		if !b.Date.Before(today) && b.Status != models.StatusCancelled && !b.Attended {
			sections.Upcoming = append(sections.Upcoming, b)
		} else {
			sections.History = append(sections.History, b)
		}
	}

	sort.SliceStable(sections.Upcoming, func(i, j int) bool {
		return sections.Upcoming[i].Before(sections.Upcoming[j])
	})
	sort.SliceStable(sections.History, func(i, j int) bool {
		return sections.History[j].Before(sections.History[i])
	})
	return sections
}

type HistoryService struct {
	repo   domain.BookingRepository
	views  *DayViews
	conn   domain.Connectivity
	collab Collaborators
	now    func() time.Time
	logger *zerolog.Logger
}

func NewHistoryService(repo domain.BookingRepository, views *DayViews, conn domain.Connectivity, collab Collaborators, loc *time.Location, logger *zerolog.Logger) *HistoryService {
	return &HistoryService{
		repo:   repo,
		views:  views,
		conn:   conn,
		collab: collab,
		now:    clock(loc),
		logger: logging.Component(logger, "history_service"),
	}
}

func (s *HistoryService) History(ctx context.Context, clientID int64) (*models.HistorySections, error) {
	if !online(s.conn) {
		return &models.HistorySections{}, nil
	}
	bookings, err := s.repo.GetUserBookings(ctx, clientID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", clientID).Msg("load history failed")
		return nil, domain.Remote("load history", err)
	}
	return Partition(bookings, s.now()), nil
}

// PurgeHistory deletes every past, cancelled or attended booking of the client at once.
func (s *HistoryService) PurgeHistory(ctx context.Context, clientID int64) (*models.PurgeResult, error) {
	if !online(s.conn) {
		return nil, domain.Offline("clear the history")
	}

	ids, err := s.repo.GetPurgeableBookingIDs(ctx, clientID, s.now())
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", clientID).Msg("collect purgeable bookings failed")
		return nil, domain.Remote("clear the history", err)
	}
	if len(ids) == 0 {
		return &models.PurgeResult{Deleted: 0, Message: nothingToPurge}, nil
	}

	deleted, err := s.repo.DeleteBookings(ctx, clientID, ids)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", clientID).Int("count", len(ids)).Msg("purge failed")
		return nil, domain.Remote("clear the history", err)
	}

	// Удалённые записи могут быть в любом загруженном дне.
	s.views.ClearAll()

	for _, id := range ids {
		if s.collab.Reminders != nil {
			if err := s.collab.Reminders.CancelReminders(ctx, id); err != nil {
				s.logger.Warn().Err(err).Int64("booking_id", id).Msg("reminder cancellation failed")
			}
		}
		if s.collab.Sync != nil {
			if err := s.collab.Sync.EnqueueTask(ctx, models.TaskDelete, &models.Booking{ID: id, UserID: clientID}); err != nil {
				s.logger.Error().Err(err).Int64("booking_id", id).Msg("mirror enqueue error")
			}
		}
	}

	s.logger.Info().Int64("user_id", clientID).Int64("deleted", deleted).Msg("history purged")
	publish(s.collab.Events, s.logger, events.EventHistoryPurged, events.HistoryEventPayload{UserID: clientID, Deleted: deleted})
	return &models.PurgeResult{Deleted: deleted, Message: "history cleared"}, nil
}
