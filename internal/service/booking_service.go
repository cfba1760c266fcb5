package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"agenda/internal/availability"
	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/logging"
	"agenda/internal/metrics"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

// Agenda placeholders: a known client without a phone differs from a missing client.
const (
	unknownClient  = "Unknown client"
	unknownContact = "?"
	phoneMissing   = "Not provided"
)

// Collaborators are the fire-and-forget side effects of booking changes. Any of them may be nil.
type Collaborators struct {
	Events    domain.EventPublisher
	Sync      domain.SyncWorker
	Reminders domain.ReminderScheduler
}

// ScheduleOptions configure slot resolution.
type ScheduleOptions struct {
	Template []string
	Location *time.Location
	// GuardDoubleBooking re-checks slot occupancy inside the insert transaction.
	GuardDoubleBooking bool
}

type BookingService struct {
	repo     domain.Repository
	views    *DayViews
	conn     domain.Connectivity
	collab   Collaborators
	template []string
	guard    bool
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, views *DayViews, conn domain.Connectivity, collab Collaborators, opts ScheduleOptions, logger *zerolog.Logger) *BookingService {
	template := opts.Template
	if len(template) == 0 {
		template = models.DefaultSlotTemplate
	}
	return &BookingService{
		repo:     repo,
		views:    views,
		conn:     conn,
		collab:   collab,
		template: template,
		guard:    opts.GuardDoubleBooking,
		now:      clock(opts.Location),
		logger:   logging.Component(logger, "booking_service"),
	}
}

// Availability returns the bookable slots of date. Offline the result is empty.
func (s *BookingService) Availability(ctx context.Context, date time.Time) ([]string, error) {
	if !online(s.conn) {
		s.views.Clear(date)
		return []string{}, nil
	}

	view, err := s.views.Load(ctx, date)
	if err != nil {
		return nil, s.remote("load availability", err)
	}
	return availability.ResolveAvailableSlots(s.template, date, view.Bookings, view.Blocks, s.now()), nil
}

// CreateBooking books slot on date for the client if it is still available.
func (s *BookingService) CreateBooking(ctx context.Context, clientID int64, date time.Time, slot string) (*models.Booking, error) {
	if !online(s.conn) {
		return nil, domain.Offline("book a slot")
	}
	if s.pastDate(date) {
		return nil, domain.Invalid("date", "date is in the past")
	}
	if !availability.InTemplate(s.template, slot) {
		return nil, domain.Invalid("time", "not a slot of the schedule")
	}

	view, err := s.views.Load(ctx, date)
	if err != nil {
		return nil, s.remote("load availability", err)
	}
	if !availability.IsBookable(s.template, date, slot, view.Bookings, view.Blocks, s.now()) {
		return nil, domain.Invalid("time", "slot is no longer available")
	}

	booking := models.NewBooking(clientID, date, slot)
	err = s.views.Cell(date).Update(ctx,
		func(d DayView) DayView { return d.withBooking(booking) },
		func(d DayView) DayView { return d.withoutBooking(booking) },
		func(ctx context.Context) error {
			if s.guard {
				return s.repo.CreateBookingGuarded(ctx, booking)
			}
			return s.repo.CreateBooking(ctx, booking)
		})
	if err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			return nil, domain.Invalid("time", "slot is no longer available")
		}
		return nil, s.remote("create booking", err)
	}

	s.logger.Info().Int64("booking_id", booking.ID).Int64("user_id", clientID).
		Str("date", booking.Date.Format(models.DateLayout)).Str("time", slot).Msg("booking created")

	if s.collab.Reminders != nil {
		if err := s.collab.Reminders.ScheduleReminder(ctx, booking); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("reminder scheduling failed")
		}
	}
	s.afterChange(ctx, events.EventBookingCreated, booking)
	return booking, nil
}

// CancelByClient cancels the client's own open booking.
func (s *BookingService) CancelByClient(ctx context.Context, clientID, bookingID int64) (*models.Booking, error) {
	if !online(s.conn) {
		return nil, domain.Offline("cancel a booking")
	}
	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.UserID != clientID {
		return nil, domain.NotFound("booking", strconv.FormatInt(bookingID, 10))
	}
	// провайдер может отменять и прошедшие записи, клиент нет
	if s.pastDate(current.Date) {
		return nil, domain.Invalid("date", "past bookings cannot be cancelled")
	}
	return s.transition(ctx, current, models.Transition{Action: models.ActionClientCancel, At: s.now()})
}

// pastDate reports whether date is before today in the schedule location.
func (s *BookingService) pastDate(date time.Time) bool {
	return models.DateOf(date).Before(models.DateOf(s.now()))
}

// CancelByProvider cancels an open booking with a mandatory reason.
func (s *BookingService) CancelByProvider(ctx context.Context, bookingID int64, reason string) (*models.Booking, error) {
	if !online(s.conn) {
		return nil, domain.Offline("cancel a booking")
	}
	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, current, models.Transition{Action: models.ActionProviderCancel, Reason: reason, At: s.now()})
}

// MarkAttended confirms the client came; the booking is immutable afterwards.
func (s *BookingService) MarkAttended(ctx context.Context, bookingID int64) (*models.Booking, error) {
	if !online(s.conn) {
		return nil, domain.Offline("confirm attendance")
	}
	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, current, models.Transition{Action: models.ActionMarkAttended, At: s.now()})
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	if !online(s.conn) {
		return nil, domain.Offline("load the booking")
	}
	return s.load(ctx, id)
}

// DayAgenda lists the bookings of date by time with the clients' contacts.
func (s *BookingService) DayAgenda(ctx context.Context, date time.Time) ([]*models.AgendaEntry, error) {
	if !online(s.conn) {
		return []*models.AgendaEntry{}, nil
	}

	bookings, err := s.repo.GetBookingsByDate(ctx, date)
	if err != nil {
		return nil, s.remote("load agenda", err)
	}
	return s.withClients(ctx, bookings)
}

// BookingsInRange returns the bookings of [start, end] ordered by date and time.
func (s *BookingService) BookingsInRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	if !online(s.conn) {
		return []*models.Booking{}, nil
	}
	bookings, err := s.repo.GetBookingsByDateRange(ctx, start, end)
	if err != nil {
		return nil, s.remote("load bookings", err)
	}
	return bookings, nil
}

// AgendaRange is DayAgenda over [start, end].
func (s *BookingService) AgendaRange(ctx context.Context, start, end time.Time) ([]*models.AgendaEntry, error) {
	bookings, err := s.BookingsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return s.withClients(ctx, bookings)
}

func (s *BookingService) withClients(ctx context.Context, bookings []*models.Booking) ([]*models.AgendaEntry, error) {
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.UserID)
	}
	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, s.remote("load clients", err)
	}

	entries := make([]*models.AgendaEntry, 0, len(bookings))
	for _, b := range bookings {
		entry := &models.AgendaEntry{
			Booking:     b,
			ClientName:  unknownClient,
			ClientEmail: unknownContact,
			ClientPhone: unknownContact,
		}
		if u, ok := users[b.UserID]; ok {
			entry.ClientName = orDefault(u.Name, unknownClient)
			entry.ClientEmail = orDefault(u.Email, unknownContact)
			entry.ClientPhone = orDefault(u.Phone, phoneMissing)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *BookingService) load(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, domain.NotFound("booking", strconv.FormatInt(id, 10))
		}
		return nil, s.remote("load booking", err)
	}
	return b, nil
}

func (s *BookingService) transition(ctx context.Context, current *models.Booking, t models.Transition) (*models.Booking, error) {
	next, err := models.ApplyTransition(*current, t)
	if err != nil {
		if errors.Is(err, models.ErrReasonRequired) {
			return nil, domain.Invalid("reason", err.Error())
		}
		return nil, err
	}

	updated := &next
	err = s.views.Cell(current.Date).Update(ctx,
		func(d DayView) DayView { return d.replaceBooking(updated) },
		func(d DayView) DayView { return d.swapBooking(updated, current) },
		func(ctx context.Context) error {
			return s.repo.UpdateBookingWithVersion(ctx, updated, current.Version)
		})
	if err != nil {
		return nil, s.remote("update booking", err)
	}

	s.logger.Info().Int64("booking_id", updated.ID).Str("action", string(t.Action)).Msg("booking updated")

	eventType := events.EventBookingAttended
	if updated.Status == models.StatusCancelled {
		eventType = events.EventBookingCancelled
		if s.collab.Reminders != nil {
			if err := s.collab.Reminders.CancelReminders(ctx, updated.ID); err != nil {
				s.logger.Warn().Err(err).Int64("booking_id", updated.ID).Msg("reminder cancellation failed")
			}
		}
	}
	s.afterChange(ctx, eventType, updated)
	return updated, nil
}

func (s *BookingService) afterChange(ctx context.Context, eventType string, b *models.Booking) {
	metrics.IncBooking(eventType)
	if s.collab.Sync != nil {
		if err := s.collab.Sync.EnqueueTask(ctx, models.TaskUpsert, b); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("mirror enqueue error")
		}
	}
	publish(s.collab.Events, s.logger, eventType, bookingPayload(b, s.now()))
}

func (s *BookingService) remote(op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Msg("remote call failed")
	return domain.Remote(op, err)
}

func bookingPayload(b *models.Booking, at time.Time) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:   b.ID,
		UserID:      b.UserID,
		Date:        b.Date.Format(models.DateLayout),
		Time:        b.Time,
		Status:      b.Status,
		Attended:    b.Attended,
		CancelledBy: b.CancelledBy,
		Reason:      b.CancellationReason,
		At:          at,
	}
}
