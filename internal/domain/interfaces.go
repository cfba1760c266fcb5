package domain

import (
	"context"
	"time"

	"agenda/internal/models"
)

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	CreateBookingGuarded(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingsByDate(ctx context.Context, date time.Time) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	UpdateBookingWithVersion(ctx context.Context, booking *models.Booking, fromVersion int64) error
	GetPurgeableBookingIDs(ctx context.Context, userID int64, today time.Time) ([]int64, error)
	DeleteBookings(ctx context.Context, userID int64, ids []int64) (int64, error)
}

type BlockRepository interface {
	CreateBlock(ctx context.Context, block *models.Block) error
	GetBlocksByDate(ctx context.Context, date time.Time) ([]*models.Block, error)
	DeleteBlock(ctx context.Context, id int64) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error)
}

type Repository interface {
	BookingRepository
	BlockRepository
	UserRepository
}

type SessionRepository interface {
	GetSession(ctx context.Context, tokenID string) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, tokenID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, booking *models.Booking) error
	CancelReminders(ctx context.Context, bookingID int64) error
}

// Connectivity exposes the shared online/offline state.
type Connectivity interface {
	Online() bool
}

type BookingService interface {
	Availability(ctx context.Context, date time.Time) ([]string, error)
	CreateBooking(ctx context.Context, clientID int64, date time.Time, slot string) (*models.Booking, error)
	CancelByClient(ctx context.Context, clientID, bookingID int64) (*models.Booking, error)
	CancelByProvider(ctx context.Context, bookingID int64, reason string) (*models.Booking, error)
	MarkAttended(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	DayAgenda(ctx context.Context, date time.Time) ([]*models.AgendaEntry, error)
	BookingsInRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	AgendaRange(ctx context.Context, start, end time.Time) ([]*models.AgendaEntry, error)
}

type BlockService interface {
	ListBlocks(ctx context.Context, date time.Time) ([]*models.Block, error)
	CreateBlock(ctx context.Context, date time.Time, blockType, slot string) (*models.Block, error)
	RemoveBlock(ctx context.Context, date time.Time, blockType, slot string) error
}

type HistoryService interface {
	History(ctx context.Context, clientID int64) (*models.HistorySections, error)
	PurgeHistory(ctx context.Context, clientID int64) (*models.PurgeResult, error)
}
