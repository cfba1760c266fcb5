package models

const DateLayout = "2006-01-02"

const (
	// ReminderHour час, в который отправляются напоминания (накануне визита)
	ReminderHour = 9

	// DefaultSessionTTL время жизни сессии в секундах
	DefaultSessionTTL = 7 * 24 * 60 * 60

	// SignInAttempts количество попыток входа в окне
	SignInAttempts = 10

	// SignInWindow окно ограничения попыток входа
	SignInWindow = 15 * 60 // 15 минут в секундах

	// DefaultEventDuration длительность события календаря в минутах
	DefaultEventDuration = 60

	// WorkerQueueSize размер очереди воркера зеркала
	WorkerQueueSize = 128
)

// DefaultSlotTemplate is the provider's working day; note the lunch gap.
var DefaultSlotTemplate = []string{
	"09:00", "10:00", "11:00", "12:00",
	"14:00", "15:00", "16:00", "17:00",
}
