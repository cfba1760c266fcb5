package notify

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/config"
	"agenda/internal/metrics"
	"agenda/internal/models"
	"agenda/internal/worker"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Notifier delivers a reminder to its user.
type Notifier interface {
	Notify(ctx context.Context, r *models.Reminder) error
}

// LogNotifier "delivers" reminders to the log.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, r *models.Reminder) error {
	n.logger.Info().
		Int64("reminder_id", r.ID).
		Int64("booking_id", r.BookingID).
		Int64("user_id", r.UserID).
		Str("message", r.Message).
		Msg("reminder delivered")
	return nil
}

// Dispatcher periodically sends due reminders.
type Dispatcher struct {
	store       ReminderStore
	notifier    Notifier
	cfg         config.ReminderConfig
	retryPolicy worker.RetryPolicy
	now         func() time.Time
	logger      *zerolog.Logger
}

func NewDispatcher(store ReminderStore, notifier Notifier, cfg config.ReminderConfig, retry worker.RetryPolicy, logger *zerolog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	retry.MaxRetries = cfg.MaxAttempts
	if retry.InitialDelay == 0 {
		retry.InitialDelay = time.Minute
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		retryPolicy: retry,
		now:         time.Now,
		logger:      logger,
	}
}

// Start runs the dispatch job on the configured cron schedule until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	schedule, err := cron.ParseStandard(d.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", d.cfg.Schedule, err)
	}

	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("reminder dispatch failed")
		}
	}))
	c.Start()
	d.logger.Info().Str("schedule", d.cfg.Schedule).Msg("reminder dispatcher started")

	<-ctx.Done()
	<-c.Stop().Done()
	d.logger.Info().Msg("reminder dispatcher stopped")
	return nil
}

// RunOnce sends one batch of due reminders and returns how many were delivered.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.GetDueReminders(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		if err := d.notifier.Notify(ctx, r); err != nil {
			d.recordFailure(ctx, r, err, now)
			continue
		}
		if err := d.store.MarkReminderSent(ctx, r.ID); err != nil {
			d.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("mark reminder sent")
			continue
		}
		metrics.IncReminder("sent")
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, r *models.Reminder, cause error, now time.Time) {
	attempt := r.Attempts + 1
	var next *time.Time
	if t, ok := d.retryPolicy.NextAttempt(now, attempt); ok {
		next = &t
	}

	ev, result := d.logger.Warn(), "retry"
	if next == nil {
		ev, result = d.logger.Error(), "failed"
	}
	metrics.IncReminder(result)
	ev.Err(cause).Int64("reminder_id", r.ID).Int("attempt", attempt).Msg("reminder delivery failed")

	if err := d.store.MarkReminderAttemptFailed(ctx, r.ID, cause.Error(), next); err != nil {
		d.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("record reminder failure")
	}
}
