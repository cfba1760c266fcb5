// Command export writes the provider agenda of a date range into exports.path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenda/internal/config"
	"agenda/internal/database"
	"agenda/internal/export"
	"agenda/internal/logging"
	"agenda/internal/models"
	"agenda/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "export-main").Logger()

	today := models.DateOf(time.Now().In(cfg.Schedule.Location()))
	fromFlag := flag.String("from", today.Format(models.DateLayout), "first day, YYYY-MM-DD")
	toFlag := flag.String("to", today.AddDate(0, 0, 6).Format(models.DateLayout), "last day, YYYY-MM-DD")
	flag.Parse()

	from, err := models.ParseDate(*fromFlag)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	to, err := models.ParseDate(*toFlag)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("-to %s is before -from %s", *toFlag, *fromFlag)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookings := service.NewBookingService(db, service.NewDayViews(db), nil, service.Collaborators{}, service.ScheduleOptions{
		Template: cfg.Schedule.Slots,
		Location: cfg.Schedule.Location(),
	}, &logger)

	entries, err := bookings.AgendaRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load agenda: %w", err)
	}

	path, err := export.SaveAgenda(cfg.Exports.Path, from, to, entries)
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("bookings", len(entries)).Msg("agenda exported")
	return nil
}
