package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agenda/internal/api"
	"agenda/internal/availability"
	"agenda/internal/config"
	"agenda/internal/connectivity"
	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/google"
	"agenda/internal/identity"
	"agenda/internal/logging"
	"agenda/internal/metrics"
	"agenda/internal/notify"
	"agenda/internal/repository"
	"agenda/internal/service"
	"agenda/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := loadSlots(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus(&logger)
	if cfg.Kafka.Enabled() {
		writer := events.NewKafkaWriter(cfg.Kafka)
		defer writer.Close()
		events.NewKafkaRelay(writer, &logger).Attach(bus)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka relay attached")
	}

	metrics.Register()
	monitor := initMonitor(cfg, db, redisClient, &logger)

	collab := service.Collaborators{Events: bus}
	if syncWorker := initSyncWorker(ctx, cfg, db, redisClient, &logger); syncWorker != nil {
		collab.Sync = syncWorker
		go syncWorker.Start(ctx)
	}
	if cfg.Reminders.Enabled {
		collab.Reminders = notify.NewScheduler(db, cfg.Reminders, cfg.Schedule.Location(), &logger)
		dispatcher := notify.NewDispatcher(db, notify.NewLogNotifier(&logger), cfg.Reminders, worker.RetryPolicy{}, &logger)
		go func() {
			if err := dispatcher.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("reminder dispatcher stopped")
			}
		}()
	}

	views := service.NewDayViews(db)
	// без связи локальные представления дней сбрасываются
	monitor.Subscribe(func(online bool) {
		metrics.SetOnline(online)
		if !online {
			views.ClearAll()
		}
	})
	go monitor.Run(ctx)

	sessions := initSessions(cfg, redisClient, &logger)
	svc := api.Services{
		Identity: identity.NewService(db, sessions, bus, identity.Options{
			Secret:       cfg.Auth.JWTSecret,
			SessionTTL:   cfg.Auth.SessionDuration(),
			SignInLimit:  cfg.Auth.SignInAttempts,
			SignInWindow: cfg.Auth.SignInWindowDuration(),
		}, &logger),
		Bookings: service.NewBookingService(db, views, monitor, collab, service.ScheduleOptions{
			Template:           cfg.Schedule.Slots,
			Location:           cfg.Schedule.Location(),
			GuardDoubleBooking: cfg.Schedule.GuardDoubleBooking,
		}, &logger),
		Blocks:  service.NewBlockService(db, views, monitor, bus, cfg.Schedule.Slots, &logger),
		History: service.NewHistoryService(db, views, monitor, collab, cfg.Schedule.Location(), &logger),
	}

	backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
	go func() {
		if err := backup.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("backup service stopped")
		}
	}()

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, monitor, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	httpServer := api.NewHTTPServer(cfg, svc, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadSlots replaces the configured template with the slot file when one exists.
func loadSlots(cfg *config.Config, logger *zerolog.Logger) error {
	slotsPath := os.Getenv("SLOTS_PATH")
	if slotsPath == "" {
		slotsPath = "configs/slots.yaml"
	}
	data, err := os.ReadFile(slotsPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Strs("slots", cfg.Schedule.Slots).Msg("slot file not found, using configured template")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("slots_path", slotsPath).Msg("read slots")
		return err
	}

	var slotsConfig struct {
		Slots []string `yaml:"slots"`
	}
	if err := yaml.Unmarshal(data, &slotsConfig); err != nil {
		logger.Error().Err(err).Str("slots_path", slotsPath).Msg("parse slots")
		return err
	}
	if len(slotsConfig.Slots) == 0 {
		return nil
	}
	if err := availability.ValidateTemplate(slotsConfig.Slots); err != nil {
		logger.Error().Err(err).Str("slots_path", slotsPath).Msg("invalid slot template")
		return err
	}

	cfg.Schedule.Slots = slotsConfig.Slots
	logger.Info().Strs("slots", cfg.Schedule.Slots).Str("slots_path", slotsPath).Msg("slot template loaded")
	return nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("create database directory")
			return nil, err
		}
	}
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSessions(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository(cfg.Auth.SessionDuration())
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisSessionRepository(redisClient, cfg.Auth.SessionDuration())
	return repository.NewFailoverSessionRepository(primary, memory, logger)
}

func initMonitor(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *connectivity.Monitor {
	monitor := connectivity.NewMonitor(time.Duration(cfg.Monitoring.ProbeInterval)*time.Second, logger)
	monitor.AddProbe("sqlite", db.PingContext)
	if redisClient != nil {
		monitor.AddProbe("redis", func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		})
	}
	return monitor
}

func initSyncWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SyncWorker {
	if !cfg.Google.Enabled() {
		return nil
	}

	mirror, err := google.NewSheetsMirror(ctx, cfg.Google, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without mirror")
		return nil
	}
	if err := mirror.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without mirror")
		return nil
	}
	if err := mirror.WriteHeaders(ctx); err != nil {
		logger.Warn().Err(err).Msg("write sheet headers")
	}
	if err := mirror.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("warm up sheet row cache")
	}
	go mirror.RefreshCache(ctx, 10*time.Minute)

	logger.Info().Msg("google sheets mirror connected")
	retry := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	return worker.NewSyncWorker(db, mirror, redisClient, retry, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
