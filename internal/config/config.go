package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"agenda/internal/availability"
	"agenda/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Reminders  ReminderConfig   `yaml:"reminders"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig guards the whole API with client keys, before any user session.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AuthConfig covers user sign-in: token signing and session lifetime.
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	SessionTTL     int    `yaml:"session_ttl"` // seconds
	SignInAttempts int    `yaml:"sign_in_attempts"`
	SignInWindow   int    `yaml:"sign_in_window"` // seconds
}

func (a AuthConfig) SessionDuration() time.Duration {
	return time.Duration(a.SessionTTL) * time.Second
}

func (a AuthConfig) SignInWindowDuration() time.Duration {
	return time.Duration(a.SignInWindow) * time.Second
}

type ScheduleConfig struct {
	Slots              []string `yaml:"slots"`
	Timezone           string   `yaml:"timezone"`
	GuardDoubleBooking bool     `yaml:"guard_double_booking"`
}

// Location resolves the timezone; unknown names fall back to UTC after Validate.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ReminderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Hour          int    `yaml:"hour"`
	DaysBefore    int    `yaml:"days_before"`
	Schedule      string `yaml:"schedule"` // cron expression of the dispatch job
	MaxAttempts   int    `yaml:"max_attempts"`
	BatchSize     int    `yaml:"batch_size"`
	MessageFormat string `yaml:"message_format"`
}

type CalendarConfig struct {
	DurationMinutes int    `yaml:"duration_minutes"`
	Summary         string `yaml:"summary"`
	Location        string `yaml:"location"`
	ProductID       string `yaml:"product_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // cron expression, e.g. "@daily" or "0 3 * * *"
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	ProbeInterval     int  `yaml:"probe_interval"` // seconds
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
	SheetName             string `yaml:"sheet_name"`
}

func (g GoogleConfig) Enabled() bool {
	return g.GoogleCredentialsFile != "" && g.BookingSpreadSheetID != ""
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("unknown schedule timezone %q: %w", c.Schedule.Timezone, err)
		}
	}
	if c.Reminders.Hour < 0 || c.Reminders.Hour > 23 {
		return fmt.Errorf("reminder hour %d out of range", c.Reminders.Hour)
	}
	return availability.ValidateTemplate(c.Schedule.Slots)
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Monitoring.ProbeInterval == 0 {
		c.Monitoring.ProbeInterval = 5
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = models.DefaultSessionTTL
	}
	if c.Auth.SignInAttempts == 0 {
		c.Auth.SignInAttempts = models.SignInAttempts
	}
	if c.Auth.SignInWindow == 0 {
		c.Auth.SignInWindow = models.SignInWindow
	}

	if len(c.Schedule.Slots) == 0 {
		c.Schedule.Slots = append([]string(nil), models.DefaultSlotTemplate...)
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}

	if c.Reminders.Hour == 0 {
		c.Reminders.Hour = models.ReminderHour
	}
	if c.Reminders.DaysBefore == 0 {
		c.Reminders.DaysBefore = 1
	}
	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = "@every 1m"
	}
	if c.Reminders.MaxAttempts == 0 {
		c.Reminders.MaxAttempts = 5
	}
	if c.Reminders.BatchSize == 0 {
		c.Reminders.BatchSize = 50
	}
	if c.Reminders.MessageFormat == "" {
		c.Reminders.MessageFormat = "Reminder: you have an appointment on %s at %s"
	}

	if c.Calendar.DurationMinutes == 0 {
		c.Calendar.DurationMinutes = models.DefaultEventDuration
	}
	if c.Calendar.Summary == "" {
		c.Calendar.Summary = "Appointment"
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = "-//agenda//bookings//EN"
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Bookings"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "agenda.events"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
