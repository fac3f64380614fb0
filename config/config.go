package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Payroll   PayrollConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// PayrollConfig holds engine-level settings that are not part of the
// stored policy.
type PayrollConfig struct {
	Timezone         string
	PunchMinInterval time.Duration
}

// SchedulerConfig controls the periodic recompute job.
type SchedulerConfig struct {
	Enabled        bool
	Spec           string
	ClosingDayOnly bool
}

// Load reads an optional .env file (or the given files) and the process
// environment. A missing file is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	config := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	config.Database = DatabaseConfig{
		Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		Path:     getEnv("DB_PATH", "./payroll.db"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "payroll"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	interval, err := time.ParseDuration(getEnv("PUNCH_MIN_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUNCH_MIN_INTERVAL: %w", err)
	}
	config.Payroll = PayrollConfig{
		Timezone:         getEnv("PAYROLL_TIMEZONE", "Asia/Tokyo"),
		PunchMinInterval: interval,
	}

	config.Scheduler = SchedulerConfig{
		Enabled:        getEnvBool("SCHEDULER_ENABLED", false),
		Spec:           getEnv("SCHEDULER_SPEC", "0 2 * * *"),
		ClosingDayOnly: getEnvBool("SCHEDULER_CLOSING_DAY_ONLY", false),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT %d out of range", c.App.Port)
	}
	if _, err := time.LoadLocation(c.Payroll.Timezone); err != nil {
		return fmt.Errorf("invalid PAYROLL_TIMEZONE %q", c.Payroll.Timezone)
	}
	if c.Payroll.PunchMinInterval < 0 {
		return fmt.Errorf("PUNCH_MIN_INTERVAL must not be negative")
	}
	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		return fmt.Errorf("SCHEDULER_SPEC is required when the scheduler is enabled")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Location returns the configured payroll timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Payroll.Timezone)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
