package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Routing    RoutingConfig
	Sync       SyncConfig
	Exports    ExportsConfig
	Cleanup    CleanupConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig tunes the appointment engine.
type SchedulingConfig struct {
	BusinessDayStart         string
	BusinessDayEnd           string
	SlotStep                 time.Duration
	RecurrenceHorizon        time.Duration
	RecurrenceMaxOccurrences int
	ExceptionsConsumeBudget  bool
	AvailabilityCacheTTL     time.Duration
	StatisticsCacheTTL       time.Duration
}

// RoutingConfig tunes the route optimizer's travel model.
type RoutingConfig struct {
	DefaultVehicle     string
	AvoidHighways      bool
	FuelKmPerLiter     float64
	DefaultStopMinutes int
}

// SyncConfig governs the calendar sync worker pool.
type SyncConfig struct {
	Enabled     bool
	Workers     int
	MaxRetries  int
	RetryDelay  time.Duration
	SyncTimeout time.Duration
}

// ExportsConfig gates schedule/route exports.
type ExportsConfig struct {
	Enabled bool
}

// CleanupConfig controls retention of terminal appointments.
type CleanupConfig struct {
	Enabled   bool
	Retention time.Duration
	Interval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		BusinessDayStart:         v.GetString("BUSINESS_DAY_START"),
		BusinessDayEnd:           v.GetString("BUSINESS_DAY_END"),
		SlotStep:                 parseDuration(v.GetString("SLOT_STEP"), 30*time.Minute),
		RecurrenceHorizon:        parseDuration(v.GetString("RECURRENCE_HORIZON"), 365*24*time.Hour),
		RecurrenceMaxOccurrences: v.GetInt("RECURRENCE_MAX_OCCURRENCES"),
		ExceptionsConsumeBudget:  v.GetBool("RECURRENCE_EXCEPTIONS_CONSUME_BUDGET"),
		AvailabilityCacheTTL:     parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), time.Minute),
		StatisticsCacheTTL:       parseDuration(v.GetString("STATISTICS_CACHE_TTL"), time.Minute),
	}

	cfg.Routing = RoutingConfig{
		DefaultVehicle:     v.GetString("ROUTING_DEFAULT_VEHICLE"),
		AvoidHighways:      v.GetBool("ROUTING_AVOID_HIGHWAYS"),
		FuelKmPerLiter:     v.GetFloat64("ROUTING_FUEL_KM_PER_LITER"),
		DefaultStopMinutes: v.GetInt("ROUTING_DEFAULT_STOP_MINUTES"),
	}

	cfg.Sync = SyncConfig{
		Enabled:     v.GetBool("ENABLE_CALENDAR_SYNC"),
		Workers:     v.GetInt("SYNC_WORKERS"),
		MaxRetries:  v.GetInt("SYNC_MAX_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("SYNC_RETRY_DELAY"), 5*time.Second),
		SyncTimeout: parseDuration(v.GetString("SYNC_TIMEOUT"), 30*time.Second),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	cfg.Cleanup = CleanupConfig{
		Enabled:   v.GetBool("ENABLE_CLEANUP"),
		Retention: parseDuration(v.GetString("CLEANUP_RETENTION"), 90*24*time.Hour),
		Interval:  parseDuration(v.GetString("CLEANUP_INTERVAL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "fieldops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BUSINESS_DAY_START", "08:00")
	v.SetDefault("BUSINESS_DAY_END", "18:00")
	v.SetDefault("SLOT_STEP", "30m")
	v.SetDefault("RECURRENCE_HORIZON", "8760h")
	v.SetDefault("RECURRENCE_MAX_OCCURRENCES", 52)
	v.SetDefault("RECURRENCE_EXCEPTIONS_CONSUME_BUDGET", true)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "1m")
	v.SetDefault("STATISTICS_CACHE_TTL", "1m")

	v.SetDefault("ROUTING_DEFAULT_VEHICLE", "van")
	v.SetDefault("ROUTING_AVOID_HIGHWAYS", false)
	v.SetDefault("ROUTING_FUEL_KM_PER_LITER", 10.0)
	v.SetDefault("ROUTING_DEFAULT_STOP_MINUTES", 15)

	v.SetDefault("ENABLE_CALENDAR_SYNC", false)
	v.SetDefault("SYNC_WORKERS", 2)
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_RETRY_DELAY", "5s")
	v.SetDefault("SYNC_TIMEOUT", "30s")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("ENABLE_CLEANUP", false)
	v.SetDefault("CLEANUP_RETENTION", "2160h")
	v.SetDefault("CLEANUP_INTERVAL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
