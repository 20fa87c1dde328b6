package config

import (
	"errors"
	"os"
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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Finance       FinanceConfig
	Scheduler     SchedulerConfig
	Notifications NotificationConfig
	Exports       ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is optional; when disabled the batch lock and reminder cache
// stay in-process.
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize  int
	OpTimeout time.Duration
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FinanceConfig tunes the late-fee batch and reminder defaults.
type FinanceConfig struct {
	Currency            string
	LateFeeLockTTL      time.Duration
	ReminderWindowDays  int
	ReminderOverdueOnly bool
	ReminderCacheTTL    time.Duration
}

// SchedulerConfig controls the in-process daily jobs.
type SchedulerConfig struct {
	Enabled      bool
	RunHour      int
	PollInterval time.Duration
}

// NotificationConfig sizes the reminder dispatch queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
}

// ExportConfig sets where generated reminder exports are written.
type ExportConfig struct {
	Dir string
	TTL time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
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
		Enabled:   v.GetBool("REDIS_ENABLED"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		PoolSize:  v.GetInt("REDIS_POOL_SIZE"),
		OpTimeout: v.GetDuration("REDIS_OP_TIMEOUT"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Finance = FinanceConfig{
		Currency:            strings.ToUpper(v.GetString("CURRENCY")),
		LateFeeLockTTL:      parseDuration(v.GetString("LATE_FEE_LOCK_TTL"), 30*time.Minute),
		ReminderWindowDays:  v.GetInt("REMINDER_WINDOW_DAYS"),
		ReminderOverdueOnly: v.GetBool("REMINDER_OVERDUE_ONLY"),
		ReminderCacheTTL:    parseDuration(v.GetString("REMINDER_CACHE_TTL"), 5*time.Minute),
	}
	if cfg.Finance.ReminderWindowDays < 0 {
		cfg.Finance.ReminderWindowDays = 0
	}

	runHour := v.GetInt("SCHEDULER_RUN_HOUR")
	if runHour < 0 || runHour > 23 {
		runHour = 1
	}
	cfg.Scheduler = SchedulerConfig{
		Enabled:      v.GetBool("ENABLE_SCHEDULER"),
		RunHour:      runHour,
		PollInterval: parseDuration(v.GetString("SCHEDULER_POLL_INTERVAL"), time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER"),
	}

	cfg.Exports = ExportConfig{
		Dir: v.GetString("EXPORT_DIR"),
		TTL: parseDuration(v.GetString("EXPORT_TTL"), 72*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_finance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_OP_TIMEOUT", "2s")

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CURRENCY", "IDR")
	v.SetDefault("LATE_FEE_LOCK_TTL", "30m")
	v.SetDefault("REMINDER_WINDOW_DAYS", 7)
	v.SetDefault("REMINDER_OVERDUE_ONLY", false)
	v.SetDefault("REMINDER_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("SCHEDULER_RUN_HOUR", 1)
	v.SetDefault("SCHEDULER_POLL_INTERVAL", "1m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER", 64)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_TTL", "72h")
}

// isMissingFile treats an absent .env as "use environment only".
func isMissingFile(err error) bool {
	return errors.Is(err, os.ErrNotExist)
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
