package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Classifier ClassifierConfig
	Providers  ProviderConfig
	Escalation EscalationConfig
	Cleanup    CleanupConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// ClassifierConfig points at the AI classification provider.
type ClassifierConfig struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
	MaxAttempts    int
}

// ProviderConfig holds outbound notification channel endpoints. An empty
// endpoint means the channel provider is unconfigured and deliveries on
// that channel are skipped.
type ProviderConfig struct {
	EmailEndpoint  string
	EmailFrom      string
	SMSEndpoint    string
	PushEndpoint   string
	TimeoutSeconds int
}

// EscalationConfig controls the SLA sweep schedule.
type EscalationConfig struct {
	IntervalMinutes int
	LockTTLSeconds  int
	MaxAttempts     int
}

// CleanupConfig controls notification retention sweeps.
type CleanupConfig struct {
	IntervalHours    int
	DeleteAfterDays  int
	PurgeAfterDays   int
	ArchiveAfterDays int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "maintenance-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Classifier: ClassifierConfig{
			Endpoint:       os.Getenv("CLASSIFIER_ENDPOINT"),
			APIKey:         os.Getenv("CLASSIFIER_API_KEY"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 15),
			MaxAttempts:    getEnvAsInt("CLASSIFIER_MAX_ATTEMPTS", 3),
		},
		Providers: ProviderConfig{
			EmailEndpoint:  os.Getenv("NOTIFY_EMAIL_ENDPOINT"),
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMSEndpoint:    os.Getenv("NOTIFY_SMS_ENDPOINT"),
			PushEndpoint:   os.Getenv("NOTIFY_PUSH_ENDPOINT"),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
		},
		Escalation: EscalationConfig{
			IntervalMinutes: getEnvAsInt("ESCALATION_INTERVAL_MINUTES", 30),
			LockTTLSeconds:  getEnvAsInt("ESCALATION_LOCK_TTL_SECONDS", 300),
			MaxAttempts:     getEnvAsInt("ESCALATION_MAX_ATTEMPTS", 3),
		},
		Cleanup: CleanupConfig{
			IntervalHours:    getEnvAsInt("CLEANUP_INTERVAL_HOURS", 24),
			DeleteAfterDays:  getEnvAsInt("CLEANUP_DELETE_AFTER_DAYS", 90),
			PurgeAfterDays:   getEnvAsInt("CLEANUP_PURGE_AFTER_DAYS", 30),
			ArchiveAfterDays: getEnvAsInt("CLEANUP_ARCHIVE_AFTER_DAYS", 14),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Interval returns the sweep period.
func (e EscalationConfig) Interval() time.Duration {
	if e.IntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(e.IntervalMinutes) * time.Minute
}

// Interval returns the cleanup period.
func (c CleanupConfig) Interval() time.Duration {
	if c.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.IntervalHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
