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
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Storage      StorageConfig
	Functions    FunctionsConfig
	Notification NotificationConfig
	Realtime     RealtimeConfig
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

// AuthConfig defines identity provider parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	// SecureCookies marks the session marker cookie Secure.
	SecureCookies bool
	// ResetCodeTTLMinutes bounds how long an emailed reset code stays usable.
	ResetCodeTTLMinutes int
	// AdminEmail and AdminPassword bootstrap the administrator account at
	// startup. Both empty disables bootstrapping.
	AdminEmail    string
	AdminPassword string
	// RecoveryMaxRequests caps password recovery requests per client IP
	// within RecoveryWindowSeconds.
	RecoveryMaxRequests   int
	RecoveryWindowSeconds int
}

// StorageConfig selects and configures the attachment object store.
type StorageConfig struct {
	Backend         string // "s3" or "memory"
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	MaxUploadBytes  int64
}

// FunctionsConfig points at the callable functions. An empty BaseURL runs
// them in-process.
type FunctionsConfig struct {
	BaseURL            string
	APIKey             string
	IdentityAdminURL   string
	IdentityServiceKey string
}

// NotificationConfig configures outbound email.
type NotificationConfig struct {
	AdminEmail     string
	EmailFrom      string
	SendGridAPIKey string
	Workers        int
	QueueSize      int
}

// RealtimeConfig selects the change feed backend.
type RealtimeConfig struct {
	Backend string // "redis" or "memory"
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "it-helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
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
			SecureCookies:         getEnvAsBool("AUTH_SECURE_COOKIES", false),
			ResetCodeTTLMinutes:   getEnvAsInt("AUTH_RESET_CODE_TTL_MINUTES", 15),
			AdminEmail:            os.Getenv("AUTH_ADMIN_EMAIL"),
			AdminPassword:         os.Getenv("AUTH_ADMIN_PASSWORD"),
			RecoveryMaxRequests:   getEnvAsInt("AUTH_RECOVERY_MAX_REQUESTS", 10),
			RecoveryWindowSeconds: getEnvAsInt("AUTH_RECOVERY_WINDOW_SECONDS", 300),
		},
		Storage: StorageConfig{
			Backend:         getEnv("STORAGE_BACKEND", "memory"),
			Bucket:          getEnv("STORAGE_BUCKET", "ticket-attachments"),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:        os.Getenv("STORAGE_ENDPOINT"),
			AccessKeyID:     os.Getenv("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("STORAGE_SECRET_ACCESS_KEY"),
			PublicBaseURL:   os.Getenv("STORAGE_PUBLIC_BASE_URL"),
			MaxUploadBytes:  int64(getEnvAsInt("STORAGE_MAX_UPLOAD_BYTES", 10<<20)),
		},
		Functions: FunctionsConfig{
			BaseURL:            os.Getenv("FUNCTIONS_BASE_URL"),
			APIKey:             os.Getenv("FUNCTIONS_API_KEY"),
			IdentityAdminURL:   os.Getenv("IDENTITY_ADMIN_URL"),
			IdentityServiceKey: os.Getenv("IDENTITY_SERVICE_ROLE_KEY"),
		},
		Notification: NotificationConfig{
			AdminEmail:     getEnv("NOTIFY_ADMIN_EMAIL", "it-support@example.com"),
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 4),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
		Realtime: RealtimeConfig{
			Backend: getEnv("REALTIME_BACKEND", "redis"),
		},
	}

	if cfg.App.Env == "production" && cfg.Auth.JWTSecret == "dev-secret" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be set in production")
	}
	if (cfg.Auth.AdminEmail == "") != (cfg.Auth.AdminPassword == "") {
		return nil, fmt.Errorf("AUTH_ADMIN_EMAIL and AUTH_ADMIN_PASSWORD must be set together")
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

// AccessTokenTTL returns the token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RecoveryWindow returns the rate limit window of the recovery endpoints.
func (a AuthConfig) RecoveryWindow() time.Duration {
	if a.RecoveryWindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.RecoveryWindowSeconds) * time.Second
}

// ResetCodeTTL returns how long a reset code stays valid.
func (a AuthConfig) ResetCodeTTL() time.Duration {
	if a.ResetCodeTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(a.ResetCodeTTLMinutes) * time.Minute
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
