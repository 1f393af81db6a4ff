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
	SLA          SLAConfig
	Distribution DistributionConfig
	Collection   CollectionConfig
	Notification NotificationConfig
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

// AuthConfig defines token verification parameters. Tokens are minted
// by the hosted auth backend; this service only verifies them.
type AuthConfig struct {
	JWTSecret string
}

// PriorityBudget carries the fallback SLA budget of one priority.
type PriorityBudget struct {
	FirstResponse time.Duration
	Resolution    time.Duration
}

// SLAConfig tunes deadline math.
type SLAConfig struct {
	AtRiskWindow   time.Duration
	PolicyCacheTTL time.Duration
	SweepInterval  time.Duration
	// DefaultBudgets keyed by priority name (P1..P4); used when no
	// policy row exists for a priority.
	DefaultBudgets map[string]PriorityBudget
}

// DistributionConfig tunes the assignment path.
type DistributionConfig struct {
	LockTTL time.Duration
	// Working hours window (local hours, [Start, End)) applied when a
	// rule sets working_hours_only.
	WorkingHoursStart int
	WorkingHoursEnd   int
}

// CollectionConfig names the fallback substrings used to discover the
// collection queues when no queue carries an explicit role.
type CollectionConfig struct {
	ContactQueueMatch       string
	EffectivationQueueMatch string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	budgets := map[string]PriorityBudget{}
	for priority, def := range map[string][2]string{
		"P1": {"1h", "4h"},
		"P2": {"4h", "8h"},
		"P3": {"8h", "24h"},
		"P4": {"24h", "72h"},
	} {
		budgets[priority] = PriorityBudget{
			FirstResponse: getEnvAsDuration("SLA_DEFAULT_"+priority+"_FIRST_RESPONSE", def[0]),
			Resolution:    getEnvAsDuration("SLA_DEFAULT_"+priority+"_RESOLUTION", def[1]),
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "crm-engine"),
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
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		SLA: SLAConfig{
			AtRiskWindow:   getEnvAsDuration("SLA_AT_RISK_WINDOW", "4h"),
			PolicyCacheTTL: getEnvAsDuration("SLA_POLICY_CACHE_TTL", "5m"),
			SweepInterval:  getEnvAsDuration("SLA_SWEEP_INTERVAL", "1m"),
			DefaultBudgets: budgets,
		},
		Distribution: DistributionConfig{
			LockTTL:           getEnvAsDuration("DISTRIBUTION_LOCK_TTL", "5s"),
			WorkingHoursStart: getEnvAsInt("DISTRIBUTION_WORKING_HOURS_START", 8),
			WorkingHoursEnd:   getEnvAsInt("DISTRIBUTION_WORKING_HOURS_END", 18),
		},
		Collection: CollectionConfig{
			ContactQueueMatch:       getEnv("COLLECTION_CONTACT_QUEUE_MATCH", "contato"),
			EffectivationQueueMatch: getEnv("COLLECTION_EFFECTIVATION_QUEUE_MATCH", "efetivacao"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
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

func getEnvAsDuration(key, fallback string) time.Duration {
	parsed, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		parsed, _ = time.ParseDuration(fallback)
	}
	return parsed
}
