package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/sla-service/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Escalation   EscalationConfig
	Telemetry    TelemetryConfig
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

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the
// snapshot cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token validation parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// NotificationConfig configures outbound notification delivery.
type NotificationConfig struct {
	WebhookURL          string
	TimeoutSeconds      int
	RatePerSecond       float64
	Burst               int
	BreakerFailures     int
	BreakerOpenSeconds  int
	BreakerHalfOpenReqs int
}

// SLAConfig holds per-priority SLA targets.
type SLAConfig struct {
	Targets            map[domain.Priority]time.Duration
	SnapshotTTLSeconds int
}

// EscalationConfig controls recipients of rule-driven escalations and the
// background sweep.
type EscalationConfig struct {
	BreachRecipient      string
	AtRiskRecipient      string
	SweepIntervalSeconds int
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint
// disables tracing.
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	SampleRatio  float64
}

var defaultTargetMinutes = map[domain.Priority]int{
	domain.PriorityLow:    3 * 24 * 60,
	domain.PriorityMedium: 24 * 60,
	domain.PriorityHigh:   8 * 60,
	domain.PriorityUrgent: 2 * 60,
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	targets := make(map[domain.Priority]time.Duration, len(defaultTargetMinutes))
	for _, p := range domain.Priorities() {
		key := "SLA_TARGET_" + string(p) + "_MINUTES"
		minutes := getEnvAsInt(key, defaultTargetMinutes[p])
		if minutes <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", key)
		}
		targets[p] = time.Duration(minutes) * time.Minute
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLE_RATIO: %w", err)
	}
	notifyRate, err := strconv.ParseFloat(getEnv("NOTIFY_RATE_PER_SECOND", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_RATE_PER_SECOND: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-service"),
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
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_JWT_ISSUER", "sla-service"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			WebhookURL:          getEnv("NOTIFY_WEBHOOK_URL", ""),
			TimeoutSeconds:      getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5),
			RatePerSecond:       notifyRate,
			Burst:               getEnvAsInt("NOTIFY_BURST", 10),
			BreakerFailures:     getEnvAsInt("NOTIFY_BREAKER_FAILURES", 5),
			BreakerOpenSeconds:  getEnvAsInt("NOTIFY_BREAKER_OPEN_SECONDS", 30),
			BreakerHalfOpenReqs: getEnvAsInt("NOTIFY_BREAKER_HALF_OPEN_REQUESTS", 1),
		},
		SLA: SLAConfig{
			Targets:            targets,
			SnapshotTTLSeconds: getEnvAsInt("SLA_SNAPSHOT_TTL_SECONDS", 15),
		},
		Escalation: EscalationConfig{
			BreachRecipient:      getEnv("ESCALATION_BREACH_RECIPIENT", ""),
			AtRiskRecipient:      getEnv("ESCALATION_AT_RISK_RECIPIENT", ""),
			SweepIntervalSeconds: getEnvAsInt("ESCALATION_SWEEP_INTERVAL_SECONDS", 0),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  sampleRatio,
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

// SnapshotTTL returns how long read models may be served from cache.
func (s SLAConfig) SnapshotTTL() time.Duration {
	if s.SnapshotTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.SnapshotTTLSeconds) * time.Second
}

// SweepInterval returns the escalation sweep period; zero disables it.
func (e EscalationConfig) SweepInterval() time.Duration {
	if e.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(e.SweepIntervalSeconds) * time.Second
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
