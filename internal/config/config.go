// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Env       string
	HTTP      HTTPConfig
	GRPCAddr  string
	Database  DatabaseConfig
	Auth      AuthConfig
	Crypto    CryptoConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Messaging MessagingConfig
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr         string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// AuthConfig holds token and actor resolution settings.
type AuthConfig struct {
	Secret         string
	TokenTTL       time.Duration
	ActorCacheSize int
	ActorCacheTTL  time.Duration
}

// CryptoConfig holds the message encryption secret. The key itself is derived once at startup.
type CryptoConfig struct {
	MessageKey string
}

// GatewayConfig holds TIMS bot gateway settings.
type GatewayConfig struct {
	URL             string
	UUID            string
	AccessToken     string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	Burst     int
	PerSecond int
	Window    time.Duration
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables audit event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// MessagingConfig toggles optional messaging behavior.
type MessagingConfig struct {
	ReadTracking bool
}

const DefaultGatewayURL = "https://ms.tims.gov.az/v1/bot/sendBotMessage"

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ELAQE_ENV", "production"),
		HTTP: HTTPConfig{
			Addr:         getEnv("ELAQE_HTTP_ADDR", ":8080"),
			MaxBodyBytes: int64(getEnvAsInt("ELAQE_MAX_BODY_BYTES", 1<<20)),
			ReadTimeout:  getEnvAsDuration("ELAQE_HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("ELAQE_HTTP_WRITE_TIMEOUT", 60*time.Second),
		},
		GRPCAddr: getEnv("ELAQE_GRPC_ADDR", ":9090"),
		Database: DatabaseConfig{
			DSN:             getEnv("ELAQE_PG_DSN", ""),
			MaxOpenConns:    getEnvAsInt("ELAQE_PG_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("ELAQE_PG_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("ELAQE_PG_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrateOnStart:  getEnvAsBool("ELAQE_MIGRATE_ON_START", false),
		},
		Auth: AuthConfig{
			Secret:         getEnv("ELAQE_AUTH_SECRET", ""),
			TokenTTL:       getEnvAsDuration("ELAQE_TOKEN_TTL", 12*time.Hour),
			ActorCacheSize: getEnvAsInt("ELAQE_ACTOR_CACHE_SIZE", 1024),
			ActorCacheTTL:  getEnvAsDuration("ELAQE_ACTOR_CACHE_TTL", time.Minute),
		},
		Crypto: CryptoConfig{
			MessageKey: getEnv("MESSAGE_ENCRYPTION_KEY", ""),
		},
		Gateway: GatewayConfig{
			URL:             getEnv("TIMS_API", DefaultGatewayURL),
			UUID:            getEnv("UUID", ""),
			AccessToken:     getEnv("accessToken", ""),
			Timeout:         getEnvAsDuration("TIMS_TIMEOUT", 0),
			BreakerFailures: getEnvAsInt("TIMS_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("TIMS_BREAKER_COOLDOWN", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Burst:     getEnvAsInt("ELAQE_RATE_BURST", 60),
			PerSecond: getEnvAsInt("ELAQE_RATE_PER_SEC", 30),
			Window:    getEnvAsDuration("ELAQE_RATE_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "elaqe.message-logs"),
		},
		Messaging: MessagingConfig{
			ReadTracking: getEnvAsBool("ELAQE_READ_TRACKING", false),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("ELAQE_AUTH_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("ELAQE_TOKEN_TTL must be positive"))
	}
	if strings.TrimSpace(c.Gateway.URL) == "" {
		errs = append(errs, errors.New("TIMS_API must not be empty"))
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("rate limit burst and rate must be positive"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("ELAQE_MAX_BODY_BYTES must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.AuditTopic) == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Development reports whether the service runs in a development environment.
func (c *Config) Development() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "local":
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
