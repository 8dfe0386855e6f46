package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-me-in-production"

// Config holds runtime settings read from the environment.
type Config struct {
	Port        string
	GRPCPort    string
	Env         string
	ServiceName string

	DatabaseDSN string
	RedisURL    string

	AMQPURL         string
	AMQPExchange    string
	AuditRoutingKey string

	JWTSecret string
	JWTTTL    time.Duration

	OTLPEndpoint string

	RateLimitMessages int
	RateLimitWindow   time.Duration

	ShutdownTimeout time.Duration
	DebugRoutes     bool
	SeedTestUser    bool
}

// Load reads configuration, picking up a .env file when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:              getEnv("PORT", "8000"),
		GRPCPort:          getEnv("GRPC_PORT", "9090"),
		Env:               getEnv("ENV", "development"),
		ServiceName:       getEnv("SERVICE_NAME", "chat-backend"),
		DatabaseDSN:       os.Getenv("DB_DSN"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "chat.events"),
		AuditRoutingKey:   getEnv("AUDIT_ROUTING_KEY", "audit.chat"),
		JWTSecret:         getEnv("JWT_SECRET", defaultJWTSecret),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DebugRoutes:       getEnv("DEBUG_ROUTES", "false") == "true",
		SeedTestUser:      getEnv("SEED_TEST_USER", "false") == "true",
		RateLimitMessages: 30,
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("RATE_LIMIT_MESSAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_MESSAGES %q", v)
		}
		cfg.RateLimitMessages = n
	}

	if cfg.IsProduction() {
		if cfg.DatabaseDSN == "" {
			return Config{}, fmt.Errorf("DB_DSN is required in production")
		}
		if cfg.JWTSecret == defaultJWTSecret {
			return Config{}, fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}
