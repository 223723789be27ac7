package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "GHG_"

// Config is the process configuration of the registry API.
type Config struct {
	Environment   string
	Server        ServerConfig
	GRPC          GRPCConfig
	Database      DatabaseConfig
	Bootstrap     BootstrapConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	CORSOrigins   []string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// GRPCConfig holds the gRPC listener address.
type GRPCConfig struct {
	Addr string
}

// DatabaseConfig holds PostgreSQL settings. Empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// BootstrapConfig describes the first Root account. Empty email disables it.
// A non-empty DemoPassword loads the sample population with that password.
type BootstrapConfig struct {
	Email        string
	Password     string
	Name         string
	CompanyName  string
	DemoPassword string
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	TokenSecret string
	Issuer      string
	AccessTTL   time.Duration
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads .env (when present) and the GHG_* environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getEnvAsInt("HTTP_MAX_BODY_BYTES", 1<<20)),
		},
		GRPC: GRPCConfig{
			Addr: getEnv("GRPC_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("PG_DSN", ""),
			MaxOpenConns:    getEnvAsInt("PG_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("PG_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("PG_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("PG_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			Email:        getEnv("ROOT_EMAIL", ""),
			Password:     getEnv("ROOT_PASSWORD", ""),
			Name:         getEnv("ROOT_NAME", "Registry Root"),
			CompanyName:  getEnv("ROOT_COMPANY", "National Registry"),
			DemoPassword: getEnv("DEMO_PASSWORD", ""),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("TOKEN_SECRET", ""),
			Issuer:      getEnv("TOKEN_ISSUER", "ghg-inventory"),
			AccessTTL:   getEnvAsDuration("TOKEN_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("http address is required")
	}
	if len(c.Auth.TokenSecret) < 16 {
		return fmt.Errorf("%sTOKEN_SECRET must be at least 16 bytes", envPrefix)
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.IsProduction() && c.Database.DSN == "" {
		return fmt.Errorf("%sPG_DSN is required in production", envPrefix)
	}
	if c.Bootstrap.Email != "" && len(c.Bootstrap.Password) < 8 {
		return fmt.Errorf("%sROOT_PASSWORD must be at least 8 characters", envPrefix)
	}
	if c.Bootstrap.DemoPassword != "" && len(c.Bootstrap.DemoPassword) < 8 {
		return fmt.Errorf("%sDEMO_PASSWORD must be at least 8 characters", envPrefix)
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
