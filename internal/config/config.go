package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the gateway.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
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

// PostgresConfig holds DB connection values for the audit store.
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

// AuthConfig defines token validation and issuance parameters.
type AuthConfig struct {
	// SubjectTokenSecret verifies inbound subject tokens (HS256).
	SubjectTokenSecret string
	// OBOSigningSecret signs minted OBO tokens when no RSA key is configured.
	OBOSigningSecret string
	// OBOSigningKeyPEM holds an optional PEM-encoded RSA private key. When
	// set, OBO tokens are signed RS256 and the public key is served as JWKS.
	OBOSigningKeyPEM string
	OBOKeyID         string
	// Issuer is the iss claim of minted tokens.
	Issuer string
	// ServiceActorID identifies this service in the act.sub delegation claim.
	ServiceActorID     string
	OBOTokenTTLMinutes int
	RequireClientAuth  bool
	BcryptCost         int
	// ResourceMappings overrides/extends the static resource->audience table,
	// parsed from "resource=audience" comma-separated pairs.
	ResourceMappings map[string]string
}

// RateLimitConfig tunes the sliding-window limiter.
type RateLimitConfig struct {
	Enabled bool
	// StoreTimeoutMillis bounds each call to the shared window store so a
	// slow Redis cannot stall the exchange path.
	StoreTimeoutMillis int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	mappings, err := parseResourceMappings(os.Getenv("RESOURCE_AUDIENCE_MAP"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "obo-gateway"),
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
			SubjectTokenSecret: getEnv("AUTH_SUBJECT_TOKEN_SECRET", "dev-secret"),
			OBOSigningSecret:   getEnv("AUTH_OBO_SIGNING_SECRET", "dev-secret"),
			OBOSigningKeyPEM:   os.Getenv("AUTH_OBO_SIGNING_KEY_PEM"),
			OBOKeyID:           getEnv("AUTH_OBO_KEY_ID", "obo-1"),
			Issuer:             getEnv("AUTH_ISSUER", "urn:engify:auth"),
			ServiceActorID:     getEnv("AUTH_SERVICE_ACTOR_ID", "urn:engify:obo-gateway"),
			OBOTokenTTLMinutes: getEnvAsInt("AUTH_OBO_TOKEN_TTL_MINUTES", 30),
			RequireClientAuth:  getEnvAsBool("AUTH_REQUIRE_CLIENT_AUTH", false),
			BcryptCost:         getEnvAsInt("AUTH_BCRYPT_COST", 12),
			ResourceMappings:   mappings,
		},
		RateLimit: RateLimitConfig{
			Enabled:            getEnvAsBool("RATE_LIMIT_ENABLED", true),
			StoreTimeoutMillis: getEnvAsInt("RATE_LIMIT_STORE_TIMEOUT_MILLIS", 500),
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

// OBOTokenTTL returns the fixed OBO token lifetime.
func (a AuthConfig) OBOTokenTTL() time.Duration {
	if a.OBOTokenTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(a.OBOTokenTTLMinutes) * time.Minute
}

// StoreTimeout returns the per-call deadline for shared store operations.
func (r RateLimitConfig) StoreTimeout() time.Duration {
	if r.StoreTimeoutMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(r.StoreTimeoutMillis) * time.Millisecond
}

func parseResourceMappings(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	mappings := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid RESOURCE_AUDIENCE_MAP entry %q", pair)
		}
		mappings[parts[0]] = parts[1]
	}
	return mappings, nil
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
