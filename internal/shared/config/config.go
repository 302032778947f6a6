package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	LegacyDB   LegacyDBConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// LegacyDBConfig holds connection settings for the legacy herd-book
// SQL Server database. The only thing read from it is the historical
// role value, via RoleProcedure.
type LegacyDBConfig struct {
	// Enabled controls whether the legacy fallback is wired at all.
	// Not all deployments still have the herd-book database.
	Enabled  bool
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Encrypt  bool
	// RoleProcedure is the stored procedure returning the legacy role
	// value for a user id.
	RoleProcedure string
	// QueryTimeout bounds each lookup; a timeout is treated as a
	// resolution error, not a "not found".
	QueryTimeout time.Duration
}

// EventStoreConfig holds configuration for EventStoreDB, used for the
// auth/admin event streams.
type EventStoreConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	// JWTSecret signs session access tokens (symmetric, dev-grade;
	// production deployments rotate this out of band).
	JWTSecret string
	// AccessTokenTTL is the lifetime of an issued JWT.
	AccessTokenTTL time.Duration
	// SessionTTL is the absolute lifetime of a session row.
	SessionTTL time.Duration
	// ResetTokenTTL is the lifetime of a password-reset token.
	ResetTokenTTL time.Duration
	// DefaultSignupRole is the role assignment provisioned at sign-up.
	// "editor" matches historical behavior; "viewer" is the
	// least-privilege alternative.
	DefaultSignupRole string
	// ClearGrantsOnDemotion removes a user's scoped visibility grants
	// when an admin moves them off the viewer role. Off by default:
	// grants are preserved for quick re-promotion.
	ClearGrantsOnDemotion bool
	// SignInURL is where unauthenticated navigation is redirected.
	SignInURL string
	// LandingURL is where forbidden navigation is redirected.
	LandingURL string
}

type RateLimitConfig struct {
	// SignInRPS / SignInBurst bound per-IP attempts on the credential
	// endpoints.
	SignInRPS   int
	SignInBurst int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "campovivo"),
			Password: getEnv("DB_PASSWORD", "campovivo"),
			Database: getEnv("DB_NAME", "campovivo"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LegacyDB: LegacyDBConfig{
			Enabled:       getEnvBool("LEGACY_DB_ENABLED", false),
			Host:          getEnv("LEGACY_DB_HOST", "localhost"),
			Port:          getEnvInt("LEGACY_DB_PORT", 1433),
			Database:      getEnv("LEGACY_DB_NAME", "herdbook"),
			User:          getEnv("LEGACY_DB_USER", "sa"),
			Password:      getEnv("LEGACY_DB_PASSWORD", ""),
			Encrypt:       getEnvBool("LEGACY_DB_ENCRYPT", false),
			RoleProcedure: getEnv("LEGACY_DB_ROLE_PROC", "dbo.GetUserRole"),
			QueryTimeout:  getEnvDuration("LEGACY_DB_QUERY_TIMEOUT", 5*time.Second),
		},
		EventStore: EventStoreConfig{
			Enabled:  getEnvBool("EVENTSTORE_ENABLED", true),
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			AccessTokenTTL:        getEnvDuration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
			SessionTTL:            getEnvDuration("AUTH_SESSION_TTL", 12*time.Hour),
			ResetTokenTTL:         getEnvDuration("AUTH_RESET_TOKEN_TTL", time.Hour),
			DefaultSignupRole:     getEnv("AUTH_DEFAULT_SIGNUP_ROLE", "editor"),
			ClearGrantsOnDemotion: getEnvBool("AUTH_CLEAR_GRANTS_ON_DEMOTION", false),
			SignInURL:             getEnv("AUTH_SIGNIN_URL", "/signin"),
			LandingURL:            getEnv("AUTH_LANDING_URL", "/"),
		},
		RateLimit: RateLimitConfig{
			SignInRPS:   getEnvInt("RATE_LIMIT_SIGNIN_RPS", 5),
			SignInBurst: getEnvInt("RATE_LIMIT_SIGNIN_BURST", 10),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
