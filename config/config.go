package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	CORS          CORSConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Driver           string // postgres or sqlite3
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AutoMigrate      bool
}

// AuthConfig holds token signing and session cookie configuration
type AuthConfig struct {
	LoginTokenKey     string
	SecureTokenKey    string
	LoginTokenTTL     time.Duration
	LoginTokenMaxTTL  time.Duration
	SecureTokenTTL    time.Duration
	SecureTokenMaxTTL time.Duration
	LoginCookieName   string
	SecureCookieName  string
	CookieSecure      bool
	BcryptCost        int
}

// CORSConfig holds allowed origins for credentialed cross-origin requests
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// RateLimitConfig holds the login throttling window
type RateLimitConfig struct {
	Enabled        bool
	LoginPerMinute int
}

// AuditConfig holds the audit worker pool sizing
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultLoginTokenTTL  = 8 * 24 * time.Hour
	defaultSecureTokenTTL = 24 * time.Hour
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			APIPrefix:       getEnv("API_V1_STR", "/api/v1"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			LoginTokenKey:     getEnv("JWT_TOKEN_KEY_LOGIN", ""),
			SecureTokenKey:    getEnv("JWT_TOKEN_KEY_SECURE", ""),
			LoginTokenTTL:     getEnvAsMinutes("ACCESS_TOKEN_EXPIRE_MINUTES", defaultLoginTokenTTL),
			LoginTokenMaxTTL:  getEnvAsMinutes("ACCESS_TOKEN_MAX_EXPIRE_MINUTES", defaultLoginTokenTTL),
			SecureTokenTTL:    getEnvAsMinutes("ACCESS_TOKEN_SECURE_EXPIRE_MINUTES", defaultSecureTokenTTL),
			SecureTokenMaxTTL: getEnvAsMinutes("ACCESS_TOKEN_SECURE_MAX_EXPIRE_MINUTES", defaultSecureTokenTTL),
			LoginCookieName:   getEnv("COOKIE_TOKEN_NAME", "api_access_token"),
			SecureCookieName:  getEnv("COOKIE_TOKEN_SECURE_NAME", "secure_access_token"),
			CookieSecure:      getEnvAsBool("COOKIE_SECURE", false),
			BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("BACKEND_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			MaxAge:         getEnvAsInt("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("LOGIN_RATE_LIMIT_ENABLED", true),
			LoginPerMinute: getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Development runs get throwaway signing keys; every restart logs everyone out.
	if !cfg.IsProduction() {
		if cfg.Auth.LoginTokenKey == "" {
			cfg.Auth.LoginTokenKey = randomKey()
		}
		if cfg.Auth.SecureTokenKey == "" {
			cfg.Auth.SecureTokenKey = randomKey()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case DriverSQLite:
		if c.Database.ConnectionString == "" {
			return fmt.Errorf("sqlite requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Auth.LoginTokenKey == "" || c.Auth.SecureTokenKey == "" {
		return fmt.Errorf("JWT_TOKEN_KEY_LOGIN and JWT_TOKEN_KEY_SECURE are required")
	}
	if c.Auth.LoginTokenKey == c.Auth.SecureTokenKey {
		return fmt.Errorf("login and secure token keys must differ")
	}
	if c.Auth.LoginTokenTTL <= 0 || c.Auth.SecureTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Auth.LoginTokenMaxTTL < c.Auth.LoginTokenTTL || c.Auth.SecureTokenMaxTTL < c.Auth.SecureTokenTTL {
		return fmt.Errorf("maximum token lifetime is shorter than the default")
	}
	if c.Auth.LoginCookieName == "" || c.Auth.SecureCookieName == "" || c.Auth.LoginCookieName == c.Auth.SecureCookieName {
		return fmt.Errorf("login and secure cookie names must be set and distinct")
	}
	if c.IsProduction() && !c.Auth.CookieSecure {
		return fmt.Errorf("COOKIE_SECURE must be enabled in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// DSN returns the driver connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds a PostgreSQL DSN from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	if c.Driver == DriverSQLite {
		path := c.ConnectionString
		if i := strings.Index(path, "?"); i >= 0 {
			path = path[:i]
		}
		return fmt.Sprintf("driver=sqlite3 file=%s", strings.TrimPrefix(path, "file:"))
	}
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", DriverPostgres),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "dev")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "users")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8000
}

func randomKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("config: read random key: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsMinutes reads an integer number of minutes.
func getEnvAsMinutes(key string, defaultValue time.Duration) time.Duration {
	minutes := getEnvAsInt(key, -1)
	if minutes <= 0 {
		return defaultValue
	}
	return time.Duration(minutes) * time.Minute
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
