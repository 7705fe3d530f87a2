package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends for attempt records and nonces.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// MaxStatusDelay bounds the UI smoothing pause of the status endpoint.
const MaxStatusDelay = 3 * time.Second

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Log       LogConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Popup     PopupConfig
	Turnstile TurnstileConfig
	TwoFactor TwoFactorConfig
	Notify    NotifyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type ServerConfig struct {
	Port              string `validate:"required"`
	Env               string `validate:"oneof=development test production"`
	HomeURL           string `validate:"required,url"`
	AdminURL          string `validate:"required"`
	// TrustProxyHeaders enables CF-Connecting-IP, X-Real-IP and X-Forwarded-For.
	TrustProxyHeaders bool
	TrustedProxies    []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration
}

type LogConfig struct {
	Level      string `validate:"oneof=debug info warn error"`
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type SessionConfig struct {
	JWTSecret      string        `validate:"required"`
	TTL            time.Duration `validate:"gt=0"`
	RememberTTL    time.Duration `validate:"gt=0"`
	NonceTTL       time.Duration `validate:"gt=0"`
	CookieName     string        `validate:"required"`
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string `validate:"oneof=Strict Lax None"`
	StoreBackend   string `validate:"oneof=memory postgres redis"`
}

type RateLimitConfig struct {
	Enabled         bool
	MaxAttempts     int           `validate:"min=1"`
	Window          time.Duration `validate:"gt=0"`
	CleanupInterval time.Duration
	// EndpointRPM is the coarse per-IP request budget for the ajax endpoint.
	EndpointRPM int
}

type PopupConfig struct {
	StatusDelay     time.Duration `validate:"gte=0"`
	SuppressLoading bool
	UIFile          string
}

type TurnstileConfig struct {
	Enabled   bool
	SiteKey   string
	SecretKey string
	VerifyURL string `validate:"required,url"`
	AllowList []string
	Timeout   time.Duration
	RPS       int
}

type TwoFactorConfig struct {
	Enabled       bool
	Issuer        string
	EncryptionKey string
	TokenTTL      time.Duration `validate:"gt=0"`
}

type NotifyConfig struct {
	OnLogin     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "loginpopup"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "loginpopup:"),
		},
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			Env:               env,
			HomeURL:           getEnv("HOME_URL", "http://localhost:8080/"),
			AdminURL:          getEnv("ADMIN_URL", "/admin"),
			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", true),
			TrustedProxies:    getEnvAsSlice("TRUSTED_PROXIES"),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:    getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
		Session: SessionConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			TTL:            getEnvAsDuration("SESSION_TTL", 48*time.Hour),
			RememberTTL:    getEnvAsDuration("REMEMBER_TTL", 14*24*time.Hour),
			NonceTTL:       getEnvAsDuration("NONCE_TTL", 10*time.Minute),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "loginpopup_session"),
			CookieDomain:   getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:   getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieSameSite: getEnv("COOKIE_SAMESITE", "Lax"),
			StoreBackend:   getEnv("STORE_BACKEND", StoreMemory),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", true),
			MaxAttempts:     getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:          getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
			EndpointRPM:     getEnvAsInt("RATE_LIMIT_ENDPOINT_RPM", 60),
		},
		Popup: PopupConfig{
			StatusDelay:     getEnvAsDuration("STATUS_DELAY", 1*time.Second),
			SuppressLoading: getEnvAsBool("SUPPRESS_LOADING", false),
			UIFile:          getEnv("UI_CONFIG_FILE", ""),
		},
		Turnstile: TurnstileConfig{
			Enabled:   getEnvAsBool("TURNSTILE_ENABLED", false),
			SiteKey:   getEnv("TURNSTILE_SITE_KEY", ""),
			SecretKey: getEnv("TURNSTILE_SECRET_KEY", ""),
			VerifyURL: getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
			AllowList: getEnvAsSlice("TURNSTILE_ALLOWLIST"),
			Timeout:   getEnvAsDuration("TURNSTILE_TIMEOUT", 5*time.Second),
			RPS:       getEnvAsInt("TURNSTILE_RPS", 20),
		},
		TwoFactor: TwoFactorConfig{
			Enabled:       getEnvAsBool("TWO_FACTOR_ENABLED", false),
			Issuer:        getEnv("TOTP_ISSUER", "LoginPopup"),
			EncryptionKey: getEnv("TOTP_ENCRYPTION_KEY", ""),
			TokenTTL:      getEnvAsDuration("TWO_FACTOR_TOKEN_TTL", 10*time.Minute),
		},
		Notify: NotifyConfig{
			OnLogin:     getEnvAsBool("NOTIFY_ON_LOGIN", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("SES_FROM_ADDRESS", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct constraints and the cross-field rules validator tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(c.Session.JWTSecret, c.Server.Env); err != nil {
		return err
	}

	if c.Session.StoreBackend == StorePostgres && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required for the postgres store")
	}

	if c.Popup.StatusDelay > MaxStatusDelay {
		return fmt.Errorf("STATUS_DELAY must not exceed %s (got %s)", MaxStatusDelay, c.Popup.StatusDelay)
	}

	if c.Turnstile.Enabled && (c.Turnstile.SiteKey == "" || c.Turnstile.SecretKey == "") {
		return fmt.Errorf("TURNSTILE_SITE_KEY and TURNSTILE_SECRET_KEY are required when Turnstile is enabled")
	}

	if c.TwoFactor.Enabled && len(c.TwoFactor.EncryptionKey) != 64 {
		return fmt.Errorf("TOTP_ENCRYPTION_KEY must be 64 hex characters when two-factor is enabled")
	}

	if c.Notify.OnLogin && c.Notify.FromAddress == "" {
		return fmt.Errorf("SES_FROM_ADDRESS is required when NOTIFY_ON_LOGIN is set")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the DSN in URL form, as expected by database/sql drivers.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
